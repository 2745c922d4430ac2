// Package gate is the pre-commit filter for plan submissions: an external
// judge scores quality against a fixed rubric and flags semantic duplicates
// among textually related existing plans. The gate writes no state and
// never blocks a submission when the judge is unavailable.
package gate

import (
	"context"
	"fmt"

	"github.com/synapse-market/synapse-core/internal/config"
	"github.com/synapse-market/synapse-core/internal/domain"
)

// PlanReader is the read surface the gate needs from the storage provider
type PlanReader interface {
	Search(ctx context.Context, query string, tags []string, limit int) ([]domain.PlanSearchResult, error)
	GetByID(ctx context.Context, id string) (*domain.Plan, error)
	ContentExists(ctx context.Context, contentHash string) (bool, error)
}

// ValidationResult is the gate's decision on one submission
type ValidationResult struct {
	Accepted   bool             `json:"accepted"`
	Reason     string           `json:"reason,omitempty"`
	Quality    *QualityResult   `json:"quality,omitempty"`
	Duplicates []DuplicateMatch `json:"duplicates,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// Gate runs the quality and similarity stages ahead of a store
type Gate struct {
	judge  Judge
	plans  PlanReader
	config config.GateConfig
}

// New creates a gate over the given judge and plan reader
func New(judge Judge, plans PlanReader, cfg config.GateConfig) *Gate {
	return &Gate{judge: judge, plans: plans, config: cfg}
}

// ValidateSubmission decides whether a submission is admitted. Stages run
// in cost order: rubric scoring, exact content dedup, then the judge-backed
// similarity sweep over the search shortlist.
func (g *Gate) ValidateSubmission(ctx context.Context, input domain.StorePlanInput) (*ValidationResult, error) {
	if !g.config.Enabled {
		return &ValidationResult{Accepted: true, Quality: skippedQuality()}, nil
	}

	result := &ValidationResult{Quality: g.evaluateQuality(ctx, input)}
	if result.Quality.Skipped {
		result.Warnings = append(result.Warnings, "quality judge unavailable, submission accepted unscored")
	}

	switch result.Quality.Verdict {
	case VerdictRejected:
		result.Reason = "quality below rejection threshold"
		return result, nil
	case VerdictNeedsImprovement:
		result.Reason = fmt.Sprintf("quality score %d below acceptance threshold %d",
			result.Quality.Score, g.config.QualityThreshold)
		return result, nil
	}

	exists, err := g.plans.ContentExists(ctx, domain.HashContent(input.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate content: %w", err)
	}
	if exists {
		result.Reason = "identical content already stored"
		return result, nil
	}

	if g.config.SimilarityEnabled {
		result.Duplicates = g.checkSimilarity(ctx, input)
		if len(result.Duplicates) > 0 {
			result.Reason = "semantically duplicate of existing plans"
			return result, nil
		}
	}

	result.Accepted = true
	return result, nil
}
