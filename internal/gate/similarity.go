package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/logger"
)

// DuplicateMatch names an existing plan the judge considers semantically
// equivalent to the submission
type DuplicateMatch struct {
	PlanID    string `json:"plan_id"`
	Title     string `json:"title"`
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
}

// similarityReply is the JSON object the judge returns for one comparison
type similarityReply struct {
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
}

// checkSimilarity shortlists textually related plans with the ranked search
// and asks the judge for a semantic score per candidate. Judge failures on
// individual candidates are logged and skipped; the stage fails open.
func (g *Gate) checkSimilarity(ctx context.Context, input domain.StorePlanInput) []DuplicateMatch {
	query := input.Title
	if len(input.Tags) > 0 {
		query += " " + strings.Join(input.Tags, " ")
	}
	results, err := g.plans.Search(ctx, query, input.Tags, g.config.ShortlistLimit)
	if err != nil {
		logger.WarnCtx(ctx, "similarity pre-filter failed, skipping check", zap.Error(err))
		return nil
	}

	// bm25 ranks are negative; closer to zero means a looser textual match.
	// Hits above the threshold are near matches worth a judge call; anything
	// at or below it is already distinct enough.
	shortlist := results[:0]
	for _, candidate := range results {
		if candidate.Rank > g.config.SimilarityRankThreshold {
			shortlist = append(shortlist, candidate)
		}
	}
	if len(shortlist) == 0 {
		return nil
	}

	var (
		mu         sync.Mutex
		duplicates []DuplicateMatch
	)
	pool := pond.NewPool(len(shortlist), pond.WithContext(ctx))
	for _, candidate := range shortlist {
		pool.Submit(func() {
			match, err := g.compareCandidate(ctx, input, candidate.ID)
			if err != nil {
				logger.WarnCtx(ctx, "similarity comparison skipped",
					zap.String("candidateID", candidate.ID),
					zap.Error(err))
				return
			}
			if match != nil {
				mu.Lock()
				duplicates = append(duplicates, *match)
				mu.Unlock()
			}
		})
	}
	pool.StopAndWait()

	return duplicates
}

// compareCandidate hydrates one candidate's content and asks the judge for
// a semantic similarity score
func (g *Gate) compareCandidate(ctx context.Context, input domain.StorePlanInput, candidateID string) (*DuplicateMatch, error) {
	candidate, err := g.plans.GetByID(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate candidate: %w", err)
	}

	reply, err := g.judge.Evaluate(ctx, similarityPrompt(input, candidate))
	if err != nil {
		return nil, err
	}

	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	var parsed similarityReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse similarity verdict: %w", err)
	}

	if parsed.Score < g.config.SimilarityScoreThreshold {
		return nil, nil
	}
	return &DuplicateMatch{
		PlanID:    candidate.ID,
		Title:     candidate.Title,
		Score:     parsed.Score,
		Rationale: parsed.Rationale,
	}, nil
}
