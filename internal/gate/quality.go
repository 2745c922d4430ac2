package gate

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/logger"
)

// QualityVerdict classifies a scored submission
type QualityVerdict string

const (
	VerdictAccepted         QualityVerdict = "accepted"
	VerdictNeedsImprovement QualityVerdict = "needs_improvement"
	VerdictRejected         QualityVerdict = "rejected"
)

// QualityResult is the outcome of the quality stage. Skipped means the
// judge was unavailable and the stage failed open.
type QualityResult struct {
	Verdict QualityVerdict `json:"verdict"`
	Score   int            `json:"score"`
	Reasons []string       `json:"reasons,omitempty"`
	Skipped bool           `json:"skipped"`
}

// qualityReply is the JSON object the judge returns for the quality rubric
type qualityReply struct {
	Score      int      `json:"score"`
	HardReject bool     `json:"hard_reject"`
	Reasons    []string `json:"reasons"`
}

// evaluateQuality scores a submission against the rubric. Judge
// unavailability or an unparseable reply never blocks the submission.
func (g *Gate) evaluateQuality(ctx context.Context, input domain.StorePlanInput) *QualityResult {
	reply, err := g.judge.Evaluate(ctx, qualityPrompt(input))
	if err != nil {
		logger.WarnCtx(ctx, "quality judge unavailable, accepting unscored", zap.Error(err))
		return skippedQuality()
	}

	parsed, err := parseQualityReply(reply)
	if err != nil {
		logger.WarnCtx(ctx, "unparseable quality verdict, accepting unscored", zap.Error(err))
		return skippedQuality()
	}

	result := &QualityResult{Score: parsed.Score, Reasons: parsed.Reasons}
	switch {
	case parsed.HardReject, parsed.Score < g.config.ReviewThreshold:
		result.Verdict = VerdictRejected
	case parsed.Score < g.config.QualityThreshold:
		result.Verdict = VerdictNeedsImprovement
	default:
		result.Verdict = VerdictAccepted
	}
	return result
}

func skippedQuality() *QualityResult {
	return &QualityResult{
		Verdict: VerdictAccepted,
		Score:   domain.QUALITY_SCORE_UNSCORED,
		Skipped: true,
	}
}

func parseQualityReply(reply string) (*qualityReply, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	var parsed qualityReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse quality verdict: %w", err)
	}
	if parsed.Score < 0 || parsed.Score > 100 {
		return nil, fmt.Errorf("quality score out of range: %d", parsed.Score)
	}
	return &parsed, nil
}
