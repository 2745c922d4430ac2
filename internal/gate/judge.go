package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/synapse-market/synapse-core/internal/domain"
)

// Judge evaluates a prompt with an external model and returns its raw
// verdict text. Unavailability is reported as domain.ErrJudgeUnavailable so
// callers can fail open.
//
//go:generate mockgen -source=judge.go -destination=../mocks/judge.go -package=mocks -mock_names=Judge=MockJudge
type Judge interface {
	Evaluate(ctx context.Context, prompt string) (string, error)
}

// CLIJudge shells out to a judge binary in the claude CLI convention:
// the prompt goes in via -p and the reply comes back as a JSON envelope
// with a result field
type CLIJudge struct {
	command string
	timeout time.Duration
}

// NewCLIJudge creates a judge invoking the given command
func NewCLIJudge(command string, timeout time.Duration) *CLIJudge {
	return &CLIJudge{command: command, timeout: timeout}
}

// cliEnvelope is the wrapper the judge CLI prints in JSON output mode
type cliEnvelope struct {
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
}

func (j *CLIJudge) Evaluate(ctx context.Context, prompt string) (string, error) {
	if _, err := exec.LookPath(j.command); err != nil {
		return "", fmt.Errorf("judge command %q not found: %w", j.command, domain.ErrJudgeUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, j.command, "-p", prompt, "--output-format", "json")
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("judge timed out after %s: %w", j.timeout, domain.ErrJudgeUnavailable)
		}
		return "", fmt.Errorf("judge command failed: %v: %w", err, domain.ErrJudgeUnavailable)
	}

	var envelope cliEnvelope
	if err := json.Unmarshal(out, &envelope); err != nil {
		return "", fmt.Errorf("failed to parse judge output: %v: %w", err, domain.ErrJudgeUnavailable)
	}
	if envelope.IsError {
		return "", fmt.Errorf("judge reported an error: %w", domain.ErrJudgeUnavailable)
	}

	return envelope.Result, nil
}

var _ Judge = (*CLIJudge)(nil)

// extractJSON pulls the first JSON object out of a judge reply, tolerating
// markdown code fences and surrounding prose
func extractJSON(reply string) (string, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in judge reply")
	}
	return reply[start : end+1], nil
}
