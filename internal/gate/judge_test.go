package gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapse-market/synapse-core/internal/domain"
)

// stubJudgeCommand drops an executable shell script on PATH that prints the
// given stdout and exits
func stubJudgeCommand(t *testing.T, name string, stdout string) {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\ncat <<'REPLY'\n" + stdout + "\nREPLY\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestCLIJudgeEvaluate(t *testing.T) {
	stubJudgeCommand(t, "stub-judge",
		`{"result": "{\"score\": 80, \"hard_reject\": false}", "is_error": false}`)

	j := NewCLIJudge("stub-judge", 5*time.Second)
	reply, err := j.Evaluate(context.Background(), "rate this")
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 80, "hard_reject": false}`, reply)
}

func TestCLIJudgeMissingBinary(t *testing.T) {
	j := NewCLIJudge("definitely-not-installed-judge", time.Second)

	_, err := j.Evaluate(context.Background(), "rate this")
	assert.ErrorIs(t, err, domain.ErrJudgeUnavailable)
}

func TestCLIJudgeErrorEnvelope(t *testing.T) {
	stubJudgeCommand(t, "stub-judge", `{"result": "", "is_error": true}`)

	j := NewCLIJudge("stub-judge", 5*time.Second)
	_, err := j.Evaluate(context.Background(), "rate this")
	assert.ErrorIs(t, err, domain.ErrJudgeUnavailable)
}

func TestCLIJudgeGarbageOutput(t *testing.T) {
	stubJudgeCommand(t, "stub-judge", "segfault in module 0x0")

	j := NewCLIJudge("stub-judge", 5*time.Second)
	_, err := j.Evaluate(context.Background(), "rate this")
	assert.ErrorIs(t, err, domain.ErrJudgeUnavailable)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr bool
	}{
		{name: "bare object", reply: `{"score": 1}`, want: `{"score": 1}`},
		{name: "fenced object", reply: "```json\n{\"score\": 1}\n```", want: `{"score": 1}`},
		{name: "prose around object", reply: `Here you go: {"score": 1} hope that helps`, want: `{"score": 1}`},
		{name: "no object", reply: "cannot rate this", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
