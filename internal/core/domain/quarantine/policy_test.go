package quarantine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"trading-bot-fleet/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultPolicy_Table verifies the escalation table.
func TestDefaultPolicy_Table(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct {
		attempt  int
		duration time.Duration
		action   types.NextAction
	}{
		{1, time.Hour, types.NextActionRedeploy},
		{2, 3 * time.Hour, types.NextActionRedeploy},
		{3, 24 * time.Hour, types.NextActionRedeploy},
		{4, 0, types.NextActionDeleteAndRegenerate},
		{7, 0, types.NextActionDeleteAndRegenerate},
	}
	for _, tc := range cases {
		d := p.Decide(tc.attempt)
		assert.Equal(t, tc.duration, d.Duration, "attempt %d", tc.attempt)
		assert.Equal(t, tc.action, d.Action, "attempt %d", tc.attempt)
	}

	assert.Equal(t, 4, p.DeleteThreshold())
	assert.True(t, p.Decide(4).Terminal())
	assert.False(t, p.Decide(3).Terminal())
	assert.Equal(t, types.NextActionNone, p.Decide(0).Action)
}

// TestNewPolicy_Validation verifies empty and non-positive windows are rejected.
func TestNewPolicy_Validation(t *testing.T) {
	_, err := NewPolicy(nil)
	assert.Error(t, err)

	_, err = NewPolicy([]time.Duration{time.Hour, 0})
	assert.Error(t, err)
}

// TestNewPolicy_CopiesInput verifies later edits to the input slice do not leak in.
func TestNewPolicy_CopiesInput(t *testing.T) {
	windows := []time.Duration{time.Minute}
	p, err := NewPolicy(windows)
	require.NoError(t, err)

	windows[0] = time.Hour
	assert.Equal(t, time.Minute, p.Duration(1))
}

// TestLoadPolicyFile verifies YAML overrides.
func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retraining_windows: [\"30m\", \"2h\"]\n"), 0o644))

	p, err := LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * time.Minute, 2 * time.Hour}, p.Windows())
	assert.Equal(t, 3, p.DeleteThreshold())
}

// TestParsePolicy_BadDuration verifies malformed durations are reported.
func TestParsePolicy_BadDuration(t *testing.T) {
	_, err := ParsePolicy([]byte("retraining_windows: [\"soon\"]\n"))
	assert.Error(t, err)
}
