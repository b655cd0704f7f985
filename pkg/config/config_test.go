package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsMatchDocumentedValues(t *testing.T) {
	d := Defaults()
	assert.Equal(t, 200_000, d.Budget.ContextSize)
	assert.Equal(t, 0.10, d.Budget.ContextPercent)
	assert.Equal(t, 25_000, d.HookOutput.MaxOutputBytes)
	assert.Equal(t, 500, d.HookOutput.MaxMemoryChars)
}

func TestTokenBudgetComputesPercentageOfContextSize(t *testing.T) {
	c := Defaults()
	assert.Equal(t, 20_000, c.TokenBudget())
}

func TestLoadWithMissingFileFallsBackToDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 200_000, cfg.Budget.ContextSize)
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ltm.yaml")
	content := "budget:\n  context_size: 100000\ndream:\n  disable_rem: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 100_000, cfg.Budget.ContextSize)
	assert.True(t, cfg.Dream.DisableREM)
	assert.Equal(t, 25_000, cfg.HookOutput.MaxOutputBytes)
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	t.Setenv("LTM_BUDGET_CONTEXT_SIZE", "50000")
	loader := NewLoader("")
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 50_000, cfg.Budget.ContextSize)
}
