package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SESSIONREC_BROWSER_BIN", "SESSIONREC_STORE", "SESSIONREC_OUT_DIR",
		"SESSIONREC_AI_PROVIDER", "SESSIONREC_LOG_LEVEL",
		"SESSIONREC_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY",
		"SESSIONREC_OPENAI_API_KEY", "OPENAI_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 500*time.Millisecond, cfg.Recorder.InputDebounce)
	assert.Equal(t, 200*time.Millisecond, cfg.Recorder.ScrollDebounce)
	assert.Equal(t, 100*time.Millisecond, cfg.Recorder.DuplicateWindow)
	assert.Equal(t, 2*time.Second, cfg.Recorder.ScreenshotTimeout)
	assert.Equal(t, time.Second, cfg.Readiness.MutationCeiling)
	assert.Equal(t, 300*time.Millisecond, cfg.Readiness.NetworkIdleDebounce)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Store, cfg.Store)
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "sessionrec.yaml")

	cfg := DefaultConfig()
	cfg.Browser.Headless = true
	cfg.Recorder.InputDebounce = 750 * time.Millisecond
	cfg.AI.Provider = "openai"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Browser.Headless)
	assert.Equal(t, 750*time.Millisecond, loaded.Recorder.InputDebounce)
	assert.Equal(t, "openai", loaded.AI.Provider)
	assert.Equal(t, cfg.Readiness, loaded.Readiness)
}

func TestLoad_DurationStrings(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sessionrec.yaml")
	yml := `
recorder:
  input_debounce: 1s
readiness:
  network_ceiling: 2500ms
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Recorder.InputDebounce)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timings().NetworkCeiling)
	assert.Equal(t, 200*time.Millisecond, cfg.Recorder.ScrollDebounce, "unset keys keep defaults")
	assert.Equal(t, time.Second, cfg.NormalizerConfig().InputDebounce)
}

func TestLoad_InvalidFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sessionrec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recorder: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSIONREC_STORE", "/tmp/rec.db")
	t.Setenv("SESSIONREC_OUT_DIR", "/tmp/out")
	t.Setenv("SESSIONREC_AI_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-plain")
	t.Setenv("SESSIONREC_OPENAI_API_KEY", "sk-prefixed")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "/tmp/rec.db", cfg.Store.Path)
	assert.Equal(t, "/tmp/out", cfg.Export.OutDir)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "sk-prefixed", cfg.AI.APIKey, "prefixed key wins")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad viewport", func(c *Config) { c.Browser.Width = 0 }},
		{"bad format", func(c *Config) { c.Recorder.ScreenshotFormat = "webp" }},
		{"ceiling below silence", func(c *Config) { c.Readiness.MutationCeiling = 50 * time.Millisecond }},
		{"bad provider", func(c *Config) { c.AI.Provider = "gemini" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
