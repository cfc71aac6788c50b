package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/v0xg/sessionrec/internal/capture"
	"github.com/v0xg/sessionrec/internal/readiness"
)

// DefaultPath is used when no --config flag is given
const DefaultPath = "sessionrec.yaml"

// Config holds all sessionrec configuration.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Readiness ReadinessConfig `yaml:"readiness"`
	Store     StoreConfig     `yaml:"store"`
	Export    ExportConfig    `yaml:"export"`
	AI        AIConfig        `yaml:"ai"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BrowserConfig configures the Chromium instance.
type BrowserConfig struct {
	Bin        string `yaml:"bin"` // empty: rod downloads/uses its own
	Headless   bool   `yaml:"headless"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	ProfileDir string `yaml:"profile_dir"` // user data dir for authenticated sessions
}

// RecorderConfig configures the action normalizer.
type RecorderConfig struct {
	InputDebounce     time.Duration `yaml:"input_debounce"`
	ScrollDebounce    time.Duration `yaml:"scroll_debounce"`
	DuplicateWindow   time.Duration `yaml:"duplicate_window"`
	HoverDelay        time.Duration `yaml:"hover_delay"`
	ScreenshotTimeout time.Duration `yaml:"screenshot_timeout"`
	ScreenshotFormat  string        `yaml:"screenshot_format"` // png, jpeg
	TextLimit         int           `yaml:"text_limit"`
	VideoFPS          int           `yaml:"video_fps"`
}

// ReadinessConfig configures the stabilization waits.
type ReadinessConfig struct {
	FrameDelay          time.Duration `yaml:"frame_delay"`
	MutationSilence     time.Duration `yaml:"mutation_silence"`
	MutationCeiling     time.Duration `yaml:"mutation_ceiling"`
	NetworkIdleDebounce time.Duration `yaml:"network_idle_debounce"`
	NetworkCeiling      time.Duration `yaml:"network_ceiling"`
	ImageTimeout        time.Duration `yaml:"image_timeout"`
	InputSettle         time.Duration `yaml:"input_settle"`
	ScrollSettle        time.Duration `yaml:"scroll_settle"`
	DefaultSettle       time.Duration `yaml:"default_settle"`
}

// StoreConfig configures the session archive.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ExportConfig configures the renderers.
type ExportConfig struct {
	OutDir          string `yaml:"out_dir"`
	ThumbnailWidth  uint   `yaml:"thumbnail_width"`
	ReplayFrameMs   int    `yaml:"replay_frame_ms"`
	ReplayMaxColors int    `yaml:"replay_max_colors"`
}

// AIConfig configures the optional session summariser.
type AIConfig struct {
	Provider string `yaml:"provider"` // claude, openai
	Model    string `yaml:"model"`
	APIKey   string `yaml:"-"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	rec := capture.DefaultConfig()
	t := readiness.DefaultTimings()
	return &Config{
		Browser: BrowserConfig{
			Headless: false,
			Width:    1280,
			Height:   720,
		},
		Recorder: RecorderConfig{
			InputDebounce:     rec.InputDebounce,
			ScrollDebounce:    rec.ScrollDebounce,
			DuplicateWindow:   rec.DuplicateWindow,
			HoverDelay:        rec.HoverDelay,
			ScreenshotTimeout: rec.ScreenshotTimeout,
			ScreenshotFormat:  "png",
			TextLimit:         rec.TextLimit,
			VideoFPS:          5,
		},
		Readiness: ReadinessConfig{
			FrameDelay:          t.FrameDelay,
			MutationSilence:     t.MutationSilence,
			MutationCeiling:     t.MutationCeiling,
			NetworkIdleDebounce: t.NetworkIdleDebounce,
			NetworkCeiling:      t.NetworkCeiling,
			ImageTimeout:        t.ImageTimeout,
			InputSettle:         t.InputSettle,
			ScrollSettle:        t.ScrollSettle,
			DefaultSettle:       t.DefaultSettle,
		},
		Store: StoreConfig{
			Path: "data/sessionrec.db",
		},
		Export: ExportConfig{
			OutDir:          "out",
			ThumbnailWidth:  800,
			ReplayFrameMs:   1200,
			ReplayMaxColors: 256,
		},
		AI: AIConfig{
			Provider: "claude",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadEnv loads a .env file from the working directory if one exists
func LoadEnv() {
	_ = godotenv.Load()
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if bin := os.Getenv("SESSIONREC_BROWSER_BIN"); bin != "" {
		c.Browser.Bin = bin
	}
	if path := os.Getenv("SESSIONREC_STORE"); path != "" {
		c.Store.Path = path
	}
	if dir := os.Getenv("SESSIONREC_OUT_DIR"); dir != "" {
		c.Export.OutDir = dir
	}
	if p := os.Getenv("SESSIONREC_AI_PROVIDER"); p != "" {
		c.AI.Provider = p
	}
	if lvl := os.Getenv("SESSIONREC_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}

	switch strings.ToLower(c.AI.Provider) {
	case "openai":
		c.AI.APIKey = firstEnv("SESSIONREC_OPENAI_API_KEY", "OPENAI_API_KEY")
	default:
		c.AI.APIKey = firstEnv("SESSIONREC_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	}
}

// ValidProviders lists the supported summariser providers.
var ValidProviders = []string{"claude", "anthropic", "openai"}

// Validate checks values that would otherwise fail deep inside a recording.
func (c *Config) Validate() error {
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("invalid viewport %dx%d", c.Browser.Width, c.Browser.Height)
	}
	switch c.Recorder.ScreenshotFormat {
	case "png", "jpeg":
	default:
		return fmt.Errorf("invalid screenshot format: %s (valid: png, jpeg)", c.Recorder.ScreenshotFormat)
	}
	if c.Readiness.MutationCeiling < c.Readiness.MutationSilence {
		return fmt.Errorf("mutation ceiling %s is shorter than the silence window %s",
			c.Readiness.MutationCeiling, c.Readiness.MutationSilence)
	}
	valid := false
	for _, p := range ValidProviders {
		if strings.EqualFold(c.AI.Provider, p) {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid AI provider: %s (valid: %v)", c.AI.Provider, ValidProviders)
	}
	return nil
}

// NormalizerConfig converts the recorder section for the capture package
func (c *Config) NormalizerConfig() capture.Config {
	cfg := capture.DefaultConfig()
	cfg.InputDebounce = c.Recorder.InputDebounce
	cfg.ScrollDebounce = c.Recorder.ScrollDebounce
	cfg.DuplicateWindow = c.Recorder.DuplicateWindow
	cfg.HoverDelay = c.Recorder.HoverDelay
	cfg.ScreenshotTimeout = c.Recorder.ScreenshotTimeout
	cfg.TextLimit = c.Recorder.TextLimit
	return cfg
}

// Timings converts the readiness section for the readiness package
func (c *Config) Timings() readiness.Timings {
	r := c.Readiness
	return readiness.Timings{
		FrameDelay:          r.FrameDelay,
		MutationSilence:     r.MutationSilence,
		MutationCeiling:     r.MutationCeiling,
		NetworkIdleDebounce: r.NetworkIdleDebounce,
		NetworkCeiling:      r.NetworkCeiling,
		ImageTimeout:        r.ImageTimeout,
		InputSettle:         r.InputSettle,
		ScrollSettle:        r.ScrollSettle,
		DefaultSettle:       r.DefaultSettle,
	}
}
