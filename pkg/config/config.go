// Package config loads the engine's single configuration struct (§6.5),
// layered from a YAML file and environment overrides via viper, with an
// optional fsnotify-backed live reload.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Budget bounds session-start injection (§4.7 step 7).
type Budget struct {
	ContextSize    int     `yaml:"context_size" mapstructure:"context_size"`       // default 200000
	ContextPercent float64 `yaml:"context_percent" mapstructure:"context_percent"` // default 0.10
}

// HookOutput bounds the emitted DSL block's raw size.
type HookOutput struct {
	MaxOutputBytes int `yaml:"max_output_bytes" mapstructure:"max_output_bytes"` // default 25000
	MaxMemoryChars int `yaml:"max_memory_chars" mapstructure:"max_memory_chars"` // default 500
}

// Dream mirrors pkg/dream.Config's tunables so they can be loaded from file.
type Dream struct {
	SimilarityThreshold   float64  `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MaxLinksPerMemory      int      `yaml:"max_links_per_memory" mapstructure:"max_links_per_memory"`
	ProcessLimit           int      `yaml:"process_limit" mapstructure:"process_limit"`
	LookbackDays           int      `yaml:"lookback_days" mapstructure:"lookback_days"`
	DisableN2              bool     `yaml:"disable_n2" mapstructure:"disable_n2"`
	DisableN3              bool     `yaml:"disable_n3" mapstructure:"disable_n3"`
	DisableREM             bool     `yaml:"disable_rem" mapstructure:"disable_rem"`
	RetentionDays          int      `yaml:"retention_days" mapstructure:"retention_days"`
	KnownProjectNames      []string `yaml:"known_project_names" mapstructure:"known_project_names"`
}

// MemoryLimits are optional per-scope caps; zero means unlimited.
type MemoryLimits struct {
	PerAgent   int            `yaml:"per_agent" mapstructure:"per_agent"`
	PerProject int            `yaml:"per_project" mapstructure:"per_project"`
	PerKind    map[string]int `yaml:"per_kind" mapstructure:"per_kind"`
}

// Logging controls the slog handler and retained log file count.
type Logging struct {
	Debug         bool `yaml:"debug" mapstructure:"debug"`
	RetainedFiles int  `yaml:"retained_files" mapstructure:"retained_files"` // default 5
}

// Config is the single configuration object named in §6.5.
type Config struct {
	Budget       Budget       `yaml:"budget" mapstructure:"budget"`
	HookOutput   HookOutput   `yaml:"hook_output" mapstructure:"hook_output"`
	Dream        Dream        `yaml:"dream" mapstructure:"dream"`
	MemoryLimits MemoryLimits `yaml:"memory_limits" mapstructure:"memory_limits"`
	Logging      Logging      `yaml:"logging" mapstructure:"logging"`
}

// Defaults returns §6.5's documented defaults.
func Defaults() Config {
	return Config{
		Budget:     Budget{ContextSize: 200_000, ContextPercent: 0.10},
		HookOutput: HookOutput{MaxOutputBytes: 25_000, MaxMemoryChars: 500},
		Dream: Dream{
			SimilarityThreshold: 0.7,
			MaxLinksPerMemory:   10,
			ProcessLimit:        100,
			LookbackDays:        7,
			RetentionDays:       30,
		},
		Logging: Logging{RetainedFiles: 5},
	}
}

// TokenBudget returns the session-start token budget: a percentage of the
// configured context window.
func (c Config) TokenBudget() int {
	return int(float64(c.Budget.ContextSize) * c.Budget.ContextPercent)
}

// Loader layers a YAML config file under env var overrides (prefix LTM_,
// nested keys joined with underscores, per viper convention) on top of
// Defaults().
type Loader struct {
	v *viper.Viper
}

// NewLoader builds a Loader seeded with Defaults() and ready to read path.
// path may be empty, in which case only defaults and env overrides apply.
func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetEnvPrefix("LTM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Defaults()
	v.SetDefault("budget.context_size", defaults.Budget.ContextSize)
	v.SetDefault("budget.context_percent", defaults.Budget.ContextPercent)
	v.SetDefault("hook_output.max_output_bytes", defaults.HookOutput.MaxOutputBytes)
	v.SetDefault("hook_output.max_memory_chars", defaults.HookOutput.MaxMemoryChars)
	v.SetDefault("dream.similarity_threshold", defaults.Dream.SimilarityThreshold)
	v.SetDefault("dream.max_links_per_memory", defaults.Dream.MaxLinksPerMemory)
	v.SetDefault("dream.process_limit", defaults.Dream.ProcessLimit)
	v.SetDefault("dream.lookback_days", defaults.Dream.LookbackDays)
	v.SetDefault("dream.retention_days", defaults.Dream.RetentionDays)
	v.SetDefault("logging.retained_files", defaults.Logging.RetainedFiles)

	if path != "" {
		v.SetConfigFile(path)
	}
	return &Loader{v: v}
}

// Load reads the config file (if one was set) and unmarshals the layered
// result. A missing file is not an error: defaults and env vars still apply.
func (l *Loader) Load() (Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: read %s: %w", l.v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// Watch invokes onChange with the freshly reloaded Config whenever the
// underlying file changes, per §6.5's live-reload support. Safe to call at
// most once per Loader.
func (l *Loader) Watch(onChange func(Config, error)) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := l.Load()
		onChange(cfg, err)
	})
	l.v.WatchConfig()
}
