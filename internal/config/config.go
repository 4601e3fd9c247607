// Package config loads and normalizes the daemon's YAML configuration,
// following the reference daemon's defaultConfig()/normalize() pipeline.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// AIConfig controls optional AI-assisted session summarization.
type AIConfig struct {
	SummaryEnabled bool   `yaml:"summaryEnabled"`
	SummaryModel   string `yaml:"summaryModel"`
	APIKey         string `yaml:"apiKey"`
}

// MultiplexConfig bounds concurrent child-process sessions.
type MultiplexConfig struct {
	MaxSessions           int `yaml:"maxSessions"`
	MaxSessionsPerProject int `yaml:"maxSessionsPerProject"`
}

// TUIConfig carries hints consumed by terminal UI clients, not the daemon
// itself.
type TUIConfig struct {
	RefreshIntervalMS int `yaml:"refreshInterval"`
}

// DefaultOptions holds per-session defaults applied when a start request
// does not override them.
type DefaultOptions struct {
	TimeoutMS int `yaml:"timeout"`
}

// ObservabilityConfig toggles OpenTelemetry tracing/metrics export.
type ObservabilityConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	// ScanPaths lists the roots discovery walks looking for projects.
	ScanPaths []string `yaml:"scanPaths"`

	DefaultOptions DefaultOptions `yaml:"defaultOptions"`

	// DataDir overrides the data root; empty uses HomeDir.
	DataDir string `yaml:"dataDir"`

	AI        AIConfig            `yaml:"ai"`
	Multiplex MultiplexConfig     `yaml:"multiplex"`
	TUI       TUIConfig           `yaml:"tui"`
	Obs       ObservabilityConfig `yaml:"observability"`

	LogLevel string `yaml:"logLevel"`

	// HeartbeatIntervalSeconds controls the daemon's liveness heartbeat.
	HeartbeatIntervalSeconds int `yaml:"heartbeatIntervalSeconds"`

	NeedsGenesis bool `yaml:"-"`
}

// APIKey returns the effective Anthropic API key, preferring an explicit
// config value and falling back to the ANTHROPIC_API_KEY env var.
func (c Config) APIKey() string {
	if c.AI.APIKey != "" {
		return c.AI.APIKey
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// loadRawConfig reads config.yaml into a generic map, returning an empty map
// if the file doesn't exist.
func loadRawConfig(path string) (map[string]interface{}, error) {
	raw := make(map[string]interface{})
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse config.yaml: %w", err)
		}
	}
	return raw, nil
}

// saveRawConfig marshals and writes a generic map back to config.yaml.
func saveRawConfig(path string, raw map[string]interface{}) error {
	out, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal config.yaml: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

// AddScanPath appends a scan path to config.yaml, preserving other settings.
// WARNING: round-trips through yaml.Marshal — strips comments, may reorder fields.
func AddScanPath(homeDir, path string) error {
	configPath := ConfigPath(homeDir)
	raw, err := loadRawConfig(configPath)
	if err != nil {
		return err
	}
	existing, _ := raw["scanPaths"].([]interface{})
	for _, p := range existing {
		if s, ok := p.(string); ok && s == path {
			return nil
		}
	}
	raw["scanPaths"] = append(existing, path)
	return saveRawConfig(configPath, raw)
}

// RemoveScanPath removes a scan path from config.yaml, preserving other settings.
func RemoveScanPath(homeDir, path string) error {
	configPath := ConfigPath(homeDir)
	raw, err := loadRawConfig(configPath)
	if err != nil {
		return err
	}
	existing, _ := raw["scanPaths"].([]interface{})
	kept := existing[:0]
	for _, p := range existing {
		if s, ok := p.(string); ok && s == path {
			continue
		}
		kept = append(kept, p)
	}
	raw["scanPaths"] = kept
	return saveRawConfig(configPath, raw)
}

// Fingerprint returns a stable hash of the active config.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "scan=%v|timeout=%d|maxSessions=%d|maxPerProject=%d|log=%s",
		c.ScanPaths, c.DefaultOptions.TimeoutMS, c.Multiplex.MaxSessions,
		c.Multiplex.MaxSessionsPerProject, c.LogLevel)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

func defaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		ScanPaths: []string{
			filepath.Join(home, "projects"),
			filepath.Join(home, "workspace"),
			filepath.Join(home, "code"),
			filepath.Join(home, "src"),
		},
		DefaultOptions: DefaultOptions{TimeoutMS: 300000},
		AI: AIConfig{
			SummaryEnabled: true,
			SummaryModel:   "claude-3-sonnet-20240229",
		},
		Multiplex: MultiplexConfig{
			MaxSessions:           5,
			MaxSessionsPerProject: 2,
		},
		TUI:                      TUIConfig{RefreshIntervalMS: 3000},
		LogLevel:                 "info",
		HeartbeatIntervalSeconds: 30,
	}
}

// HomeDir returns the MaxClaw data/config root, honoring the MAXCLAW_HOME
// override.
func HomeDir() string {
	if override := os.Getenv("MAXCLAW_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".maxclaw")
}

func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create maxclaw home: %w", err)
	}

	configPath := filepath.Join(cfg.HomeDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.NeedsGenesis = true
		} else {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if len(cfg.ScanPaths) == 0 {
		cfg.ScanPaths = defaultConfig().ScanPaths
	}
	if cfg.DefaultOptions.TimeoutMS <= 0 {
		cfg.DefaultOptions.TimeoutMS = 300000
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfg.HomeDir
	}
	if cfg.AI.SummaryModel == "" {
		cfg.AI.SummaryModel = "claude-3-sonnet-20240229"
	}
	if cfg.Multiplex.MaxSessions <= 0 {
		cfg.Multiplex.MaxSessions = 5
	}
	if cfg.Multiplex.MaxSessionsPerProject <= 0 {
		cfg.Multiplex.MaxSessionsPerProject = 2
	}
	if cfg.TUI.RefreshIntervalMS <= 0 {
		cfg.TUI.RefreshIntervalMS = 3000
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HeartbeatIntervalSeconds <= 0 {
		cfg.HeartbeatIntervalSeconds = 30
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("MAXCLAW_DATA_DIR"); raw != "" {
		cfg.DataDir = raw
	}
	if raw := os.Getenv("MAXCLAW_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("MAXCLAW_HEARTBEAT_INTERVAL_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.HeartbeatIntervalSeconds = v
		}
	}
	if raw := os.Getenv("MAXCLAW_MAX_SESSIONS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Multiplex.MaxSessions = v
		}
	}
	if raw := os.Getenv("MAXCLAW_MAX_SESSIONS_PER_PROJECT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Multiplex.MaxSessionsPerProject = v
		}
	}
	if raw := os.Getenv("ANTHROPIC_API_KEY"); raw != "" && cfg.AI.APIKey == "" {
		cfg.AI.APIKey = raw
	}
	if raw := os.Getenv("MAXCLAW_SUMMARY_MODEL"); raw != "" {
		cfg.AI.SummaryModel = raw
	}
	if raw := os.Getenv("MAXCLAW_OTLP_ENDPOINT"); raw != "" {
		cfg.Obs.Enabled = true
		cfg.Obs.OTLPEndpoint = raw
	}
}
