package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wangmax2011/maxclaw/internal/config"
)

func TestLoad_FromMaxclawHome(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	mc := filepath.Join(home, ".maxclaw")
	if err := os.MkdirAll(mc, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(mc, "config.yaml"), []byte("logLevel: debug\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MAXCLAW_HOME", mc)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected logLevel=debug, got %q", cfg.LogLevel)
	}
}

func TestLoad_NeedsGenesisWhenNoConfig(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("MAXCLAW_HOME", home)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.NeedsGenesis {
		t.Fatalf("expected NeedsGenesis=true when config.yaml missing")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MAXCLAW_HOME", home)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.ScanPaths) != 4 {
		t.Fatalf("expected 4 default scan paths, got %d (%v)", len(cfg.ScanPaths), cfg.ScanPaths)
	}
	if cfg.DefaultOptions.TimeoutMS != 300000 {
		t.Fatalf("expected default timeout=300000, got %d", cfg.DefaultOptions.TimeoutMS)
	}
	if !cfg.AI.SummaryEnabled {
		t.Fatalf("expected ai.summaryEnabled default true")
	}
	if cfg.AI.SummaryModel != "claude-3-sonnet-20240229" {
		t.Fatalf("expected default summary model, got %q", cfg.AI.SummaryModel)
	}
	if cfg.Multiplex.MaxSessions != 5 {
		t.Fatalf("expected default maxSessions=5, got %d", cfg.Multiplex.MaxSessions)
	}
	if cfg.Multiplex.MaxSessionsPerProject != 2 {
		t.Fatalf("expected default maxSessionsPerProject=2, got %d", cfg.Multiplex.MaxSessionsPerProject)
	}
	if cfg.TUI.RefreshIntervalMS != 3000 {
		t.Fatalf("expected default tui refreshInterval=3000, got %d", cfg.TUI.RefreshIntervalMS)
	}
	if cfg.DataDir != cfg.HomeDir {
		t.Fatalf("expected dataDir to default to homeDir, got %q vs %q", cfg.DataDir, cfg.HomeDir)
	}
}

func TestLoad_EnvOverridesConfig(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("multiplex:\n  maxSessions: 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MAXCLAW_HOME", home)
	t.Setenv("MAXCLAW_MAX_SESSIONS", "9")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Multiplex.MaxSessions != 9 {
		t.Fatalf("expected env override maxSessions=9 got %d", cfg.Multiplex.MaxSessions)
	}
}

func TestLoad_ScanPathsFromYAML(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	yamlContent := "scanPaths:\n  - /srv/projects\n  - /srv/workspace\n"
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MAXCLAW_HOME", home)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.ScanPaths) != 2 || cfg.ScanPaths[0] != "/srv/projects" {
		t.Fatalf("unexpected scan paths: %v", cfg.ScanPaths)
	}
}

func TestAPIKey_YAMLOverridesEnv(t *testing.T) {
	cfg := config.Config{AI: config.AIConfig{APIKey: ""}}
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	if got := cfg.APIKey(); got != "env-key" {
		t.Fatalf("expected env-key, got %q", got)
	}

	cfg.AI.APIKey = "yaml-key"
	if got := cfg.APIKey(); got != "yaml-key" {
		t.Fatalf("expected yaml-key to take precedence, got %q", got)
	}
}

func TestLoad_AnthropicAPIKeyEnvPopulatesAI(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MAXCLAW_HOME", home)
	t.Setenv("ANTHROPIC_API_KEY", "from-env")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AI.APIKey != "from-env" {
		t.Fatalf("expected ai.apiKey=from-env, got %q", cfg.AI.APIKey)
	}
}

func TestAddScanPath_AppendsAndDedupes(t *testing.T) {
	homeDir := t.TempDir()
	configPath := config.ConfigPath(homeDir)
	if err := os.WriteFile(configPath, []byte("logLevel: info\n"), 0o644); err != nil {
		t.Fatalf("write initial config: %v", err)
	}

	if err := config.AddScanPath(homeDir, "/new/path"); err != nil {
		t.Fatalf("AddScanPath: %v", err)
	}
	if err := config.AddScanPath(homeDir, "/new/path"); err != nil {
		t.Fatalf("AddScanPath dup: %v", err)
	}

	t.Setenv("MAXCLAW_HOME", homeDir)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	count := 0
	for _, p := range cfg.ScanPaths {
		if p == "/new/path" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected /new/path exactly once, got %d occurrences in %v", count, cfg.ScanPaths)
	}
}

func TestRemoveScanPath(t *testing.T) {
	homeDir := t.TempDir()
	configPath := config.ConfigPath(homeDir)
	if err := os.WriteFile(configPath, []byte("scanPaths:\n  - /a\n  - /b\n"), 0o644); err != nil {
		t.Fatalf("write initial config: %v", err)
	}

	if err := config.RemoveScanPath(homeDir, "/a"); err != nil {
		t.Fatalf("RemoveScanPath: %v", err)
	}

	t.Setenv("MAXCLAW_HOME", homeDir)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	for _, p := range cfg.ScanPaths {
		if p == "/a" {
			t.Fatalf("expected /a removed, got %v", cfg.ScanPaths)
		}
	}
}

func TestFingerprint_StableAcrossEqualConfigs(t *testing.T) {
	a := config.Config{ScanPaths: []string{"/x"}, Multiplex: config.MultiplexConfig{MaxSessions: 5, MaxSessionsPerProject: 2}}
	b := config.Config{ScanPaths: []string{"/x"}, Multiplex: config.MultiplexConfig{MaxSessions: 5, MaxSessionsPerProject: 2}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("expected equal configs to fingerprint identically")
	}
}
