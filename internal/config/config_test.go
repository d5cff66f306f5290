package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shepherd/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("missing file reported as existing")
	}
	if resolved == "" {
		t.Fatal("resolved path should still be reported")
	}
	if cfg.Scheduler.MaxRunners != 5 || cfg.Scheduler.FullCheckInterval != 300 {
		t.Fatalf("defaults not applied: %+v", cfg.Scheduler)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("logging defaults not applied: %+v", cfg.Logging)
	}
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, `
[paths]
records_dir = "`+base+`/records"
log_dir = "`+base+`/logs"
state_dir = "`+base+`/state"

[scheduler]
max_runners = 2
query_filter = "  \"WIP\"  "

[logging]
format = "JSON"
level = "Debug"
`)
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("existing file reported as missing")
	}
	if cfg.Scheduler.MaxRunners != 2 {
		t.Fatalf("override not applied: %d", cfg.Scheduler.MaxRunners)
	}
	if cfg.Scheduler.HookInterval != 1 {
		t.Fatalf("unset field should keep its default: %d", cfg.Scheduler.HookInterval)
	}
	if cfg.Scheduler.QueryFilter != `"WIP"` {
		t.Fatalf("query filter not trimmed: %q", cfg.Scheduler.QueryFilter)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging fields not normalized: %+v", cfg.Logging)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			"negative interval",
			"[scheduler]\nhook_interval = -1\n",
			"hook_interval",
		},
		{
			"bad filter",
			"[scheduler]\nquery_filter = \"bareword\"\n",
			"query_filter",
		},
		{
			"bad log format",
			"[logging]\nformat = \"xml\"\n",
			"logging.format",
		},
	}
	for _, tc := range cases {
		path := writeConfig(t, tc.content)
		_, _, _, err := config.Load(path)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.wantMsg) {
			t.Fatalf("%s: error %q should mention %q", tc.name, err, tc.wantMsg)
		}
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = "/var/log/shepherd"
	cfg.Paths.StateDir = "/var/lib/shepherd"

	if got := cfg.PIDFilePath(); got != "/var/log/shepherd/shepherdd.pid" {
		t.Fatalf("unexpected pid path: %q", got)
	}
	if got := cfg.StatusFilePath(); got != "/var/log/shepherd/status.json" {
		t.Fatalf("unexpected status path: %q", got)
	}
	if got := cfg.CheckCachePath(); got != "/var/lib/shepherd/shepherd.db" {
		t.Fatalf("unexpected cache path: %q", got)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should parse: %v", err)
	}
	if !exists {
		t.Fatal("sample config not found after writing")
	}
	if cfg.Scheduler.MaxRunners != 5 {
		t.Fatalf("sample config drifted from defaults: %+v", cfg.Scheduler)
	}
}
