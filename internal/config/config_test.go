package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("data_dir: /tmp/x\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("data_dir: ./data\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("anthropic:\n  api_key: ${JEEVES_TEST_KEY}\n"), 0600)
	os.Setenv("JEEVES_TEST_KEY", "secret123")
	defer os.Unsetenv("JEEVES_TEST_KEY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Anthropic.APIKey != "secret123" {
		t.Errorf("api_key = %q, want %q", cfg.Anthropic.APIKey, "secret123")
	}
}

func TestLoad_InlineSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("anthropic:\n  api_key: sk-ant-test-key\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-test-key" {
		t.Errorf("api_key = %q, want %q", cfg.Anthropic.APIKey, "sk-ant-test-key")
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("heartbeat:\n  interval_minutes: 15\n"), 0600)
	os.Setenv("HEARTBEAT_INTERVAL_MINUTES", "45")
	defer os.Unsetenv("HEARTBEAT_INTERVAL_MINUTES")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Heartbeat.IntervalMinutes != 45 {
		t.Errorf("interval_minutes = %d, want 45 (env override)", cfg.Heartbeat.IntervalMinutes)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Default()
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.DataDir)
	}
	if cfg.Heartbeat.IntervalMinutes != 30 {
		t.Errorf("Heartbeat.IntervalMinutes = %d, want 30", cfg.Heartbeat.IntervalMinutes)
	}
	if cfg.Heartbeat.ActiveStart != "08:00" || cfg.Heartbeat.ActiveEnd != "23:00" {
		t.Errorf("active hours = %s-%s, want 08:00-23:00", cfg.Heartbeat.ActiveStart, cfg.Heartbeat.ActiveEnd)
	}
	if cfg.Anthropic.Model == "" {
		t.Error("expected a default Anthropic model")
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "shout"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for bad log level")
	}
}

func TestValidate_BadActiveHours(t *testing.T) {
	cfg := Default()
	cfg.Heartbeat.ActiveStart = "25:00"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for bad active_start")
	}
}

func TestValidate_IntervalTooLow(t *testing.T) {
	cfg := Default()
	cfg.Heartbeat.IntervalMinutes = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for interval_minutes 0")
	}
}

func TestMinuteOfDay(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"08:00", 480},
		{"23:59", 1439},
	}
	for _, tt := range tests {
		got, err := MinuteOfDay(tt.in)
		if err != nil {
			t.Fatalf("MinuteOfDay(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("MinuteOfDay(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMinuteOfDay_Invalid(t *testing.T) {
	if _, err := MinuteOfDay("not-a-time"); err == nil {
		t.Fatal("expected error for malformed HH:MM")
	}
}
