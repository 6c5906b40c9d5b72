package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
targets:
  - https://a.example/health
  - https://b.example/health
interval: 10
duration: 120
output_format: jsonl
ingest: https://ingest.example.com/reports
share_tls_inspection: true
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("failed to load YAML config: %v", err)
	}
	if len(cfg.Targets) != 2 || cfg.Targets[1] != "https://b.example/health" {
		t.Errorf("unexpected targets: %v", cfg.Targets)
	}
	if cfg.Interval != 10 || cfg.Duration != 120 {
		t.Errorf("expected interval 10 and duration 120, got %d and %d", cfg.Interval, cfg.Duration)
	}
	if cfg.OutputFormat != "jsonl" {
		t.Errorf("expected output_format jsonl, got %s", cfg.OutputFormat)
	}
	if !cfg.ShareTLSInspection {
		t.Error("expected share_tls_inspection to be set")
	}
	if cfg.RequestTimeout != 15 {
		t.Errorf("expected default request_timeout 15, got %d", cfg.RequestTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"targets": ["https://a.example/health"],
		"interval": 5,
		"metrics_addr": ":8080",
		"run": "nightly"
	}`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("failed to load JSON config: %v", err)
	}
	if cfg.Interval != 5 {
		t.Errorf("expected interval 5, got %d", cfg.Interval)
	}
	if cfg.Duration != 3600 {
		t.Errorf("expected default duration 3600, got %d", cfg.Duration)
	}
	if cfg.MetricsAddr != ":8080" {
		t.Errorf("expected metrics_addr :8080, got %s", cfg.MetricsAddr)
	}
	if cfg.Run != "nightly" {
		t.Errorf("expected run nightly, got %s", cfg.Run)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFromFile(writeFile(t, "config.toml", "interval = 5")); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := LoadFromFile(writeFile(t, "config.yaml", "interval: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	if cfg.Interval != 60 || cfg.Duration != 3600 {
		t.Errorf("unexpected schedule defaults: %d/%d", cfg.Interval, cfg.Duration)
	}
	if cfg.TLSTimeout != 8 {
		t.Errorf("expected tls_timeout 8, got %d", cfg.TLSTimeout)
	}
	if cfg.OutputFormat != "csv" {
		t.Errorf("expected csv, got %s", cfg.OutputFormat)
	}
	if cfg.Run == "" || cfg.UA == "" || cfg.Outfile == "" {
		t.Error("expected run, ua and outfile defaults")
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("metrics should be disabled by default, got %s", cfg.MetricsAddr)
	}
	if cfg.RedisQueueKey != "uptime:targets" {
		t.Errorf("unexpected queue key %s", cfg.RedisQueueKey)
	}
}

func TestDefaultOutfile(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 30, 5, 0, time.UTC)
	if got := DefaultOutfile(now); got != "./261014_093005-healthcheckdata.csv" {
		t.Errorf("unexpected outfile %s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no targets", func(c *Config) { c.Targets = nil }, true},
		{"targets file only", func(c *Config) { c.Targets = nil; c.TargetsFile = "t.txt" }, false},
		{"redis queue only", func(c *Config) { c.Targets = nil; c.RedisQueueAddr = "localhost:6379" }, false},
		{"bad url", func(c *Config) { c.Targets = []string{"not a url"} }, true},
		{"zero interval", func(c *Config) { c.Interval = 0 }, true},
		{"negative duration", func(c *Config) { c.Duration = -1 }, true},
		{"bad format", func(c *Config) { c.OutputFormat = "xml" }, true},
		{"bad ingest", func(c *Config) { c.Ingest = "::" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Targets: []string{"https://a.example/health"}}
			cfg.SetDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMergeWithFlags(t *testing.T) {
	cfg := Config{Targets: []string{"https://file.example"}, Interval: 60}
	cfg.SetDefaults()

	cfg.MergeWithFlags(map[string]interface{}{
		"targets":       "https://a.example, https://b.example,",
		"interval":      15,
		"duration":      0,
		"output_format": "json",
		"otel_insecure": true,
	})

	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.Targets, want) {
		t.Errorf("expected %v, got %v", want, cfg.Targets)
	}
	if cfg.Interval != 15 {
		t.Errorf("expected interval 15, got %d", cfg.Interval)
	}
	if cfg.Duration != 3600 {
		t.Errorf("zero flag must not override duration, got %d", cfg.Duration)
	}
	if cfg.OutputFormat != "json" || !cfg.OTELInsecure {
		t.Errorf("flags not merged: %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_QUEUE_ADDR", "redis:6379")
	t.Setenv("REDIS_QUEUE_KEY", "custom:key")
	t.Setenv("INGEST_URL", "https://ingest.example")

	var cfg Config
	cfg.LoadFromEnv()
	if cfg.RedisQueueAddr != "redis:6379" || cfg.RedisQueueKey != "custom:key" || cfg.Ingest != "https://ingest.example" {
		t.Errorf("env not loaded: %+v", cfg)
	}
}

func TestLoadTargetsFile(t *testing.T) {
	path := writeFile(t, "targets.txt", "# prod\nhttps://a.example/health\n\n  https://b.example/health  \n")
	got, err := LoadTargetsFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://a.example/health", "https://b.example/health"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestIntervalDuration(t *testing.T) {
	cfg := Config{Interval: 10, Duration: 90, RequestTimeout: 3, TLSTimeout: 2}
	if cfg.IntervalDuration() != 10*time.Second || cfg.RunDuration() != 90*time.Second {
		t.Error("unexpected schedule durations")
	}
	if cfg.RequestTimeoutDuration() != 3*time.Second || cfg.TLSTimeoutDuration() != 2*time.Second {
		t.Error("unexpected timeout durations")
	}
}

func TestMergeWithFlags_ExplicitFalseWins(t *testing.T) {
	path := writeFile(t, "config.yaml", "targets: [https://a.example]\nshare_tls_inspection: true\notel_insecure: true\n")
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	cfg.MergeWithFlags(map[string]interface{}{})
	if !cfg.ShareTLSInspection || !cfg.OTELInsecure {
		t.Fatal("unset flags must keep file values")
	}

	cfg.MergeWithFlags(map[string]interface{}{"share_tls_inspection": false, "otel_insecure": false})
	if cfg.ShareTLSInspection {
		t.Error("-share_tls_inspection=false should override the file")
	}
	if cfg.OTELInsecure {
		t.Error("-otel_insecure=false should override the file")
	}
}

func TestFilterTargets(t *testing.T) {
	valid, invalid := FilterTargets([]string{
		"https://a.example/health",
		"a.example/health",
		"not a url",
		"http://10.0.0.1:8080/health",
	})
	wantValid := []string{"https://a.example/health", "http://10.0.0.1:8080/health"}
	if !reflect.DeepEqual(valid, wantValid) {
		t.Errorf("expected valid %v, got %v", wantValid, valid)
	}
	if len(invalid) != 2 {
		t.Errorf("expected 2 invalid targets, got %v", invalid)
	}
}
