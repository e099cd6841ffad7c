package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	clearInfluxEnv(t)
	yaml := `
agent:
  interval: 10s
  window_size: 30
  lookback: 40s
  signals:
    a: {measurement: setpoint1, field: value}
    b: {measurement: process1, field: value}
    c: {measurement: setpoint2, field: value}
    d: {measurement: process2, field: value}
  loops:
    loop1: {tag_key: line, tag_value: a}
    loop2: {tag_key: line, tag_value: b}
influx:
  url: "http://localhost:8086"
  org: plant
  bucket: telemetry
sink:
  spool:
    path: /var/lib/ctrlperf/spool
    compression_level: 2
`
	cfg := loadFromString(t, yaml)

	if cfg.Agent.Interval != 10*time.Second {
		t.Errorf("interval: got %v", cfg.Agent.Interval)
	}
	if cfg.Agent.WindowSize != 30 {
		t.Errorf("window_size: got %d", cfg.Agent.WindowSize)
	}
	if cfg.Agent.Lookback != 40*time.Second {
		t.Errorf("lookback: got %v", cfg.Agent.Lookback)
	}
	if cfg.Agent.Signals.C.Measurement != "setpoint2" {
		t.Errorf("signals.c.measurement: got %q", cfg.Agent.Signals.C.Measurement)
	}
	if cfg.Agent.Loops.Loop2.TagValue != "b" {
		t.Errorf("loops.loop2.tag_value: got %q", cfg.Agent.Loops.Loop2.TagValue)
	}
	if cfg.Influx.Bucket != "telemetry" {
		t.Errorf("bucket: got %q", cfg.Influx.Bucket)
	}
	if !cfg.Sink.Spool.Enabled() {
		t.Error("spool should be enabled when path is set")
	}
	if cfg.Sink.Spool.CompressionLevel != 2 {
		t.Errorf("compression_level: got %d", cfg.Sink.Spool.CompressionLevel)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearInfluxEnv(t)
	yaml := `
influx:
  url: "http://localhost:8086"
  org: plant
  bucket: telemetry
`
	cfg := loadFromString(t, yaml)

	if cfg.Agent.Interval != DefaultInterval {
		t.Errorf("default interval: got %v, want %v", cfg.Agent.Interval, DefaultInterval)
	}
	if cfg.Agent.WindowSize != DefaultWindowSize {
		t.Errorf("default window_size: got %d, want %d", cfg.Agent.WindowSize, DefaultWindowSize)
	}
	if cfg.Agent.Lookback != DefaultLookback {
		t.Errorf("default lookback: got %v, want %v", cfg.Agent.Lookback, DefaultLookback)
	}
	sig := cfg.Agent.Signals.List()
	wantMeas := [4]string{"test-topic", "test-topic2", "test-topic3", "test-topic4"}
	for i := range sig {
		if sig[i].Measurement != wantMeas[i] || sig[i].Field != "field3" {
			t.Errorf("default signal %d: got %+v", i, sig[i])
		}
	}
	if cfg.Agent.Loops.Loop1.TagKey != "opcua" || cfg.Agent.Loops.Loop2.TagKey != "s7conn" {
		t.Errorf("default loop tags: got %+v", cfg.Agent.Loops)
	}
	if cfg.Influx.TokenEnv != DefaultTokenEnv {
		t.Errorf("default token_env: got %q", cfg.Influx.TokenEnv)
	}
	if cfg.Sink.Spool.Enabled() {
		t.Error("spool should be disabled by default")
	}
	if cfg.Status.HTTPPort != DefaultHTTPPort {
		t.Errorf("default http_port: got %d, want %d", cfg.Status.HTTPPort, DefaultHTTPPort)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvURL, "https://influx.example.com")
	t.Setenv(EnvOrg, "env-org")
	t.Setenv(EnvBucket, "env-bucket")

	yaml := `
influx:
  url: "http://localhost:8086"
  org: plant
  bucket: telemetry
`
	cfg := loadFromString(t, yaml)
	if cfg.Influx.URL != "https://influx.example.com" {
		t.Errorf("url: got %q", cfg.Influx.URL)
	}
	if cfg.Influx.Org != "env-org" || cfg.Influx.Bucket != "env-bucket" {
		t.Errorf("org/bucket: got %q/%q", cfg.Influx.Org, cfg.Influx.Bucket)
	}
}

func TestLoad_EnvSuppliesRequired(t *testing.T) {
	t.Setenv(EnvURL, "http://influx:8086")
	t.Setenv(EnvOrg, "plant")
	t.Setenv(EnvBucket, "telemetry")

	cfg := loadFromString(t, "agent:\n  interval: 1s\n")
	if cfg.Influx.URL != "http://influx:8086" {
		t.Errorf("url: got %q", cfg.Influx.URL)
	}
}

func TestLoad_MissingBucket(t *testing.T) {
	clearInfluxEnv(t)
	yaml := `
influx:
  url: "http://localhost:8086"
  org: plant
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for missing bucket, got nil")
	}
}

func TestLoad_WindowTooSmall(t *testing.T) {
	yaml := `
agent:
  window_size: 1
influx: {url: "http://localhost:8086", org: plant, bucket: telemetry}
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for window_size 1, got nil")
	}
}

func TestLoad_InvalidEnums(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"log level", "agent:\n  log_level: verbose\n"},
		{"webhook type", "alerts:\n  webhooks:\n    - type: pager\n"},
		{"severity", "alerts:\n  rules:\n    - {name: r, condition: ise1 > 1, severity: fatal}\n"},
		{"rule without condition", "alerts:\n  rules:\n    - {name: r}\n"},
		{"spool level", "sink:\n  spool: {path: /tmp/x, compression_level: 9}\n"},
		{"empty signal", "agent:\n  signals:\n    b: {measurement: \"\", field: x}\n"},
		{"auth mode", "status:\n  auth: {mode: mtls}\n"},
		{"apikey without env", "status:\n  auth: {mode: apikey}\n"},
		{"apikey env unset", "status:\n  auth: {mode: apikey, key_env: CTRLPERF_TEST_UNSET_KEY}\n"},
		{"duplicate signal", "agent:\n  signals:\n    c: {measurement: test-topic, field: field3}\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := tc.body + "influx: {url: \"http://localhost:8086\", org: plant, bucket: telemetry}\n"
			if _, err := loadStringErr(t, body); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	clearInfluxEnv(t)
	cfg, err := Load(filepath.Join("..", "..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("Load(config.example.yaml): %v", err)
	}
	if len(cfg.Alerts.Rules) != 2 {
		t.Errorf("alert rules: got %d, want 2", len(cfg.Alerts.Rules))
	}
	if !cfg.Sink.Spool.Enabled() {
		t.Error("spool should be enabled in the example")
	}
	if cfg.Status.Auth.EffectiveHeader() != "X-API-Key" {
		t.Errorf("auth header: got %q", cfg.Status.Auth.EffectiveHeader())
	}
}

func TestInfluxConfig_Token(t *testing.T) {
	t.Setenv("TEST_INFLUX_TOKEN", "s3cr3t")
	c := InfluxConfig{TokenEnv: "TEST_INFLUX_TOKEN"}
	if got := c.Token(); got != "s3cr3t" {
		t.Errorf("Token(): got %q, want %q", got, "s3cr3t")
	}
	if got := (InfluxConfig{}).Token(); got != "" {
		t.Errorf("Token() with no TokenEnv: got %q, want empty", got)
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("TEAMS_URL", "https://teams.example.com/webhook")
	w := WebhookConfig{Type: "teams", URLEnv: "TEAMS_URL"}
	if got := w.URL(); got != "https://teams.example.com/webhook" {
		t.Errorf("URL(): got %q", got)
	}
}

func TestLoad_APIKeyResolved(t *testing.T) {
	clearInfluxEnv(t)
	t.Setenv("CTRLPERF_TEST_KEY", "s3cret")
	cfg := loadFromString(t, `
influx: {url: "http://localhost:8086", org: plant, bucket: telemetry}
status:
  auth: {mode: apikey, key_env: CTRLPERF_TEST_KEY}
`)
	if cfg.Status.Auth.Key() != "s3cret" {
		t.Errorf("Key(): got %q", cfg.Status.Auth.Key())
	}

	t.Setenv("CTRLPERF_TEST_KEY", "")
	if _, err := loadStringErr(t, `
influx: {url: "http://localhost:8086", org: plant, bucket: telemetry}
status:
  auth: {mode: apikey, key_env: CTRLPERF_TEST_KEY}
`); err == nil {
		t.Error("expected an error for an empty api key")
	}
}

func TestLoad_DistinctSignals(t *testing.T) {
	clearInfluxEnv(t)
	// Same measurement with a different field is a different series.
	cfg := loadFromString(t, `
influx: {url: "http://localhost:8086", org: plant, bucket: telemetry}
agent:
  signals:
    a: {measurement: line1, field: setpoint}
    b: {measurement: line1, field: actual}
    c: {measurement: line2, field: setpoint}
    d: {measurement: line2, field: actual}
`)
	if cfg.Agent.Signals.B.Field != "actual" {
		t.Errorf("signal b = %+v", cfg.Agent.Signals.B)
	}

	_, err := loadStringErr(t, `
influx: {url: "http://localhost:8086", org: plant, bucket: telemetry}
agent:
  signals:
    a: {measurement: line1, field: setpoint}
    b: {measurement: line1, field: actual}
    c: {measurement: line2, field: setpoint}
    d: {measurement: line1, field: actual}
`)
	if err == nil || !strings.Contains(err.Error(), "agent.signals.d") {
		t.Errorf("duplicate signal error = %v, want one naming agent.signals.d", err)
	}
}

func TestAuthConfig(t *testing.T) {
	t.Setenv("STATUS_KEY", "k1")
	a := AuthConfig{Mode: "apikey", KeyEnv: "STATUS_KEY"}
	if got := a.Key(); got != "k1" {
		t.Errorf("Key(): got %q, want k1", got)
	}
	if got := a.EffectiveHeader(); got != "X-API-Key" {
		t.Errorf("EffectiveHeader(): got %q, want X-API-Key", got)
	}
	a.Header = "Authorization-Key"
	if got := a.EffectiveHeader(); got != "Authorization-Key" {
		t.Errorf("EffectiveHeader(): got %q", got)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("CTRLPERF_TEST_VAR=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CTRLPERF_TEST_VAR", "")
	os.Unsetenv("CTRLPERF_TEST_VAR")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	if got := os.Getenv("CTRLPERF_TEST_VAR"); got != "from-file" {
		t.Errorf("CTRLPERF_TEST_VAR = %q, want from-file", got)
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("LoadEnvFile(missing) error = %v, want nil", err)
	}
}

func TestWatch_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	base := "influx: {url: \"http://localhost:8086\", org: plant, bucket: telemetry}\n"
	if err := os.WriteFile(path, []byte(base), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Config, 4)
	go func() {
		_ = Watch(ctx, path, func(c *Config) { got <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	updated := base + "agent:\n  window_size: 10\n"
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	// A single save can surface as several events; wait for the final content.
	for {
		select {
		case c := <-got:
			if c.Agent.WindowSize == 10 {
				return
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for reload with window_size 10")
		}
	}
}

// clearInfluxEnv blanks the store overrides so host settings cannot leak in.
func clearInfluxEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvURL, "")
	t.Setenv(EnvOrg, "")
	t.Setenv(EnvBucket, "")
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

func TestWatch_IgnoresSiblingsAndBadSaves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	base := "influx: {url: \"http://localhost:8086\", org: plant, bucket: telemetry}\n"
	if err := os.WriteFile(path, []byte(base), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Config, 4)
	go func() {
		_ = Watch(ctx, path, func(c *Config) { got <- c })
	}()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o600); err != nil {
		t.Fatalf("write sibling: %v", err)
	}
	if err := os.WriteFile(path, []byte("agent: [not a map\n"), 0o600); err != nil {
		t.Fatalf("write bad config: %v", err)
	}
	select {
	case c := <-got:
		t.Fatalf("unexpected reload: %+v", c.Agent)
	case <-time.After(3 * reloadDelay):
	}

	if err := os.WriteFile(path, []byte(base+"agent:\n  window_size: 12\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	select {
	case c := <-got:
		if c.Agent.WindowSize != 12 {
			t.Errorf("window_size: got %d, want 12", c.Agent.WindowSize)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for reload")
	}
}
