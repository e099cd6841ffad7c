package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultInterval          = 5 * time.Second
	DefaultWindowSize        = 60
	DefaultLookback          = 65 * time.Second
	DefaultLogLevel          = "info"
	DefaultTokenEnv          = "INFLUX_TOKEN"
	DefaultInfluxTimeout     = 10 * time.Second
	DefaultCompressionLevel  = 3
	DefaultReplayInterval    = 30 * time.Second
	DefaultReplayBatch       = 100
	DefaultHTTPPort          = 8080
	DefaultBroadcastInterval = 5 * time.Second
	DefaultHistory           = 120
)

// Environment variables that override the store settings in the file.
const (
	EnvURL    = "INFLUX_URL"
	EnvOrg    = "INFLUX_ORG"
	EnvBucket = "INFLUX_BUCKET"
)

// Config is the top-level configuration of the agent.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Agent  AgentConfig  `yaml:"agent"`
	Influx InfluxConfig `yaml:"influx"`
	Sink   SinkConfig   `yaml:"sink"`
	Status StatusConfig `yaml:"status"`
	Alerts AlertsConfig `yaml:"alerts"`
}

// AgentConfig holds the analysis cycle settings.
type AgentConfig struct {
	// Interval controls how often an analysis cycle is started.
	Interval time.Duration `yaml:"interval"`

	// WindowSize is the number of most recent samples kept per signal.
	WindowSize int `yaml:"window_size"`

	// Lookback is the range of the fetch query, relative to now.
	Lookback time.Duration `yaml:"lookback"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Signals names the four series the agent pulls.
	Signals SignalsConfig `yaml:"signals"`

	// Loops configures how the two derived error signals are tagged on write.
	Loops LoopsConfig `yaml:"loops"`
}

// SignalRef identifies one series in the store.
type SignalRef struct {
	Measurement string `yaml:"measurement"`
	Field       string `yaml:"field"`
}

// SignalsConfig holds the reference (A, C) and measured (B, D) signals of
// both control loops. Loop 1 is A - B, loop 2 is C - D.
type SignalsConfig struct {
	A SignalRef `yaml:"a"`
	B SignalRef `yaml:"b"`
	C SignalRef `yaml:"c"`
	D SignalRef `yaml:"d"`
}

// List returns the signals in A, B, C, D order.
func (s SignalsConfig) List() [4]SignalRef {
	return [4]SignalRef{s.A, s.B, s.C, s.D}
}

// LoopTag is the single tag attached to every point written for a loop.
type LoopTag struct {
	TagKey   string `yaml:"tag_key"`
	TagValue string `yaml:"tag_value"`
}

// LoopsConfig holds the output tags of both loops.
type LoopsConfig struct {
	Loop1 LoopTag `yaml:"loop1"`
	Loop2 LoopTag `yaml:"loop2"`
}

// InfluxConfig holds the store connection settings.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`

	// TokenEnv is the name of the environment variable that holds the token.
	TokenEnv string `yaml:"token_env"`

	// Timeout bounds every HTTP request to the store.
	Timeout time.Duration `yaml:"timeout"`

	TLS TLSConfig `yaml:"tls"`
}

// Token returns the API token resolved from the environment.
func (c InfluxConfig) Token() string {
	if c.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.TokenEnv)
}

// TLSConfig holds TLS dial options for the store.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// SinkConfig configures the result write path.
type SinkConfig struct {
	Spool SpoolConfig `yaml:"spool"`
}

// SpoolConfig configures the on-disk buffer for batches the store rejected.
// An empty Path disables spooling.
type SpoolConfig struct {
	Path string `yaml:"path"`

	// CompressionLevel is the zstd level 1 (fastest) to 4 (best).
	CompressionLevel int `yaml:"compression_level"`

	// ReplayInterval is how often spooled batches are retried.
	ReplayInterval time.Duration `yaml:"replay_interval"`

	// ReplayBatch caps the number of batches sent per replay pass.
	ReplayBatch int `yaml:"replay_batch"`
}

// Enabled reports whether spooling is configured.
func (s SpoolConfig) Enabled() bool { return s.Path != "" }

// StatusConfig configures the read-only HTTP surface.
type StatusConfig struct {
	// HTTPPort serves the REST API, /metrics and the WebSocket stream.
	// Zero disables the listener.
	HTTPPort int `yaml:"http_port"`

	// BroadcastInterval controls how often WebSocket clients receive the
	// latest report.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// History is the number of cycle reports kept in memory.
	History int `yaml:"history"`

	// Auth protects the status endpoints.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig controls client authentication on the status server.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "X-API-Key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "X-API-Key"
}

// AlertsConfig holds all alerting rules and webhook targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines a threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier.
	Name string `yaml:"name"`

	// Condition is an expression like "ise1 > 50" or "std2 >= 1.5".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load env file: %w", err)
	}
	return nil
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults, then the INFLUX_URL,
// INFLUX_ORG and INFLUX_BUCKET environment variables override the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			Interval:   DefaultInterval,
			WindowSize: DefaultWindowSize,
			Lookback:   DefaultLookback,
			LogLevel:   DefaultLogLevel,
			Signals: SignalsConfig{
				A: SignalRef{Measurement: "test-topic", Field: "field3"},
				B: SignalRef{Measurement: "test-topic2", Field: "field3"},
				C: SignalRef{Measurement: "test-topic3", Field: "field3"},
				D: SignalRef{Measurement: "test-topic4", Field: "field3"},
			},
			Loops: LoopsConfig{
				Loop1: LoopTag{TagKey: "opcua", TagValue: "plc"},
				Loop2: LoopTag{TagKey: "s7conn", TagValue: "plc"},
			},
		},
		Influx: InfluxConfig{
			TokenEnv: DefaultTokenEnv,
			Timeout:  DefaultInfluxTimeout,
		},
		Sink: SinkConfig{
			Spool: SpoolConfig{
				CompressionLevel: DefaultCompressionLevel,
				ReplayInterval:   DefaultReplayInterval,
				ReplayBatch:      DefaultReplayBatch,
			},
		},
		Status: StatusConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
			History:           DefaultHistory,
		},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvURL); v != "" {
		cfg.Influx.URL = v
	}
	if v := os.Getenv(EnvOrg); v != "" {
		cfg.Influx.Org = v
	}
	if v := os.Getenv(EnvBucket); v != "" {
		cfg.Influx.Bucket = v
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Influx.URL == "" {
		return fmt.Errorf("influx.url is required")
	}
	if cfg.Influx.Org == "" {
		return fmt.Errorf("influx.org is required")
	}
	if cfg.Influx.Bucket == "" {
		return fmt.Errorf("influx.bucket is required")
	}
	if cfg.Influx.Timeout <= 0 {
		return fmt.Errorf("influx.timeout must be positive")
	}
	if cfg.Agent.Interval <= 0 {
		return fmt.Errorf("agent.interval must be positive")
	}
	if cfg.Agent.Lookback <= 0 {
		return fmt.Errorf("agent.lookback must be positive")
	}
	if cfg.Agent.WindowSize < 2 {
		return fmt.Errorf("agent.window_size must be at least 2")
	}
	switch cfg.Agent.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("agent.log_level: unknown level %q", cfg.Agent.LogLevel)
	}
	seen := make(map[SignalRef]string, 4)
	for i, s := range cfg.Agent.Signals.List() {
		name := string(rune('a' + i))
		if s.Measurement == "" || s.Field == "" {
			return fmt.Errorf("agent.signals.%s: measurement and field are required", name)
		}
		if prev, dup := seen[s]; dup {
			return fmt.Errorf("agent.signals.%s: %s/%s is already used by signal %s", name, s.Measurement, s.Field, prev)
		}
		seen[s] = name
	}
	if cfg.Agent.Loops.Loop1.TagKey == "" || cfg.Agent.Loops.Loop2.TagKey == "" {
		return fmt.Errorf("agent.loops: tag_key is required for both loops")
	}
	if sp := cfg.Sink.Spool; sp.Enabled() {
		if sp.CompressionLevel < 1 || sp.CompressionLevel > 4 {
			return fmt.Errorf("sink.spool.compression_level must be between 1 and 4")
		}
		if sp.ReplayInterval <= 0 {
			return fmt.Errorf("sink.spool.replay_interval must be positive")
		}
		if sp.ReplayBatch <= 0 {
			return fmt.Errorf("sink.spool.replay_batch must be positive")
		}
	}
	if cfg.Status.HTTPPort < 0 {
		return fmt.Errorf("status.http_port must not be negative")
	}
	if cfg.Status.BroadcastInterval <= 0 {
		return fmt.Errorf("status.broadcast_interval must be positive")
	}
	if cfg.Status.History <= 0 {
		return fmt.Errorf("status.history must be positive")
	}
	switch cfg.Status.Auth.Mode {
	case "", "none":
	case "apikey":
		if cfg.Status.Auth.KeyEnv == "" {
			return fmt.Errorf("status.auth.key_env is required for mode apikey")
		}
		if cfg.Status.Auth.Key() == "" {
			return fmt.Errorf("status.auth: environment variable %s is unset or empty", cfg.Status.Auth.KeyEnv)
		}
	default:
		return fmt.Errorf("status.auth.mode %q unknown: want apikey|none", cfg.Status.Auth.Mode)
	}
	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d] %q: condition is required", i, r.Name)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range cfg.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}
