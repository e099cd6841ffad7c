// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent, Influx, Sink, Status, Alerts}: full tree parsed from YAML
//   - AgentConfig: interval, window_size, lookback, log_level, the four
//     input signals (a, b, c, d) and the output tags of both loops
//   - InfluxConfig: url, org, bucket, token_env, timeout, tls; Token()
//     resolves the API token from the environment
//   - SinkConfig: optional badger spool for rejected write batches
//   - StatusConfig, AlertsConfig: HTTP surface and alert rules
//
// Load(path) reads the YAML file, applies defaults (5s interval, 60 samples,
// 65s lookback, port 8080), lets INFLUX_URL, INFLUX_ORG and INFLUX_BUCKET
// override the store settings, then validates required fields and enums.
// LoadEnvFile reads a .env file into the environment before Load runs.
//
// Watch(ctx, path, onChange) watches the file's directory with fsnotify,
// coalesces bursts of save events and calls onChange with the newly parsed
// Config. StatusConfig.Auth optionally guards the HTTP surface with an API key.
package config
