// Package config loads and watches the calcengine configuration file.
//
// Top-level types:
//   - Config{Engine, Server, Client, Log}: full config tree parsed from YAML
//   - EngineConfig: cache_size, cache_ttl, precision, workers,
//     calculation_timeout, default_debounce, categories{}, suggestions[]
//   - CategoryPolicy: priority and debounce delay for one calculator category
//   - SuggestionRule: name, when[] ("cache_hit_rate < 50"), message, severity
//   - ServerConfig: http_port, grpc_port, stats_interval, auth
//   - ClientConfig: endpoint and auth used by the CLI when talking to a server
//   - AuthConfig: mode (apikey|none), key_env, header; Key() resolves from env
//
// Load(path) applies defaults, unmarshals the YAML file (if any), overlays
// CALCENGINE_* environment variables via envconfig and finally validates the
// tree with go-playground/validator struct tags.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. Invalid reloads are logged and
// ignored.
package config
