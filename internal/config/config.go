package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/calcengine/calcengine/pkg/types"
)

// EnvPrefix is the prefix of environment variables that override file values,
// e.g. CALCENGINE_ENGINE_CACHE_SIZE.
const EnvPrefix = "CALCENGINE"

// Default values applied when fields are absent from the config file.
const (
	DefaultCacheSize          = 100
	DefaultCacheTTL           = 5 * time.Minute
	DefaultPrecision          = 2
	DefaultWorkers            = 4
	DefaultCalculationTimeout = 10 * time.Second
	DefaultDebounce           = 600 * time.Millisecond
	DefaultHTTPPort           = 8080
	DefaultGRPCPort           = 50051
	DefaultStatsInterval      = 5 * time.Second
	DefaultClientEndpoint     = "localhost:50051"
)

// Config is the top-level configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine" envconfig:"ENGINE"`
	Server ServerConfig `yaml:"server" envconfig:"SERVER"`
	Client ClientConfig `yaml:"client" envconfig:"CLIENT"`
	Log    LogConfig    `yaml:"log" envconfig:"LOG"`
}

// EngineConfig controls the calculation engine. Every field except Workers
// can be changed at runtime through a config reload.
type EngineConfig struct {
	// CacheSize is the maximum number of cached results.
	CacheSize int `yaml:"cache_size" envconfig:"CACHE_SIZE" validate:"gte=1,lte=1000000"`

	// CacheTTL expires cached results after this duration. 0 disables expiry.
	CacheTTL time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" validate:"gte=0"`

	// Precision is the number of decimals numeric inputs are rounded to when
	// building cache keys.
	Precision int `yaml:"precision" envconfig:"PRECISION" validate:"gte=0,lte=8"`

	// Workers bounds the number of concurrently running calculations.
	Workers int `yaml:"workers" envconfig:"WORKERS" validate:"gte=1,lte=1024"`

	// CalculationTimeout bounds a single calculation. 0 disables the timeout.
	CalculationTimeout time.Duration `yaml:"calculation_timeout" envconfig:"CALCULATION_TIMEOUT" validate:"gte=0"`

	// DefaultDebounce applies to categories without an explicit policy.
	DefaultDebounce time.Duration `yaml:"default_debounce" envconfig:"DEFAULT_DEBOUNCE" validate:"gte=0"`

	// Categories maps a calculator category to its scheduling policy.
	Categories map[string]CategoryPolicy `yaml:"categories" ignored:"true" validate:"dive"`

	// Suggestions are the optimization rules evaluated against scheduler
	// metrics.
	Suggestions []SuggestionRule `yaml:"suggestions" ignored:"true" validate:"dive"`
}

// CategoryPolicy is the priority and debounce delay of one calculator
// category. Higher priorities are dispatched first.
type CategoryPolicy struct {
	Priority int           `yaml:"priority" validate:"gte=0,lte=100"`
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

// SuggestionRule defines one optimization hint. The rule applies when every
// condition in When holds.
type SuggestionRule struct {
	// Name is the stable rule identifier.
	Name string `yaml:"name" validate:"required"`

	// When lists conditions like "cache_hit_rate < 50" or "cache_lookups >= 20".
	When []string `yaml:"when" validate:"min=1,dive,required"`

	// Message is the advisory text shown when the rule applies.
	Message string `yaml:"message" validate:"required"`

	// Severity is one of: info | warning | critical.
	Severity string `yaml:"severity" validate:"omitempty,oneof=info warning critical"`
}

// ServerConfig holds the service endpoints.
type ServerConfig struct {
	// HTTPPort is the port the REST API, WebSocket hub and /metrics listen on.
	HTTPPort int `yaml:"http_port" envconfig:"HTTP_PORT" validate:"gte=1,lte=65535"`

	// GRPCPort is the port of the gRPC calculator service.
	GRPCPort int `yaml:"grpc_port" envconfig:"GRPC_PORT" validate:"gte=1,lte=65535"`

	// StatsInterval is how often the WebSocket hub broadcasts engine stats.
	StatsInterval time.Duration `yaml:"stats_interval" envconfig:"STATS_INTERVAL" validate:"gt=0"`

	Auth AuthConfig `yaml:"auth" envconfig:"AUTH"`
}

// ClientConfig is used by CLI commands that talk to a running server.
type ClientConfig struct {
	// Endpoint is the gRPC address of the server (host:port).
	Endpoint string `yaml:"endpoint" envconfig:"ENDPOINT" validate:"required,hostname_port"`

	// MetricsURL is the Prometheus endpoint read by the status command.
	MetricsURL string `yaml:"metrics_url" envconfig:"METRICS_URL" validate:"omitempty,url"`

	// Timeout bounds each client call.
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`

	Auth AuthConfig `yaml:"auth" envconfig:"AUTH"`
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode" envconfig:"MODE" validate:"omitempty,oneof=apikey none"`

	// KeyEnv is the name of the environment variable that holds the API key.
	KeyEnv string `yaml:"key_env" envconfig:"KEY_ENV"`

	// Header is the gRPC metadata key (and HTTP header name) carrying the key.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header" envconfig:"HEADER"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return strings.ToLower(a.Header)
	}
	return "x-api-key"
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
}

// SlogLevel maps Level to a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Policy returns the scheduling policy for category, falling back to the
// default debounce and the lowest priority.
func (e EngineConfig) Policy(category string) CategoryPolicy {
	if p, ok := e.Categories[category]; ok {
		return p
	}
	return CategoryPolicy{Priority: 0, Debounce: e.DefaultDebounce}
}

var structValidator = validator.New()

// Load builds the configuration: defaults, then the YAML file at path (skipped
// when path is empty), then CALCENGINE_* environment overrides, then
// validation.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Parse is Load for an in-memory YAML document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			CacheSize:          DefaultCacheSize,
			CacheTTL:           DefaultCacheTTL,
			Precision:          DefaultPrecision,
			Workers:            DefaultWorkers,
			CalculationTimeout: DefaultCalculationTimeout,
			DefaultDebounce:    DefaultDebounce,
			Categories:         DefaultCategories(),
			Suggestions:        DefaultSuggestions(),
		},
		Server: ServerConfig{
			HTTPPort:      DefaultHTTPPort,
			GRPCPort:      DefaultGRPCPort,
			StatsInterval: DefaultStatsInterval,
		},
		Client: ClientConfig{
			Endpoint: DefaultClientEndpoint,
			Timeout:  DefaultCalculationTimeout,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultCategories returns the built-in category policies. Interactive
// categories get short delays and high priority; heavier planning and tax
// calculators wait longer.
func DefaultCategories() map[string]CategoryPolicy {
	return map[string]CategoryPolicy{
		types.CategoryBasic:      {Priority: 3, Debounce: 500 * time.Millisecond},
		types.CategoryCredit:     {Priority: 2, Debounce: 600 * time.Millisecond},
		types.CategoryInvestment: {Priority: 2, Debounce: 700 * time.Millisecond},
		types.CategoryPlanning:   {Priority: 1, Debounce: 800 * time.Millisecond},
		types.CategoryTax:        {Priority: 1, Debounce: 1000 * time.Millisecond},
	}
}

// DefaultSuggestions returns the built-in optimization rules.
func DefaultSuggestions() []SuggestionRule {
	return []SuggestionRule{
		{
			Name:     "low_cache_hit_rate",
			When:     []string{"cache_lookups >= 20", "cache_hit_rate < 50"},
			Message:  "Cache hit rate is below 50%. Increase engine.cache_size or the debounce delays so repeated inputs are served from cache.",
			Severity: "warning",
		},
		{
			Name:     "high_memory_pressure",
			When:     []string{"memory_pressure > 80"},
			Message:  "Result cache is more than 80% full. Reduce engine.cache_size or engine.cache_ttl to evict results sooner.",
			Severity: "warning",
		},
		{
			Name:     "slow_calculations",
			When:     []string{"avg_computation_ms > 250"},
			Message:  "Average calculation time exceeds 250ms. Add workers or lower the priority of heavy calculator categories.",
			Severity: "info",
		},
		{
			Name:     "queue_backlog",
			When:     []string{"queue_depth > 16"},
			Message:  "More than 16 calculations are waiting for a worker. Increase engine.workers.",
			Severity: "warning",
		},
	}
}

// validate checks struct tags and cross-field constraints.
func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}
	if cfg.Server.HTTPPort == cfg.Server.GRPCPort {
		return fmt.Errorf("server.http_port and server.grpc_port must differ (both %d)", cfg.Server.HTTPPort)
	}
	seen := make(map[string]bool, len(cfg.Engine.Suggestions))
	for i, r := range cfg.Engine.Suggestions {
		if seen[r.Name] {
			return fmt.Errorf("engine.suggestions[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
