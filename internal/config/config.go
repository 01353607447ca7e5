// Package config loads server configuration from defaults, an optional YAML
// file, and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied before file and environment values.
const (
	DefaultPort              = 8090
	DefaultAssistantsBaseURL = "https://api.openai.com/v1"
	DefaultPollInterval      = time.Second
	DefaultRunDeadline       = 5 * time.Minute
	DefaultHTTPTimeout       = 120 * time.Second
	DefaultAccessTokenTTL    = 24 * time.Hour
	DefaultJWTIssuer         = "aide-server"
	DefaultMaxResponseBytes  = 1 << 20
)

// ModelPrice holds per-token prices for one model.
type ModelPrice struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Config captures all user-configurable settings for the server binary.
type Config struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`

	DatabaseURL string `yaml:"database_url"`

	AssistantsAPIKey  string        `yaml:"assistants_api_key"`
	AssistantsBaseURL string        `yaml:"assistants_base_url"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	MaxResponseBytes  int64         `yaml:"max_response_bytes"`

	JWTSecret      string        `yaml:"jwt_secret"`
	JWTIssuer      string        `yaml:"jwt_issuer"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`

	PollInterval time.Duration `yaml:"poll_interval"`
	RunDeadline  time.Duration `yaml:"run_deadline"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	SMTPAddr string `yaml:"smtp_addr"`
	SMTPFrom string `yaml:"smtp_from"`

	// PriceOverrides extends or replaces entries of the built-in model price
	// table. Keys are model identifiers.
	PriceOverrides map[string]ModelPrice `yaml:"price_overrides"`
}

type loadOptions struct {
	envLookup func(string) (string, bool)
	readFile  func(string) ([]byte, error)
	path      string
}

// Option customises Load, primarily for tests.
type Option func(*loadOptions)

// WithEnvLookup overrides the environment lookup function.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithFile sets the YAML config file path.
func WithFile(path string) Option {
	return func(o *loadOptions) { o.path = path }
}

// WithFileReader overrides the file reader used for the YAML layer.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = read }
}

// Load assembles the configuration: defaults, then the YAML file when present,
// then environment variables.
func Load(opts ...Option) (Config, error) {
	options := loadOptions{
		envLookup: os.LookupEnv,
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.path == "" {
		if p, ok := options.envLookup("AIDE_CONFIG"); ok {
			options.path = p
		}
	}

	cfg := Config{
		Port:              DefaultPort,
		Environment:       "development",
		AssistantsBaseURL: DefaultAssistantsBaseURL,
		HTTPTimeout:       DefaultHTTPTimeout,
		MaxResponseBytes:  DefaultMaxResponseBytes,
		JWTIssuer:         DefaultJWTIssuer,
		AccessTokenTTL:    DefaultAccessTokenTTL,
		PollInterval:      DefaultPollInterval,
		RunDeadline:       DefaultRunDeadline,
		MetricsEnabled:    true,
	}

	if options.path != "" {
		data, err := options.readFile(options.path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file %s: %w", options.path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", options.path, err)
		}
	}

	applyEnv(&cfg, options.envLookup)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setInt("AIDE_PORT", &cfg.Port)
	setString("AIDE_ENVIRONMENT", &cfg.Environment)
	setString("AIDE_DATABASE_URL", &cfg.DatabaseURL)
	setString("AIDE_ASSISTANTS_API_KEY", &cfg.AssistantsAPIKey)
	setString("OPENAI_API_KEY", &cfg.AssistantsAPIKey)
	setString("AIDE_ASSISTANTS_BASE_URL", &cfg.AssistantsBaseURL)
	setDuration("AIDE_HTTP_TIMEOUT", &cfg.HTTPTimeout)
	setString("AIDE_JWT_SECRET", &cfg.JWTSecret)
	setString("AIDE_JWT_ISSUER", &cfg.JWTIssuer)
	setDuration("AIDE_ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL)
	setDuration("AIDE_POLL_INTERVAL", &cfg.PollInterval)
	setDuration("AIDE_RUN_DEADLINE", &cfg.RunDeadline)
	setBool("AIDE_METRICS_ENABLED", &cfg.MetricsEnabled)
	setString("AIDE_SMTP_ADDR", &cfg.SMTPAddr)
	setString("AIDE_SMTP_FROM", &cfg.SMTPFrom)
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.RunDeadline <= 0 {
		return fmt.Errorf("run_deadline must be positive")
	}
	return nil
}
