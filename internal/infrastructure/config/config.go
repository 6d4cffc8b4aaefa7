package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Redis    RedisConfig
	Upstream UpstreamConfig
	Cache    CacheConfig
	Aging    AgingConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// RedisConfig holds Redis connection settings for the second cache tier
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// UpstreamConfig holds settings for the accounting system gateway
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CacheConfig holds result cache settings
type CacheConfig struct {
	TTL time.Duration
}

// BucketSpec is one aging bucket as configured. MaxDays nil marks the
// unbounded catch-all bucket.
type BucketSpec struct {
	Label   string `mapstructure:"label"`
	MaxDays *int   `mapstructure:"max_days"`
	Color   string `mapstructure:"color"`
}

// AgingConfig holds the overdue bucket boundaries. An empty list means the
// built-in defaults.
type AgingConfig struct {
	Buckets []BucketSpec
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with LEDGERLENS_ prefix (e.g., LEDGERLENS_REDIS_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("LEDGERLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Upstream: UpstreamConfig{
			BaseURL: v.GetString("upstream.base_url"),
			Timeout: v.GetDuration("upstream.timeout"),
		},
		Cache: CacheConfig{
			TTL: v.GetDuration("cache.ttl"),
		},
	}

	if err := v.UnmarshalKey("aging.buckets", &cfg.Aging.Buckets); err != nil {
		return nil, fmt.Errorf("error parsing aging.buckets: %w", err)
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ledgerlens-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// Upstream fetches can legitimately run up to the gateway timeout.
		cfg.HTTP.WriteTimeout = 90 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	// NOTE: CORS origins are intentionally not given a default fallback to "*".
	// An empty list means no cross-origin requests are allowed until explicitly configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "X-Request-ID", "X-Session-ID"}
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = "http://localhost:9000"
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 60 * time.Second
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 15 * time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if _, err := url.Parse(c.Upstream.BaseURL); err != nil {
		return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
	}
	if c.Upstream.Timeout < time.Second {
		return fmt.Errorf("upstream.timeout must be at least one second, got %s", c.Upstream.Timeout)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl cannot be negative")
	}

	if err := c.Aging.validate(); err != nil {
		return err
	}

	// Production-specific validations
	if c.App.Env == "production" {
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Redis.Enabled && c.Redis.Password == "" {
			return fmt.Errorf("redis.password is required in production when redis is enabled")
		}
	}

	return nil
}

// validate checks the bucket list shape: labels present, boundaries strictly
// increasing, and exactly the final bucket unbounded. An empty list is valid
// and selects the built-in defaults.
func (a *AgingConfig) validate() error {
	if len(a.Buckets) == 0 {
		return nil
	}
	prev := -1
	for i, b := range a.Buckets {
		if b.Label == "" {
			return fmt.Errorf("aging.buckets[%d]: label is required", i)
		}
		last := i == len(a.Buckets)-1
		if last {
			if b.MaxDays != nil {
				return fmt.Errorf("aging.buckets: the final bucket must be unbounded (omit max_days)")
			}
			continue
		}
		if b.MaxDays == nil {
			return fmt.Errorf("aging.buckets[%d]: only the final bucket may omit max_days", i)
		}
		if *b.MaxDays <= prev {
			return fmt.Errorf("aging.buckets[%d]: max_days must be strictly increasing", i)
		}
		prev = *b.MaxDays
	}
	return nil
}

// Addr returns the Redis connection address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
