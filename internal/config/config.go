package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/djbooking/funnel/pkg/config"
	"github.com/djbooking/funnel/pkg/database"
	"github.com/djbooking/funnel/pkg/httpclient"
)

// Config holds all configuration for the booking funnel service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"FUNNEL_HTTP_PORT" envDefault:"8010"`

	// PostgreSQL. An empty host selects the in-memory progress store.
	PostgresHost string `env:"POSTGRES_HOST"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"funnel"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"funnel_secret"`
	PostgresDB   string `env:"FUNNEL_DB_NAME" envDefault:"booking_funnel"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Redis progress cache. Empty disables caching.
	RedisAddr            string `env:"REDIS_ADDR"`
	RedisPass            string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB              int    `env:"REDIS_DB" envDefault:"0"`
	ProgressCacheTTLSecs int    `env:"PROGRESS_CACHE_TTL_SECONDS" envDefault:"300"`

	// Kafka. Empty disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Lead webhook. Empty disables lead forwarding.
	LeadWebhookURL string `env:"LEAD_WEBHOOK_URL"`

	// Circuit breaker settings for the lead webhook
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Support contact details served by /support-info
	SupportPhone          string `env:"SUPPORT_PHONE" envDefault:"+31 6 12345678"`
	SupportEmail          string `env:"SUPPORT_EMAIL" envDefault:"boekingen@example.nl"`
	SupportWhatsApp       string `env:"SUPPORT_WHATSAPP" envDefault:"+31612345678"`
	SupportHours          string `env:"SUPPORT_HOURS" envDefault:"ma-za 09:00-21:00"`
	SupportCacheMaxAgeSec int    `env:"SUPPORT_CACHE_MAX_AGE_SECONDS" envDefault:"3600"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load funnel config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost != "" && c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required when POSTGRES_HOST is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.ProgressCacheTTLSecs <= 0 {
		return fmt.Errorf("PROGRESS_CACHE_TTL_SECONDS must be positive, got %d", c.ProgressCacheTTLSecs)
	}
	if c.SupportCacheMaxAgeSec < 0 {
		return fmt.Errorf("SUPPORT_CACHE_MAX_AGE_SECONDS must not be negative, got %d", c.SupportCacheMaxAgeSec)
	}
	if c.LeadWebhookURL != "" {
		u, err := url.ParseRequestURI(c.LeadWebhookURL)
		if err != nil {
			return fmt.Errorf("invalid LEAD_WEBHOOK_URL %q: %w", c.LeadWebhookURL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid LEAD_WEBHOOK_URL %q: scheme must be http or https", c.LeadWebhookURL)
		}
	}
	return nil
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Postgres returns the connection settings for the progress database.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the connection settings for the progress cache.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Addr = c.RedisAddr
	rc.Password = c.RedisPass
	rc.DB = c.RedisDB
	return rc
}

// ProgressCacheTTL returns the lifetime of cached flow progress.
func (c *Config) ProgressCacheTTL() time.Duration {
	return time.Duration(c.ProgressCacheTTLSecs) * time.Second
}

// LeadCircuitBreaker returns the breaker settings for the lead webhook.
func (c *Config) LeadCircuitBreaker() httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         "lead-webhook",
		MaxRequests:  c.CBMaxRequests,
		Interval:     time.Duration(c.CBInterval) * time.Second,
		Timeout:      time.Duration(c.CBTimeout) * time.Second,
		FailureRatio: c.CBFailureRatio,
		MinRequests:  c.CBMinRequests,
	}
}

// SlowQueryThreshold returns the duration above which SQL statements are logged.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
