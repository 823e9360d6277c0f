package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string `env:"APP_NAME" envDefault:"session-service"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Session     SessionConfig
	Buffer      BufferConfig
	Monitor     MonitorConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
}

type HTTPConfig struct {
	Host          string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port          string        `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout   time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout  time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout   time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	MaxConn       int           `env:"SERVER_MAX_CONN" envDefault:"0"`
	EnableMetrics bool          `env:"SERVER_ENABLE_METRICS" envDefault:"true"`
	TrustProxy    bool          `env:"SERVER_TRUST_PROXY" envDefault:"false"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	Name            string        `env:"DB_NAME" envDefault:"sessions"`
	User            string        `env:"DB_USER" envDefault:"sessions"`
	Password        string        `env:"DB_PASSWORD"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxConnLifetime time.Duration `env:"DB_CONN_LIFETIME" envDefault:"1h"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
}

type RedisConfig struct {
	URL          string        `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	Password     string        `env:"REDIS_PASSWORD"`
	DB           int           `env:"REDIS_DB" envDefault:"0"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"3s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"2s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"2s"`
}

type JWTConfig struct {
	Secret string `env:"JWT_SECRET"`
	Issuer string `env:"JWT_ISSUER" envDefault:"session-service"`
}

// SessionConfig tunes the hybrid session store.
type SessionConfig struct {
	// DefaultTTL is the lifetime of a session issued at login.
	DefaultTTL time.Duration `env:"SESSION_DEFAULT_TTL" envDefault:"24h"`
	// CacheTTL bounds every Redis key, independent of session expiry.
	CacheTTL          time.Duration `env:"SESSION_CACHE_TTL" envDefault:"168h"`
	ReconcileInterval time.Duration `env:"SESSION_RECONCILE_INTERVAL" envDefault:"5m"`
}

type BufferConfig struct {
	Enabled      bool          `env:"BUFFER_ENABLED" envDefault:"true"`
	Path         string        `env:"BOLTDB_PATH" envDefault:"./data/buffer.db"`
	Retention    time.Duration `env:"BUFFER_RETENTION" envDefault:"168h"`
	SyncInterval time.Duration `env:"BUFFER_SYNC_INTERVAL" envDefault:"30s"`
	BatchSize    int           `env:"BUFFER_BATCH_SIZE" envDefault:"50"`
	MaxRetry     int           `env:"MAX_RETRY_ATTEMPTS" envDefault:"3"`
}

type MonitorConfig struct {
	Interval time.Duration `env:"MONITOR_INTERVAL" envDefault:"10s"`
}

type ContextConfig struct {
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

type LoggerConfig struct {
	Level    string `env:"LOG_LEVEL" envDefault:"info"`
	Encoding string `env:"LOG_ENCODING" envDefault:"json"`
}

type MigrationsConfig struct {
	Enabled bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
	Path    string `env:"MIGRATIONS_PATH" envDefault:"./assets/migrations"`
}

// Load reads configuration from environment variables (optionally .env).
// Every setting has a default except JWT_SECRET.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Session.DefaultTTL <= 0 {
		errs = append(errs, errors.New("SESSION_DEFAULT_TTL must be positive"))
	}
	if c.Session.CacheTTL <= 0 {
		errs = append(errs, errors.New("SESSION_CACHE_TTL must be positive"))
	}
	if c.Session.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("SESSION_RECONCILE_INTERVAL must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
