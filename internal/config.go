package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Guard         GuardConfig         `mapstructure:"guard"`
	Permission    PermissionConfig    `mapstructure:"permission"`
	Risk          RiskConfig          `mapstructure:"risk"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Dispatch      DispatchConfig      `mapstructure:"dispatch"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenTTL       time.Duration `mapstructure:"token_ttl" validate:"required,min=1m"`
	BCryptCost     int           `mapstructure:"bcrypt_cost" validate:"required,min=10,max=15"`
	AdminUsername  string        `mapstructure:"admin_username"`
	AdminEmail     string        `mapstructure:"admin_email"`
	AdminPassword  string        `mapstructure:"admin_password"`
	BlacklistPurge time.Duration `mapstructure:"blacklist_purge_interval"`
}

type GuardConfig struct {
	RateLimit        int           `mapstructure:"rate_limit" validate:"min=1"`
	RateWindow       time.Duration `mapstructure:"rate_window"`
	LockoutThreshold int           `mapstructure:"lockout_threshold" validate:"min=1"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
	RedisAddr        string        `mapstructure:"redis_addr"`
	RedisPassword    string        `mapstructure:"redis_password"`
	RedisDB          int           `mapstructure:"redis_db"`
}

type PermissionConfig struct {
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size"`
}

type RiskConfig struct {
	EventRingSize    int              `mapstructure:"event_ring_size" validate:"min=1"`
	CommandMaxLength int              `mapstructure:"command_max_length" validate:"min=1"`
	EventLogEnabled  bool             `mapstructure:"event_log_enabled"`
	Classifier       ClassifierConfig `mapstructure:"classifier"`
}

type ClassifierConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Endpoint      string        `mapstructure:"endpoint" validate:"required_if=Enabled true,url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

type NotificationConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
	Burst      int           `mapstructure:"burst"`
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
}

type DispatchConfig struct {
	SafeDirs []string `mapstructure:"safe_dirs"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// DefaultConfig is the baseline every loader starts from.
func DefaultConfig() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Source:          "file:assistant_guard.db?_foreign_keys=on",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Security: SecurityConfig{
			TokenTTL:       24 * time.Hour,
			BCryptCost:     12,
			AdminUsername:  "admin",
			AdminEmail:     "admin@localhost",
			AdminPassword:  "admin123",
			BlacklistPurge: time.Hour,
		},
		Guard: GuardConfig{
			RateLimit:        10,
			RateWindow:       60 * time.Second,
			LockoutThreshold: 5,
			LockoutDuration:  300 * time.Second,
		},
		Permission: PermissionConfig{
			CacheTTL:  time.Hour,
			CacheSize: 1024,
		},
		Risk: RiskConfig{
			EventRingSize:    1000,
			CommandMaxLength: 200,
			EventLogEnabled:  true,
			Classifier: ClassifierConfig{
				Model:         "gpt-4o-mini",
				Timeout:       10 * time.Second,
				MaxConcurrent: 4,
			},
		},
		Notification: NotificationConfig{
			Timeout:    5 * time.Second,
			RatePerSec: 1,
			Burst:      5,
			Workers:    2,
			QueueSize:  100,
		},
		Dispatch: DispatchConfig{
			SafeDirs: []string{"/tmp/assistant-workspace"},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
			Logging: LoggingConfig{Level: "info", Format: "text"},
		},
	}
}

// LoadConfigFromEnv builds a config purely from environment variables (container deployments).
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()

	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.Server.Port = getEnvAsInt("HTTP_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("BASE_URL", cfg.Server.BaseURL)
	cfg.Server.AllowedOrigins = getEnv("ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)

	cfg.Database.Driver = getEnv("DB_DRIVER", "postgres")
	cfg.Database.Source = getEnv("DB_SOURCE", cfg.Database.Source)
	cfg.Database.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.Security.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.Security.TokenTTL = getEnvAsDuration("TOKEN_TTL", cfg.Security.TokenTTL)
	cfg.Security.BCryptCost = getEnvAsInt("BCRYPT_COST", cfg.Security.BCryptCost)
	cfg.Security.AdminUsername = getEnv("ADMIN_USERNAME", cfg.Security.AdminUsername)
	cfg.Security.AdminEmail = getEnv("ADMIN_EMAIL", cfg.Security.AdminEmail)
	cfg.Security.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.Security.AdminPassword)

	cfg.Guard.RateLimit = getEnvAsInt("RATE_LIMIT", cfg.Guard.RateLimit)
	cfg.Guard.RateWindow = getEnvAsDuration("RATE_WINDOW", cfg.Guard.RateWindow)
	cfg.Guard.LockoutThreshold = getEnvAsInt("LOCKOUT_THRESHOLD", cfg.Guard.LockoutThreshold)
	cfg.Guard.LockoutDuration = getEnvAsDuration("LOCKOUT_DURATION", cfg.Guard.LockoutDuration)
	cfg.Guard.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.Guard.RedisPassword = getEnv("REDIS_PASSWORD", "")

	cfg.Risk.Classifier.Endpoint = getEnv("CLASSIFIER_ENDPOINT", "")
	cfg.Risk.Classifier.Enabled = cfg.Risk.Classifier.Endpoint != ""
	cfg.Risk.Classifier.APIKey = getEnv("CLASSIFIER_API_KEY", "")
	cfg.Risk.Classifier.Model = getEnv("CLASSIFIER_MODEL", cfg.Risk.Classifier.Model)
	cfg.Risk.Classifier.Timeout = getEnvAsDuration("CLASSIFIER_TIMEOUT", cfg.Risk.Classifier.Timeout)

	cfg.Notification.WebhookURL = getEnv("ALERT_WEBHOOK_URL", "")

	if dirs := getEnv("SAFE_DIRS", ""); dirs != "" {
		cfg.Dispatch.SafeDirs = strings.Split(dirs, ",")
	}

	cfg.Observability.Logging.Level = getEnv("LOG_LEVEL", cfg.Observability.Logging.Level)
	cfg.Observability.Logging.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Guard.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("guard config: %v", err))
	}

	if err := c.Risk.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("risk config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Driver != "postgres" && c.Driver != "sqlite" {
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters")
	}
	if c.TokenTTL < time.Minute {
		return errors.New("token_ttl must be at least 1m")
	}
	if c.BCryptCost < 10 || c.BCryptCost > 15 {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	return nil
}

func (c *GuardConfig) Validate() error {
	if c.RateLimit < 1 || c.LockoutThreshold < 1 {
		return errors.New("rate_limit and lockout_threshold must be positive")
	}
	if c.RateWindow <= 0 || c.LockoutDuration <= 0 {
		return errors.New("rate_window and lockout_duration must be positive")
	}
	return nil
}

func (c *RiskConfig) Validate() error {
	if c.EventRingSize < 1 {
		return errors.New("event_ring_size must be positive")
	}
	if c.Classifier.Enabled {
		if _, err := url.ParseRequestURI(c.Classifier.Endpoint); err != nil {
			return fmt.Errorf("invalid classifier endpoint: %w", err)
		}
	}
	return nil
}
