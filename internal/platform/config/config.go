// Package config loads kycflow settings from an optional YAML file and KYC_*
// environment variables, e.g. KYC_API_BASE_URL or KYC_AUTH_API_KEY.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	rules "kycflow/pkg/validation"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "KYC"

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Server   ServerConfig   `mapstructure:"server"`
}

// APIConfig describes the remote verification services.
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	ResultsURL    string        `mapstructure:"results_url" validate:"required,url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"gte=0,lte=10"`
	CallbackURL   string        `mapstructure:"callback_url" validate:"omitempty,url"`
	UserAgent     string        `mapstructure:"user_agent"`
	// RateLimit caps outbound requests per second; zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst int     `mapstructure:"rate_burst" validate:"gte=0"`
}

// AuthConfig carries the caller's credentials.
type AuthConfig struct {
	APIKey       string `mapstructure:"api_key"`
	TenantID     string `mapstructure:"tenant_id"`
	UserID       string `mapstructure:"user_id"`
	SessionToken string `mapstructure:"session_token"`
}

// WorkflowConfig holds the feature flags of the workflow engine.
type WorkflowConfig struct {
	SessionID        string `mapstructure:"session_id"`
	AutoOCR          bool   `mapstructure:"auto_ocr"`
	FaceVerification bool   `mapstructure:"face_verification"`
	Persistence      bool   `mapstructure:"persistence"`
	Debug            bool   `mapstructure:"debug"`
}

// StorageConfig selects where workflow snapshots are kept.
type StorageConfig struct {
	Backend   string      `mapstructure:"backend" validate:"oneof=memory file redis"`
	StateFile string      `mapstructure:"state_file"`
	Redis     RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the Redis connection pool.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Scope        string        `mapstructure:"scope"`
	TTL          time.Duration `mapstructure:"ttl"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// ServerConfig configures the mock verification backend.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ResultsAddr     string        `mapstructure:"results_addr"`
	APIKey          string        `mapstructure:"api_key"`
	SigningKey      string        `mapstructure:"signing_key"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	DefaultDecision string        `mapstructure:"default_decision" validate:"oneof=APPROVED REJECTED MANUAL_REVIEW PENDING"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from path (optional) layered under KYC_*
// environment variables and the built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:3003")
	v.SetDefault("api.results_url", "http://localhost:8001")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.retry_attempts", 3)
	v.SetDefault("api.callback_url", "")
	v.SetDefault("api.user_agent", "")
	v.SetDefault("api.rate_limit", 0.0)
	v.SetDefault("api.rate_burst", 1)

	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.tenant_id", "")
	v.SetDefault("auth.user_id", "")
	v.SetDefault("auth.session_token", "")

	v.SetDefault("workflow.session_id", "")
	v.SetDefault("workflow.auto_ocr", true)
	v.SetDefault("workflow.face_verification", true)
	v.SetDefault("workflow.persistence", true)
	v.SetDefault("workflow.debug", false)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.state_file", "")
	v.SetDefault("storage.redis.url", "")
	v.SetDefault("storage.redis.scope", "")
	v.SetDefault("storage.redis.ttl", 24*time.Hour)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 1)
	v.SetDefault("storage.redis.dial_timeout", 5*time.Second)
	v.SetDefault("storage.redis.read_timeout", 3*time.Second)
	v.SetDefault("storage.redis.write_timeout", 3*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("server.addr", ":3003")
	v.SetDefault("server.results_addr", ":8001")
	v.SetDefault("server.api_key", "demo-api-key-0001")
	v.SetDefault("server.signing_key", "dev-secret-key-change-in-production")
	v.SetDefault("server.session_ttl", time.Hour)
	v.SetDefault("server.default_decision", "APPROVED")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}

// Validate checks field rules and the cross-field constraints of the
// selected storage backend.
func (c *Config) Validate() error {
	if err := rules.Validate(c); err != nil {
		return err
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}
	switch c.Storage.Backend {
	case "file":
		if c.Storage.StateFile == "" {
			return errors.New("storage.state_file is required for the file backend")
		}
	case "redis":
		if c.Storage.Redis.URL == "" {
			return errors.New("storage.redis.url is required for the redis backend")
		}
	}
	return nil
}
