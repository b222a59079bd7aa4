// config/config.go
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Izume01/reliq/internal/lifecycle"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     StoreConfig     `yaml:"store"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Cipher    CipherConfig    `yaml:"cipher"`
	Sweep     SweepConfig     `yaml:"sweep"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// AuthConfig controls where caller identity comes from. The identity header
// is only honoured behind a proxy that sets it and strips client copies.
type AuthConfig struct {
	TrustIdentityHeader bool   `yaml:"trust_identity_header"`
	IdentityHeader      string `yaml:"identity_header"`
}

type StoreConfig struct {
	Metadata   MetadataConfig   `yaml:"metadata"`
	Ciphertext CiphertextConfig `yaml:"ciphertext"`
}

type MetadataConfig struct {
	Path string `yaml:"path"`
}

type CiphertextConfig struct {
	Type      string      `yaml:"type"`
	KeyPrefix string      `yaml:"key_prefix"`
	Redis     RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SecretsConfig struct {
	TTLOptions               []int `yaml:"ttl_options"`
	MaxFailedAttemptOptions  []int `yaml:"max_failed_attempt_options"`
	MaxViewOptions           []int `yaml:"max_view_options"`
	DefaultTTLSeconds        int   `yaml:"default_ttl_seconds"`
	DefaultMaxFailedAttempts int   `yaml:"default_max_failed_attempts"`
	DefaultMaxViews          int   `yaml:"default_max_views"`
	PasswordMinLength        int   `yaml:"password_min_length"`
	MaxPayloadBytes          int   `yaml:"max_payload_bytes"`
	BcryptCost               int   `yaml:"bcrypt_cost"`
}

type CipherConfig struct {
	KeyHex string `yaml:"key_hex"`
}

type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Batch    int           `yaml:"batch"`
}

type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	RevealPerMin   int  `yaml:"reveal_per_min"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	policy := lifecycle.DefaultPolicy()
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			BaseURL:        "http://localhost:8080",
			RequestTimeout: 30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Auth: AuthConfig{
			TrustIdentityHeader: false,
			IdentityHeader:      "X-Owner-ID",
		},
		Store: StoreConfig{
			Metadata: MetadataConfig{
				Path: "reliq.db",
			},
			Ciphertext: CiphertextConfig{
				Type:      "memory",
				KeyPrefix: "secret:",
				Redis: RedisConfig{
					Addr:     "localhost:6379",
					Password: "",
					DB:       0,
				},
			},
		},
		Secrets: SecretsConfig{
			TTLOptions:               policy.TTLSeconds,
			MaxFailedAttemptOptions:  policy.MaxFailedAttempts,
			MaxViewOptions:           policy.MaxViews,
			DefaultTTLSeconds:        policy.DefaultTTLSeconds,
			DefaultMaxFailedAttempts: policy.DefaultMaxFailedAttempts,
			DefaultMaxViews:          policy.DefaultMaxViews,
			PasswordMinLength:        policy.PasswordMinLength,
			MaxPayloadBytes:          policy.MaxPayloadBytes,
			BcryptCost:               12,
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Interval: time.Minute,
			Batch:    lifecycle.DefaultSweepBatch,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 100,
			RevealPerMin:   20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is OK, use defaults
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

func (c *Config) loadFromEnv() {
	// Server
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}

	// Auth
	if v := os.Getenv("TRUST_IDENTITY_HEADER"); v != "" {
		c.Auth.TrustIdentityHeader = v == "true" || v == "1"
	}
	if v := os.Getenv("IDENTITY_HEADER"); v != "" {
		c.Auth.IdentityHeader = v
	}

	// Stores
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Store.Metadata.Path = v
	}
	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Ciphertext.Type = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Ciphertext.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.Ciphertext.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Store.Ciphertext.Redis.DB = db
		}
	}

	// Secrets
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		c.Cipher.KeyHex = v
	}
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		if cost, err := strconv.Atoi(v); err == nil {
			c.Secrets.BcryptCost = cost
		}
	}

	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Sweep.Interval = d
		}
	}

	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.RequestsPerMin = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_REVEAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.RevealPerMin = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	if c.Auth.TrustIdentityHeader && c.Auth.IdentityHeader == "" {
		return fmt.Errorf("auth.identity_header is required when trust_identity_header is set")
	}

	if c.Store.Metadata.Path == "" {
		return fmt.Errorf("store.metadata.path is required")
	}

	if c.Store.Ciphertext.Type != "memory" && c.Store.Ciphertext.Type != "redis" {
		return fmt.Errorf("invalid store type: %s (must be 'memory' or 'redis')", c.Store.Ciphertext.Type)
	}

	if c.Store.Ciphertext.Type == "redis" && c.Store.Ciphertext.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when store type is 'redis'")
	}

	if key, err := hex.DecodeString(c.Cipher.KeyHex); err != nil || len(key) != 32 {
		return fmt.Errorf("cipher.key_hex must be 64 hex characters")
	}

	s := c.Secrets
	if !slices.Contains(s.TTLOptions, s.DefaultTTLSeconds) {
		return fmt.Errorf("default_ttl_seconds %d is not in ttl_options", s.DefaultTTLSeconds)
	}
	if !slices.Contains(s.MaxFailedAttemptOptions, s.DefaultMaxFailedAttempts) {
		return fmt.Errorf("default_max_failed_attempts %d is not in max_failed_attempt_options", s.DefaultMaxFailedAttempts)
	}
	if !slices.Contains(s.MaxViewOptions, s.DefaultMaxViews) {
		return fmt.Errorf("default_max_views %d is not in max_view_options", s.DefaultMaxViews)
	}
	for _, n := range slices.Concat(s.TTLOptions, s.MaxFailedAttemptOptions, s.MaxViewOptions) {
		if n < 1 {
			return fmt.Errorf("secret options must be positive, got %d", n)
		}
	}
	if s.PasswordMinLength < 1 {
		return fmt.Errorf("password_min_length must be at least 1")
	}
	if s.MaxPayloadBytes < 1 {
		return fmt.Errorf("max_payload_bytes must be positive")
	}
	if s.BcryptCost < 4 || s.BcryptCost > 31 {
		return fmt.Errorf("bcrypt_cost must be between 4 and 31")
	}

	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMin < 1 || c.RateLimit.RevealPerMin < 1) {
		return fmt.Errorf("rate limits must be positive when enabled")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", c.Log.Format)
	}

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Policy converts the secrets section into the lifecycle allow-lists.
func (c *Config) Policy() lifecycle.Policy {
	return lifecycle.Policy{
		TTLSeconds:               slices.Clone(c.Secrets.TTLOptions),
		MaxFailedAttempts:        slices.Clone(c.Secrets.MaxFailedAttemptOptions),
		MaxViews:                 slices.Clone(c.Secrets.MaxViewOptions),
		DefaultTTLSeconds:        c.Secrets.DefaultTTLSeconds,
		DefaultMaxFailedAttempts: c.Secrets.DefaultMaxFailedAttempts,
		DefaultMaxViews:          c.Secrets.DefaultMaxViews,
		PasswordMinLength:        c.Secrets.PasswordMinLength,
		MaxPayloadBytes:          c.Secrets.MaxPayloadBytes,
	}
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level: %s", l.Level)
	}
	return level, nil
}
