package config

import (
	"errors"
	"fmt"
	"time"
)

// Authorization modes for course rooms.
const (
	AuthzModeOpen       = "open"
	AuthzModeEnrollment = "enrollment"
)

// Sequencer backends.
const (
	SequencerStore = "store"
	SequencerRedis = "redis"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MaxBodyLength      int           `mapstructure:"max_body_length" yaml:"max_body_length"`
	HistoryLimit       int           `mapstructure:"history_limit" yaml:"history_limit"`
	MaxHistoryLimit    int           `mapstructure:"max_history_limit" yaml:"max_history_limit"`
	TypingTTL          time.Duration `mapstructure:"typing_ttl" yaml:"typing_ttl"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	AuthzTimeout       time.Duration `mapstructure:"authz_timeout" yaml:"authz_timeout"`
	AuthzMode          string        `mapstructure:"authz_mode" yaml:"authz_mode"`
	PersistMaxAttempts int           `mapstructure:"persist_max_attempts" yaml:"persist_max_attempts"`
	PersistBackoff     time.Duration `mapstructure:"persist_backoff" yaml:"persist_backoff"`
	SendBuffer         int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`

	Sequencer   string `mapstructure:"sequencer" yaml:"sequencer"`
	RedisAddr   string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix" yaml:"redis_prefix"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		DatabasePath:       "campuschat.db",
		JWTSecret:          "change-me",
		JWTIssuer:          "campuschat",
		JWTAudience:        "campuschat",
		MaxMessageBytes:    64 << 10,
		MaxBodyLength:      4000,
		HistoryLimit:       50,
		MaxHistoryLimit:    200,
		TypingTTL:          6 * time.Second,
		SweepInterval:      time.Second,
		AuthzTimeout:       2 * time.Second,
		AuthzMode:          AuthzModeOpen,
		PersistMaxAttempts: 5,
		PersistBackoff:     50 * time.Millisecond,
		SendBuffer:         64,
		RateLimitPerMinute: 120,
		Sequencer:          SequencerStore,
		RedisAddr:          "localhost:6379",
		RedisPrefix:        "campuschat:",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.AuthzMode != "" {
		c.AuthzMode = other.AuthzMode
	}
	if other.Sequencer != "" {
		c.Sequencer = other.Sequencer
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
}

// Validate reports configuration values the server cannot start with.
func (c Config) Validate() error {
	switch c.AuthzMode {
	case AuthzModeOpen, AuthzModeEnrollment:
	default:
		return fmt.Errorf("unknown authz_mode %q", c.AuthzMode)
	}
	switch c.Sequencer {
	case SequencerStore, SequencerRedis:
	default:
		return fmt.Errorf("unknown sequencer %q", c.Sequencer)
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.HistoryLimit <= 0 || c.MaxHistoryLimit < c.HistoryLimit {
		return fmt.Errorf("history_limit must be in 1..max_history_limit (%d)", c.MaxHistoryLimit)
	}
	if c.TypingTTL <= 0 {
		return errors.New("typing_ttl must be positive")
	}
	if c.PersistMaxAttempts <= 0 {
		return errors.New("persist_max_attempts must be positive")
	}
	return nil
}
