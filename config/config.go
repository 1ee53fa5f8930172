package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the complete engine configuration.
type Config struct {
	// Store selects and configures the durable backend.
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Engine tunes interaction lifecycle timing.
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// StoreConfig selects the durable backend.
type StoreConfig struct {
	// Backend is "redis" or "memory".
	Backend string `yaml:"backend" env:"BACKEND"`

	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	KeyPrefix    string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// EngineConfig tunes interaction lifecycle timing.
type EngineConfig struct {
	// DefaultTimeout applies to interactions that do not set their own.
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT"`

	// InteractionTTLBuffer is how long an interaction record outlives its
	// own deadline in the store.
	InteractionTTLBuffer time.Duration `yaml:"interaction_ttl_buffer" env:"INTERACTION_TTL_BUFFER"`

	// ResultTTL is how long results and response lists stay readable for
	// late-polling async callers.
	ResultTTL time.Duration `yaml:"result_ttl" env:"RESULT_TTL"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`

	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Store:  DefaultStoreConfig(),
		Engine: DefaultEngineConfig(),
		Log:    DefaultLogConfig(),
	}
}

// DefaultStoreConfig returns the default Redis-backed store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend: "redis",
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			KeyPrefix:    "humanflow:",
		},
	}
}

// DefaultEngineConfig returns the default lifecycle timing.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultTimeout:       2 * time.Hour,
		InteractionTTLBuffer: 5 * time.Minute,
		ResultTTL:            24 * time.Hour,
	}
}

// DefaultLogConfig returns JSON logging at info level to stdout.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Backend {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Sprintf("unknown store backend %q", c.Store.Backend))
	}
	if c.Store.Backend == "redis" && c.Store.Redis.Addr == "" {
		errs = append(errs, "redis addr is required")
	}
	if c.Engine.DefaultTimeout <= 0 {
		errs = append(errs, "default_timeout must be positive")
	}
	if c.Engine.InteractionTTLBuffer < 0 {
		errs = append(errs, "interaction_ttl_buffer must not be negative")
	}
	if c.Engine.ResultTTL <= 0 {
		errs = append(errs, "result_ttl must be positive")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Build constructs a zap logger from the log configuration.
func (l LogConfig) Build() (*zap.Logger, error) {
	var level zapcore.Level
	switch l.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info", "":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level %q", l.Level)
	}

	format := l.Format
	if format == "" {
		format = "json"
	}

	var encoderConfig zapcore.EncoderConfig
	if format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := l.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       format == "console",
		Encoding:          format,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !l.EnableCaller,
		DisableStacktrace: !l.EnableStacktrace,
	}
	return zapConfig.Build()
}
