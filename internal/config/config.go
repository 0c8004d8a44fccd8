// Package config loads the service's configuration: a root Config holding
// one nested struct per concern, each field carrying a yaml tag, and a
// Default constructor. Environment variables overlay the handful of values
// operators commonly tune per-deployment (listen address, pool sizing, the
// point limit, the CORS origin, the admin Basic-Auth pair, logging) without
// requiring a config file at all. Breaker thresholds have no environment
// overlay; they come from the YAML document or the defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Pool    PoolConfig    `yaml:"pool"`
	Cache   CacheConfig   `yaml:"cache"`
	Breaker BreakerConfig `yaml:"breaker"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	KernelTimeout     time.Duration `yaml:"kernel_timeout"`
	MaxPoints         int           `yaml:"max_points"`
	CORSAllowedOrigin string        `yaml:"cors_allowed_origin"`
	MemoryLimitBytes  int64         `yaml:"memory_limit_bytes"`
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers  int `yaml:"workers"`
	QueueCap int `yaml:"queue_capacity"`
}

// CacheConfig sizes the result cache.
type CacheConfig struct {
	MaxEntries  int           `yaml:"max_entries"`
	MaxAge      time.Duration `yaml:"max_age"`
	NegativeTTL time.Duration `yaml:"negative_ttl"`
}

// BreakerConfig holds the circuit breaker's thresholds.
type BreakerConfig struct {
	OpenThreshold     float64       `yaml:"open_threshold"`
	ShedThreshold     float64       `yaml:"shed_threshold"`
	RecoverThreshold  float64       `yaml:"recover_threshold"`
	ReopenThreshold   float64       `yaml:"reopen_threshold"`
	HalfOpenCostRatio float64       `yaml:"half_open_cost_ratio"`
	CoolDown          time.Duration `yaml:"cool_down"`
	BaseRetryAfter    time.Duration `yaml:"base_retry_after"`
}

// AuthConfig configures the admin Basic-Auth escape hatch.
type AuthConfig struct {
	AdminBasicUser string `yaml:"admin_basic_user"`
	AdminBasicPass string `yaml:"admin_basic_pass"`
}

// LoggingConfig configures the zerolog sink.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" | "text"
}

// Default returns the baked-in defaults: worker count, queue depth, breaker
// thresholds, cache sizing.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			RequestTimeout:    30 * time.Second,
			KernelTimeout:     10 * time.Second,
			MaxPoints:         10_000,
			CORSAllowedOrigin: "*",
			MemoryLimitBytes:  1 << 30, // 1 GiB
		},
		Pool: PoolConfig{
			Workers:  0, // 0 => max(2, NumCPU-1) at construction time
			QueueCap: 0, // 0 => 4*Workers at construction time
		},
		Cache: CacheConfig{
			MaxEntries:  10_000,
			MaxAge:      300 * time.Second,
			NegativeTTL: 30 * time.Second,
		},
		Breaker: BreakerConfig{
			OpenThreshold:     0.80,
			ShedThreshold:     0.95,
			RecoverThreshold:  0.60,
			ReopenThreshold:   0.80,
			HalfOpenCostRatio: 0.10,
			CoolDown:          10 * time.Second,
			BaseRetryAfter:    5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML document from path (if non-empty and present) over the
// defaults, then applies environment overlays.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("EPC_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if n := getenvInt("EPC_WORKERS", -1); n >= 0 {
		c.Pool.Workers = n
	}
	if n := getenvInt("EPC_QUEUE_CAPACITY", -1); n >= 0 {
		c.Pool.QueueCap = n
	}
	if n := getenvInt("EPC_MAX_POINTS", -1); n > 0 {
		c.Server.MaxPoints = n
	}
	if v := os.Getenv("EPC_CORS_ORIGIN"); v != "" {
		c.Server.CORSAllowedOrigin = v
	}
	if v := os.Getenv("EPC_ADMIN_BASIC_USER"); v != "" {
		c.Auth.AdminBasicUser = v
	}
	if v := os.Getenv("EPC_ADMIN_BASIC_PASS"); v != "" {
		c.Auth.AdminBasicPass = v
	}
	if v := os.Getenv("EPC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EPC_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
