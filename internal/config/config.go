// Package config binds the engine's configuration keys (spec.md section
// 6) from a YAML file and the environment, via viper + mapstructure,
// mirroring the teacher's FDOServerConfig/DatabaseConfig layering in
// cmd/config.go.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SessionConfig binds the session-lifecycle keys of spec.md section 6.
type SessionConfig struct {
	TimeoutMinutes       int  `mapstructure:"session_timeout_minutes"`
	ClearClipboardSeconds int `mapstructure:"clear_clipboard_seconds"`
	LockOnIdle           bool `mapstructure:"lock_on_idle"`
}

// Timeout returns the configured session idle timeout as a duration.
func (s SessionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMinutes) * time.Minute
}

func (s *SessionConfig) validate() error {
	if s.TimeoutMinutes < 1 || s.TimeoutMinutes > 1440 {
		return errors.New("session_timeout_minutes must be in [1, 1440]")
	}
	return nil
}

// CacheConfig binds the encrypted response cache keys of spec.md
// section 6.
type CacheConfig struct {
	MaxAgeMs     int `mapstructure:"cache_max_age_ms"`
	MaxEntries   int `mapstructure:"cache_max_entries"`
}

// MaxAge returns the configured cache TTL as a duration.
func (c CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeMs) * time.Millisecond
}

// SyncConfig binds the pending-operations sync keys of spec.md
// section 6.
type SyncConfig struct {
	IntervalMs       int `mapstructure:"sync_interval_ms"`
	BatchSize        int `mapstructure:"sync_batch_size"`
	MaxRetries       int `mapstructure:"sync_max_retries"`
	DecryptBatchSize int `mapstructure:"decrypt_batch_size"`
}

// Interval returns the configured sweep delay as a duration.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

// DatabaseConfig selects and validates the persistence driver, mirroring
// the teacher's DatabaseConfig.getState in cmd/config.go.
type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

func (d *DatabaseConfig) validate() error {
	if d.DSN == "" {
		return errors.New("database configuration error: dsn is required")
	}
	d.Type = strings.ToLower(d.Type)
	if d.Type != "sqlite" && d.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s (must be 'sqlite' or 'postgres')", d.Type)
	}
	return nil
}

// HTTPConfig binds the reference server's listen address, mirroring the
// teacher's HTTPConfig in cmd/config.go.
type HTTPConfig struct {
	IP   string `mapstructure:"ip"`
	Port string `mapstructure:"port"`
}

// ListenAddress returns the concatenated IP:Port address for listening.
func (h HTTPConfig) ListenAddress() string {
	return h.IP + ":" + h.Port
}

// LogConfig binds the structured logging level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the top-level structure the whole engine binds from a YAML
// file and environment, per the teacher's FDOServerConfig pattern.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	DB       DatabaseConfig `mapstructure:"db"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Session  SessionConfig  `mapstructure:"session"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sync     SyncConfig     `mapstructure:"sync"`
}

// Defaults sets every key's default value on v, per spec.md section 6.
func Defaults(v *viper.Viper) {
	v.SetDefault("session.session_timeout_minutes", 60)
	v.SetDefault("session.clear_clipboard_seconds", 30)
	v.SetDefault("session.lock_on_idle", true)
	v.SetDefault("cache.cache_max_age_ms", 300_000)
	v.SetDefault("cache.cache_max_entries", 1000)
	v.SetDefault("sync.sync_interval_ms", 5000)
	v.SetDefault("sync.sync_batch_size", 10)
	v.SetDefault("sync.sync_max_retries", 3)
	v.SetDefault("sync.decrypt_batch_size", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("http.ip", "0.0.0.0")
	v.SetDefault("http.port", "8443")
	v.SetDefault("db.type", "sqlite")
}

// Load reads configuration from path (if non-empty) and the environment
// into a Config, applying defaults first, mirroring the teacher's
// viper.BindPFlags + mapstructure.Decode flow. The caller is expected to
// apply any command-line overrides (e.g. db type/DSN) before calling
// Validate, since flags outrank both the file and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	Defaults(v)
	v.SetEnvPrefix("keyboxd")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate enforces the invariants of every sub-config. Call this after
// applying any flag-level overrides.
func (c *Config) Validate() error {
	if err := c.Session.validate(); err != nil {
		return err
	}
	if err := c.DB.validate(); err != nil {
		return err
	}
	return nil
}
