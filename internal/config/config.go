// Package config loads captable settings from flags, environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys understood by Load. Environment variables use the CAPTABLE_ prefix
// with dots and dashes replaced by underscores, e.g. CAPTABLE_SERVICE_URL.
const (
	KeyServiceURL      = "service.url"
	KeyServiceTimeout  = "service.timeout"
	KeyBreakerFailures = "service.breaker_failures"
	KeyBreakerCooldown = "service.breaker_cooldown"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "CAPTABLE"

// ErrInvalid is wrapped by every validation failure of Load.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration.
type Config struct {
	ServiceURL      string
	ServiceTimeout  time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	LogLevel        string
	LogFormat       string
}

// New returns a viper instance with defaults and environment binding set
// up. Callers bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers default values.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyServiceURL, "")
	v.SetDefault(KeyServiceTimeout, 10*time.Second)
	v.SetDefault(KeyBreakerFailures, 3)
	v.SetDefault(KeyBreakerCooldown, 30*time.Second)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}

// ReadFile merges the config file at path (yaml, json or toml, by
// extension) into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ServiceURL:      strings.TrimSpace(v.GetString(KeyServiceURL)),
		ServiceTimeout:  v.GetDuration(KeyServiceTimeout),
		BreakerCooldown: v.GetDuration(KeyBreakerCooldown),
		LogLevel:        strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		LogFormat:       strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
	}

	failures := v.GetInt(KeyBreakerFailures)
	if failures < 1 {
		return nil, fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalid, KeyBreakerFailures, failures)
	}
	cfg.BreakerFailures = uint32(failures)

	if cfg.ServiceURL != "" {
		u, err := url.Parse(cfg.ServiceURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: %s must be an http(s) URL, got %q", ErrInvalid, KeyServiceURL, cfg.ServiceURL)
		}
	}
	if cfg.ServiceTimeout <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive", ErrInvalid, KeyServiceTimeout)
	}
	if cfg.BreakerCooldown <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive", ErrInvalid, KeyBreakerCooldown)
	}
	switch cfg.LogFormat {
	case "console", "json":
	default:
		return nil, fmt.Errorf("%w: %s must be console or json, got %q", ErrInvalid, KeyLogFormat, cfg.LogFormat)
	}
	switch cfg.LogLevel {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return nil, fmt.Errorf("%w: unknown %s %q", ErrInvalid, KeyLogLevel, cfg.LogLevel)
	}
	return cfg, nil
}
