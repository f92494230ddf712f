// Package cliconfig is the daemon-level settings layer: the handful of
// knobs that exist only because istgtd is a process (not a protocol
// entity) — the §6 config file path, foreground/daemon mode, graceful
// shutdown timeout, and the operator-facing metrics/HTTP bind address.
// Bound with spf13/viper (flags > env ISTGTD_* > default): Load layers CLI
// flags over environment over hardcoded defaults. No daemon-level config
// file is read.
package cliconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is istgtd's daemon-level configuration, distinct from the §6
// iSCSI config tree (internal/config), which this struct merely points at
// via ConfigPath.
type Config struct {
	// ConfigPath is the §6 config file istgtd serves (Global/PortalGroup/
	// InitiatorGroup/LogicalUnit/AuthGroup/UnitControl sections).
	ConfigPath string `mapstructure:"config_path"`

	// Foreground disables daemonization. The CLI always runs in the
	// foreground under the Go runtime; the value is loaded but nothing else
	// reads it.
	Foreground bool `mapstructure:"foreground"`

	// ShutdownTimeout bounds how long Shutdown waits for connection workers
	// to drain before forcing close.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// LogLevel / LogFormat seed internal/logger at startup.
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// MetricsAddr is the bind address for the Prometheus /metrics and
	// operator /healthz, /status endpoints. Empty disables the HTTP surface.
	MetricsAddr string `mapstructure:"metrics_addr"`

	// TracingEnabled turns on span export (internal/tracing) for the
	// connection → task → backing-store span chain. Off by default: span
	// export is an operator opt-in, not a protocol requirement.
	TracingEnabled bool `mapstructure:"tracing_enabled"`
}

// Default returns istgtd's baseline daemon configuration.
func Default() Config {
	return Config{
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "INFO",
		LogFormat:       "text",
		MetricsAddr:     ":9260",
	}
}

// Load layers flags (already bound into v by the caller) over ISTGTD_*
// environment variables over Default(). Defaults are seeded into v itself
// via SetDefault rather than merged into the decoded struct afterward: a
// bound pflag that the caller didn't pass still carries its zero value
// (e.g. an unset --log-level flag is ""), and Unmarshal-ing over a
// pre-populated struct would let that zero value stomp the real default.
// SetDefault sits below BindPFlag/AutomaticEnv in viper's own precedence,
// so an unset flag correctly falls through to it.
func Load(v *viper.Viper) (Config, error) {
	def := Default()
	v.SetDefault("config_path", def.ConfigPath)
	v.SetDefault("foreground", def.Foreground)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("tracing_enabled", def.TracingEnabled)

	v.SetEnvPrefix("ISTGTD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal daemon config: %w", err)
	}
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", cfg.ConfigPath, err)
		}
	}
	return cfg, nil
}
