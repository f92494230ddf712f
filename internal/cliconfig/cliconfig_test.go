package cliconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaultsWhenNothingSet(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadPrefersExplicitlySetValueOverDefault(t *testing.T) {
	v := viper.New()
	v.Set("log_level", "DEBUG")

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "DEBUG", cfg.LogLevel)
	// untouched fields still carry their defaults
	require.Equal(t, Default().LogFormat, cfg.LogFormat)
}

func TestLoadEnvironmentOverridesDefault(t *testing.T) {
	t.Setenv("ISTGTD_LOG_FORMAT", "json")
	cfg, err := Load(viper.New())
	require.NoError(t, err)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestLoadValidatesConfigPathExists(t *testing.T) {
	v := viper.New()
	v.Set("config_path", filepath.Join(t.TempDir(), "missing.conf"))
	_, err := Load(v)
	require.Error(t, err)
}

func TestLoadAcceptsExistingConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "istgt.conf")
	require.NoError(t, os.WriteFile(path, []byte("MaxSessions 16\n"), 0o644))

	v := viper.New()
	v.Set("config_path", path)
	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, path, cfg.ConfigPath)
}
