package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoConfigPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, ":9100", cfg.Metrics.Addr)
	require.Equal(t, 5, cfg.Metrics.IntervalSeconds)
	require.EqualValues(t, 22, cfg.Pool.SlabBits)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadOverridesFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matchcore.yaml")
	contents := "server:\n  addr: \":7000\"\npool:\n  slab_bits: 10\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":7000", cfg.Server.Addr)
	require.EqualValues(t, 10, cfg.Pool.SlabBits)
	// Unset fields still fall back to defaults.
	require.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/matchcore.yaml")
	require.Error(t, err)
}
