package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultDataDir, cfg.Sources.DataDir)
	require.Equal(t, DefaultSourceHints, cfg.Sources.Hints)
	require.True(t, cfg.Features.EditsEnabled())
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, int64(DefaultMaxUploadBytes), cfg.Limits.MaxUploadBytes)
	require.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sheetboard.yaml")
	require.NoError(t, os.WriteFile(file, []byte("sources:\n  data_dir: /srv/data\n  hints: [plan]\nlimits:\n  max_sessions: 3\nlogging:\n  level: debug\n"), 0o600))

	t.Setenv("SHEETBOARD_CONFIG_FILE", file)
	t.Setenv("SHEETBOARD_SOURCES_DATA_DIR", "/override")
	t.Setenv("SHEETBOARD_FEATURES_ENABLE_EDITS", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/override", cfg.Sources.DataDir)
	require.Equal(t, []string{"plan"}, cfg.Sources.Hints)
	require.Equal(t, 3, cfg.Limits.MaxSessions)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.False(t, cfg.Features.EditsEnabled())
}

func TestLoad_RejectsNegativeLimits(t *testing.T) {
	t.Setenv("SHEETBOARD_LIMITS_MAX_CACHED_WORKBOOKS", "-1")
	_, err := Load()
	require.Error(t, err)
}
