package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/fieldops.sqlite", cfg.Database.Path)
	require.Equal(t, 12*time.Hour, cfg.Auth.JWT.TTL)
	require.True(t, cfg.Backup.Enabled)
	require.Equal(t, 24*time.Hour, cfg.Backup.Interval)
	require.Equal(t, 14, cfg.Backup.RetentionDays)
	require.Equal(t, 3, cfg.Backup.KeepMinCount)
	require.Equal(t, 5*time.Minute, cfg.Rules.Interval)
	require.Equal(t, 5, cfg.Rules.HighPriorityThreshold)
	require.Zero(t, cfg.Rules.OverdueDays)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	contents := []byte(`
server:
  port: 9100
  log_level: debug
database:
  driver: postgres
  postgres:
    host: db.internal
    port: 5433
    database: fieldops
    username: ops
    password: hunter2
rules:
  interval: 90s
  high_priority_threshold: 7
backup:
  enabled: false
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), contents, 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 90*time.Second, cfg.Rules.Interval)
	require.Equal(t, 7, cfg.Rules.HighPriorityThreshold)
	require.False(t, cfg.Backup.Enabled)

	dbCfg := cfg.DatabaseSettings()
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 5433, dbCfg.Port)
	require.Equal(t, "fieldops", dbCfg.Name)
	require.Equal(t, "ops", dbCfg.User)
	require.Equal(t, "hunter2", dbCfg.Password)
}

func TestConfigureLoggingDefaultsToInfo(t *testing.T) {
	require.NoError(t, ConfigureLogging(""))
	require.NoError(t, ConfigureLogging("debug"))
}
