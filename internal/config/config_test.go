package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const configContent = `
smd:
  auth_path: "/etc/smdcollect/auth.json"
  token_url: "https://api.pge.com/datacustodian/oauth/v2/token"
  timezone: "America/Los_Angeles"

collector:
  archive_dir: "/var/lib/smdcollect/espi"
  seen_cache_size: 64

database:
  host: "localhost"
  port: 5432
  name: "usage"
  user: "collector"
  password: "secret"
  ssl_mode: "disable"

schedule:
  enabled: true
  daily_spec: "30 7 * * *"

logging:
  level: "debug"
  format: "json"
`

func TestLoad(t *testing.T) {
	config, err := Load(writeConfig(t, configContent))
	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, "/etc/smdcollect/auth.json", config.SMD.AuthPath)
	assert.Equal(t, "America/Los_Angeles", config.SMD.Timezone)
	assert.Equal(t, "/var/lib/smdcollect/espi", config.Collector.ArchiveDir)
	assert.Equal(t, 64, config.Collector.SeenCacheSize)
	assert.Equal(t, "30 7 * * *", config.Schedule.DailySpec)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t,
		"host=localhost port=5432 user=collector password=secret dbname=usage sslmode=disable",
		config.Database.ConnString())
}

func TestLoadDefaults(t *testing.T) {
	config, err := Load(writeConfig(t, "database:\n  name: usage\n"))
	require.NoError(t, err)

	assert.Equal(t, "auth/auth.json", config.SMD.AuthPath)
	assert.Equal(t, "America/Los_Angeles", config.SMD.Timezone)
	assert.Equal(t, 256, config.Collector.SeenCacheSize)
	assert.Equal(t, 5432, config.Database.Port)
	assert.True(t, config.Schedule.Enabled)
	assert.Equal(t, "0 8 * * *", config.Schedule.DailySpec)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Setenv("SMD_DATABASE_HOST", "envhost")
	t.Setenv("SMD_DATABASE_PORT", "5433")

	config, err := Load(writeConfig(t, configContent))
	require.NoError(t, err)

	assert.Equal(t, "envhost", config.Database.Host)
	assert.Equal(t, 5433, config.Database.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
