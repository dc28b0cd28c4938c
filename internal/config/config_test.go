package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "studyq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
database:
  driver: postgres
  dsn: postgres://studyq@localhost/studyq
admission:
  tier: pro
study:
  daily_new_limit: 5
http:
  session_idle: 30m
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://studyq@localhost/studyq", cfg.Database.DSN)
	assert.Equal(t, "pro", cfg.Admission.Tier)
	assert.Equal(t, 5, cfg.Study.DailyNewLimit)
	assert.Equal(t, 4, cfg.Study.DayStartHour, "unset keys keep their defaults")
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Minute, cfg.HTTP.SessionIdle)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "database:\n  dsn: from-file.db\n")
	t.Setenv("STUDYQ_DATABASE__DSN", "from-env.db")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database.DSN)
}

func TestLoadFlagsWin(t *testing.T) {
	t.Setenv("STUDYQ_HTTP__ADDR", ":7070")
	t.Setenv("STUDYQ_DATABASE__DSN", "from-env.db")

	fs := pflag.NewFlagSet("studyq", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--http.addr=:9090", "--study.abort_on_write_error"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.Study.AbortOnWriteError)
	assert.Equal(t, "from-env.db", cfg.Database.DSN, "an unset flag does not mask the environment")
}

func TestLoadConfigFlag(t *testing.T) {
	path := writeFile(t, "admission:\n  tier: enterprise\n")

	fs := pflag.NewFlagSet("studyq", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path}))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, "enterprise", cfg.Admission.Tier)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown tier", func(c *Config) { c.Admission.Tier = "platinum" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"unknown quota backend", func(c *Config) { c.Admission.QuotaBackend = "memcached" }},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }},
		{"day start out of range", func(c *Config) { c.Study.DayStartHour = 24 }},
		{"no session idle timeout", func(c *Config) { c.HTTP.SessionIdle = 0 }},
		{"redis backend without address", func(c *Config) {
			c.Admission.QuotaBackend = "redis"
			c.Redis.Addr = ""
		}},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("STUDYQ_ADMISSION__TIER", "platinum")
	_, err := Load("", nil)
	assert.Error(t, err)
}
