package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "badger", cfg.Storage.Driver)
	assert.Equal(t, "Europe/Prague", cfg.Timezone.Name)
	assert.Equal(t, 5*time.Minute, cfg.Scrape.Interval)
	assert.Equal(t, 10*time.Second, cfg.Scrape.Timeout)
	assert.Equal(t, 8, cfg.Predict.LookbackWeeks)
	assert.Equal(t, Limit{Requests: 30, Window: 5 * time.Minute}, cfg.RateLimit.Predict)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
scrape:
  interval: 2m
predict:
  lookback_weeks: 4
`), 0o600))

	t.Setenv("NTK_SERVER__PORT", "9100")
	t.Setenv("NTK_CACHE__PREDICT", "45s")
	t.Setenv("NTK_SERVER__CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Server.Port, "env wins over file")
	assert.Equal(t, 2*time.Minute, cfg.Scrape.Interval)
	assert.Equal(t, 4, cfg.Predict.LookbackWeeks)
	assert.Equal(t, 45*time.Second, cfg.Cache.Predict)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "3000")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/ntk")
	t.Setenv("NTK_STORAGE__DRIVER", "postgres")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "postgres://u:p@localhost/ntk", cfg.Storage.Postgres.DSN)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"unknown zone", func(c *Config) { c.Timezone.Name = "Nowhere/Land" }},
		{"reversed day window", func(c *Config) { c.Predict.StartOfDay = "20:00"; c.Predict.EndOfDay = "06:00" }},
		{"bad slot", func(c *Config) { c.Predict.StartOfDay = "6am" }},
		{"zero interval", func(c *Config) { c.Scrape.Interval = 0 }},
		{"bad url", func(c *Config) { c.Scrape.URL = "not a url" }},
		{"lookback too long", func(c *Config) { c.Predict.LookbackWeeks = 100 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
