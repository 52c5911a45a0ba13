package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 6*time.Hour, cfg.Schedule.ParseCollectInterval())
	assert.Equal(t, time.Hour, cfg.Schedule.ParseRescoreInterval())
	assert.Equal(t, 12*time.Hour, cfg.Cache.ParseTTL())
	assert.Equal(t, ProviderSemanticScholar, cfg.Citations.Provider)
}

func TestLoadYAML(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeFile(t, ".", "config.yaml", `
database:
  driver: postgres
  dsn: postgres://localhost/paperpulse?sslmode=disable
schedule:
  collect_interval: 30m
  rescore_interval: nonsense
citations:
  provider: openalex
cache:
  redis_addr: localhost:6379
  ttl: 2h
alerts:
  min_score: 0.5
  top_n: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Schedule.ParseCollectInterval())
	assert.Equal(t, time.Hour, cfg.Schedule.ParseRescoreInterval(), "unparseable intervals fall back")
	assert.Equal(t, ProviderOpenAlex, cfg.Citations.Provider)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 2*time.Hour, cfg.Cache.ParseTTL())
	assert.Equal(t, 3, cfg.Alerts.TopN)
	assert.True(t, cfg.Sources.ArXiv.Enabled, "unset keys keep defaults")
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PAPERPULSE_DB_DSN", "/tmp/override.db")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.test/x")
	t.Setenv("PAPERPULSE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.DSN)
	assert.Equal(t, "ghp_test", cfg.Mentions.Token)
	assert.True(t, cfg.Alerts.Slack.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, ".", ".env", "SEMANTIC_SCHOLAR_API_KEY=from-dotenv\nOPENALEX_EMAIL=ops@example.org\n")
	t.Setenv("OPENALEX_EMAIL", "env@example.org")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Citations.APIKey)
	assert.Equal(t, "env@example.org", cfg.Citations.Email)

	// godotenv.Load sets process env; clear what the test introduced.
	os.Unsetenv("SEMANTIC_SCHOLAR_API_KEY")
}

func TestLoadErrors(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load("missing.yaml")
	assert.ErrorContains(t, err, "read config")

	bad := writeFile(t, ".", "bad.yaml", "database: [")
	_, err = Load(bad)
	assert.ErrorContains(t, err, "parse config")

	provider := writeFile(t, ".", "provider.yaml", "citations:\n  provider: scholar\n")
	_, err = Load(provider)
	assert.ErrorContains(t, err, "citations.provider")

	driver := writeFile(t, ".", "driver.yaml", "database:\n  driver: mysql\n")
	_, err = Load(driver)
	assert.ErrorContains(t, err, "database.driver")
}
