package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

type testConfig struct {
	DB  DBConfig  `yaml:"db"`
	JWT JWTConfig `yaml:"jwt"`
}

func TestLoadConfigMergesEnvAndSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  user: taskflow
  password: ${DB_PASS}
  name: taskflow
jwt:
  secret: base-secret
  access_ttl: 1h
  refresh_ttl: 168h
`)
	writeFile(t, dir, "staging.yaml", `
db:
  host: db.staging
`)
	writeFile(t, dir, "secrets.env", `
# comment
DB_PASS="s3cret"
`)

	raw, err := LoadConfig("staging", dir)
	require.NoError(t, err)

	var cfg testConfig
	require.NoError(t, Decode(raw, &cfg))

	assert.Equal(t, "db.staging", cfg.DB.Host)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "s3cret", cfg.DB.Password)
	assert.Equal(t, time.Hour, cfg.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTTL)
}

func TestSystemEnvBeatsSecretsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "jwt:\n  secret: ${TASKFLOW_TEST_SECRET}\n")
	writeFile(t, dir, "secrets.env", "TASKFLOW_TEST_SECRET=from-file\n")
	t.Setenv("TASKFLOW_TEST_SECRET", "from-env")

	raw, err := LoadConfig("local", dir)
	require.NoError(t, err)

	var cfg testConfig
	require.NoError(t, Decode(raw, &cfg))
	assert.Equal(t, "from-env", cfg.JWT.Secret)
}

func TestLoadConfigMissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DBConfig{Host: "h", Port: 1, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "postgres://u:p@h:1/n?sslmode=disable", c.DSN())
	assert.Equal(t, "pgx5://u:p@h:1/n?sslmode=disable", c.MigrateURL())
}

func TestOverrideServerFromEnv(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("CORS_ORIGINS", "http://a,http://b")
	cfg := ServerConfig{Port: ":8080"}
	OverrideServerFromEnv(&cfg)
	assert.Equal(t, ":4000", cfg.Port)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.CORSOrigins)
}

func TestGetConfigEnv(t *testing.T) {
	t.Setenv("CONFIG_ENV", "")
	assert.Equal(t, "local", GetConfigEnv())

	t.Setenv("CONFIG_ENV", "prod")
	assert.Equal(t, "prod", GetConfigEnv())
	assert.Equal(t, "fallback", GetEnv("TASKFLOW_UNSET_KEY", "fallback"))
}
