package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("M360_SESSION_SECRET", testSecret)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "data/modern360.db", cfg.Database.Path)
	assert.Equal(t, ":8080", cfg.User.Addr)
	assert.Equal(t, ":8081", cfg.Admin.Addr)
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL.Duration())
	assert.Equal(t, 15*time.Minute, cfg.Login.CodeTTL.Duration())
	assert.Equal(t, "log", cfg.Mail.Transport)
	assert.Equal(t, 10, cfg.Login.RatePerMinute)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modern360.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /var/lib/m360/app.db
user:
  base_url: https://feedback.example.com/
session:
  secret: `+testSecret+`
  ttl: 24h
mail:
  transport: smtp
  host: smtp.example.com
  port: 465
login:
  code_ttl: 10m
projection:
  columns:
    leadership_1: q1
`), 0o600))
	t.Setenv("M360_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("M360_MAIL_FROM", "hr@example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "https://feedback.example.com", cfg.User.BaseURL)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL.Duration())
	assert.Equal(t, 10*time.Minute, cfg.Login.CodeTTL.Duration())
	assert.Equal(t, "smtp", cfg.Mail.Transport)
	assert.Equal(t, 465, cfg.Mail.Port)
	assert.Equal(t, "hr@example.com", cfg.Mail.From)
	assert.Equal(t, map[string]string{"leadership_1": "q1"}, cfg.Projection.Columns)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"short secret":      func(c *Config) { c.Session.Secret = "short" },
		"unknown transport": func(c *Config) { c.Mail.Transport = "pigeon" },
		"smtp without host": func(c *Config) { c.Mail.Transport = "smtp" },
		"nats without url":  func(c *Config) { c.Mail.Transport = "nats" },
		"bad level":         func(c *Config) { c.Log.Level = "loud" },
		"bad format":        func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{Session: SessionConfig{Secret: testSecret}}
			applyDefaults(cfg)
			require.NoError(t, cfg.Validate())
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	t.Setenv("M360_SESSION_SECRET", testSecret)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestRequireAdminCredentials(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireAdminCredentials())
	cfg.Admin.PasswordHash = "$2a$10$abc"
	assert.NoError(t, cfg.RequireAdminCredentials())
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "hunter2", s.Value())
	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(b))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "database.path", envKey("M360_DATABASE_PATH"))
	assert.Equal(t, "mail.nats_subject", envKey("M360_MAIL_NATS_SUBJECT"))
	assert.Equal(t, "session.cookie_secure", envKey("M360_SESSION_COOKIE_SECURE"))
}
