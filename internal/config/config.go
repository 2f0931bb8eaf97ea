// Package config loads modern360 settings from an optional YAML file and
// M360_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"
)

const (
	// EnvPrefix namespaces every environment override.
	EnvPrefix = "M360_"

	maxConfigFileSize = 1024 * 1024
)

type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	User       UserConfig       `koanf:"user"`
	Admin      AdminConfig      `koanf:"admin"`
	Session    SessionConfig    `koanf:"session"`
	Mail       MailConfig       `koanf:"mail"`
	Login      LoginConfig      `koanf:"login"`
	Log        LogConfig        `koanf:"log"`
	Projection ProjectionConfig `koanf:"projection"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
	// MigrationsDir overrides the embedded migrations when it exists.
	MigrationsDir string `koanf:"migrations_dir"`
}

type UserConfig struct {
	Addr    string `koanf:"addr"`
	BaseURL string `koanf:"base_url"`
	// StaticDir, when set, serves a built frontend from /.
	StaticDir string `koanf:"static_dir"`
}

type AdminConfig struct {
	Addr         string `koanf:"addr"`
	Username     string `koanf:"username"`
	Password     Secret `koanf:"password"`
	PasswordHash Secret `koanf:"password_hash"`
}

type SessionConfig struct {
	Secret       Secret   `koanf:"secret"`
	TTL          Duration `koanf:"ttl"`
	AdminTTL     Duration `koanf:"admin_ttl"`
	CookieSecure bool     `koanf:"cookie_secure"`
}

type MailConfig struct {
	// Transport is smtp, nats or log.
	Transport   string `koanf:"transport"`
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	Username    string `koanf:"username"`
	Password    Secret `koanf:"password"`
	From        string `koanf:"from"`
	NATSURL     string `koanf:"nats_url"`
	NATSSubject string `koanf:"nats_subject"`
}

type LoginConfig struct {
	CodeTTL Duration `koanf:"code_ttl"`
	// RatePerMinute bounds login and token submission attempts per client IP.
	RatePerMinute int `koanf:"rate_per_minute"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ProjectionConfig overrides the answer key to column mapping of the
// response projection. Empty means q1..q39 onto the columns of the same name.
type ProjectionConfig struct {
	Columns map[string]string `koanf:"columns"`
}

// Load reads configPath (when non-empty) and then applies environment
// overrides. M360_DATABASE_PATH maps to database.path and
// M360_MAIL_NATS_URL to mail.nats_url: the first segment after the prefix
// names the section and the rest is the field.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/modern360.db"
	}
	if cfg.User.Addr == "" {
		cfg.User.Addr = ":8080"
	}
	if cfg.User.BaseURL == "" {
		cfg.User.BaseURL = "http://localhost:8080"
	}
	cfg.User.BaseURL = strings.TrimRight(cfg.User.BaseURL, "/")
	if cfg.Admin.Addr == "" {
		cfg.Admin.Addr = ":8081"
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = "admin"
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = Duration(7 * 24 * time.Hour)
	}
	if cfg.Session.AdminTTL == 0 {
		cfg.Session.AdminTTL = Duration(12 * time.Hour)
	}
	if cfg.Mail.Transport == "" {
		cfg.Mail.Transport = "log"
	}
	cfg.Mail.Transport = strings.ToLower(cfg.Mail.Transport)
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 587
	}
	if cfg.Mail.From == "" {
		cfg.Mail.From = "noreply@modern360.local"
	}
	if cfg.Mail.NATSSubject == "" {
		cfg.Mail.NATSSubject = "modern360.mail"
	}
	if cfg.Login.CodeTTL == 0 {
		cfg.Login.CodeTTL = Duration(15 * time.Minute)
	}
	if cfg.Login.RatePerMinute == 0 {
		cfg.Login.RatePerMinute = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate checks the settings every command needs. Admin credentials are
// checked by RequireAdminCredentials since only the admin server uses them.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Session.Secret.Value()) < 16 {
		errs = append(errs, errors.New("session.secret must be at least 16 characters"))
	}
	switch c.Mail.Transport {
	case "log":
	case "smtp":
		if c.Mail.Host == "" {
			errs = append(errs, errors.New("mail.host is required for the smtp transport"))
		}
		if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
			errs = append(errs, fmt.Errorf("mail.port %d out of range", c.Mail.Port))
		}
	case "nats":
		if c.Mail.NATSURL == "" {
			errs = append(errs, errors.New("mail.nats_url is required for the nats transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("mail.transport %q must be smtp, nats or log", c.Mail.Transport))
	}
	if c.Login.RatePerMinute < 0 {
		errs = append(errs, errors.New("login.rate_per_minute cannot be negative"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}
	return errors.Join(errs...)
}

// RequireAdminCredentials reports whether the admin login can be checked.
func (c *Config) RequireAdminCredentials() error {
	if c.Admin.Password == "" && c.Admin.PasswordHash == "" {
		return errors.New("admin.password or admin.password_hash is required")
	}
	return nil
}
