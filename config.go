package folio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/eringen/folio/internal/metrics"
	"github.com/eringen/folio/notify"
	"github.com/eringen/folio/store"
)

// EnvPrefix prefixes every environment variable read by LoadConfig, e.g.
// FOLIO_ADMIN_PASSWORD or FOLIO_SMTP_HOST.
const EnvPrefix = "FOLIO"

// SiteConfig holds all configuration for a folio site.
type SiteConfig struct {
	Name        string `yaml:"name" envconfig:"NAME"`               // Site name (default "Blog")
	URL         string `yaml:"url" envconfig:"URL"`                 // Canonical URL (default "http://localhost:3000")
	Description string `yaml:"description" envconfig:"DESCRIPTION"` // Site description for RSS
	Author      string `yaml:"author" envconfig:"AUTHOR"`           // Default post author and JSON-LD author

	Addr         string `yaml:"addr" envconfig:"ADDR"`                   // Listen address (default ":3000")
	DatabasePath string `yaml:"database_path" envconfig:"DATABASE_PATH"` // Local SQLite for subscribers, notification log and images (default "data/folio.db")

	// LocalStorePath is the badger directory of the fallback post store
	// (default "data/posts").
	LocalStorePath string `yaml:"local_store_path" envconfig:"LOCAL_STORE_PATH"`
	// RemoteDriver and RemoteDSN select the remote post store. An empty DSN
	// leaves the store unconfigured and every post goes to the local store.
	RemoteDriver  string        `yaml:"remote_driver" envconfig:"REMOTE_DRIVER"`
	RemoteDSN     string        `yaml:"remote_dsn" envconfig:"REMOTE_DSN"`
	RemoteTimeout time.Duration `yaml:"remote_timeout" envconfig:"REMOTE_TIMEOUT"` // default 5s
	PinOnFailure  bool          `yaml:"pin_on_failure" envconfig:"PIN_ON_FAILURE"`

	AdminPassword string `yaml:"admin_password" envconfig:"ADMIN_PASSWORD"` // Required
	SessionSecret string `yaml:"session_secret" envconfig:"SESSION_SECRET"` // Required
	CookieSecure  bool   `yaml:"cookie_secure" envconfig:"COOKIE_SECURE"`

	// AdminEmail receives contact messages and fan-out summaries.
	AdminEmail     string            `yaml:"admin_email" envconfig:"ADMIN_EMAIL"`
	SMTP           notify.SMTPConfig `yaml:"smtp" envconfig:"SMTP"`
	NotifyInterval time.Duration     `yaml:"notify_interval" envconfig:"NOTIFY_INTERVAL"` // default 250ms
	SendTimeout    time.Duration     `yaml:"send_timeout" envconfig:"SEND_TIMEOUT"`       // default 30s
	LogRetention   time.Duration     `yaml:"log_retention" envconfig:"LOG_RETENTION"`     // 0 keeps the notification log forever

	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"` // debug, info, warn or error
	LogFile  string `yaml:"log_file" envconfig:"LOG_FILE"`   // rotate into this file instead of stdout

	PostCacheTTL time.Duration `yaml:"post_cache_ttl" envconfig:"POST_CACHE_TTL"` // default 5min
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Blog"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/folio.db"
	}
	if c.LocalStorePath == "" {
		c.LocalStorePath = "data/posts"
	}
	if c.RemoteDriver == "" {
		c.RemoteDriver = "sqlite"
	}
	if c.RemoteTimeout == 0 {
		c.RemoteTimeout = 5 * time.Second
	}
	if c.NotifyInterval == 0 {
		c.NotifyInterval = 250 * time.Millisecond
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = 5 * time.Minute
	}
}

func (c SiteConfig) validate() error {
	if c.AdminPassword == "" {
		return errors.New("folio: AdminPassword is required")
	}
	if c.SessionSecret == "" {
		return errors.New("folio: SessionSecret is required")
	}
	return nil
}

// LoadConfig reads the optional YAML file at path, applies FOLIO_*
// environment overrides and fills in defaults.
func LoadConfig(path string) (SiteConfig, error) {
	var cfg SiteConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("loading config from environment: %w", err)
	}
	cfg.setDefaults()
	return cfg, nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback runs after the built-in routes are registered.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory served under /public (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithLogger replaces the logger built from LogLevel and LogFile.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.Logger = l
	}
}

// WithTransport replaces the mail transport chosen from the SMTP settings.
func WithTransport(t notify.Transport) Option {
	return func(a *App) {
		a.transport = t
	}
}

// WithRemoteBackend sets the remote post store instead of opening
// RemoteDSN.
func WithRemoteBackend(b store.Backend) Option {
	return func(a *App) {
		a.remote = b
	}
}

// WithMetrics replaces the default metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) {
		a.Metrics = m
	}
}
