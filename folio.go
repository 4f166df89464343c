// Package folio is a blog publishing service built with Go and Echo. It
// stores posts in a remote SQL store with a local badger fallback, notifies
// subscribers by email when posts go live and serves a JSON API, RSS and a
// sitemap.
package folio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/folio/internal/logging"
	"github.com/eringen/folio/internal/metrics"
	"github.com/eringen/folio/internal/sqlitedb"
	"github.com/eringen/folio/notify"
	"github.com/eringen/folio/publish"
	"github.com/eringen/folio/store"
	"github.com/eringen/folio/subscribers"
)

// App is the central folio application. It wires together the post store,
// the publishing workflow, the notification side and the HTTP layer.
type App struct {
	Config     SiteConfig
	Echo       *echo.Echo
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Store      *store.Adapter
	Cache      *PostCache
	Publisher  *publish.Publisher
	Dispatcher *notify.Dispatcher
	Registry   *subscribers.Registry
	NotifyLog  *notify.SQLiteLog
	Images     *ImageStore

	db           *sql.DB
	logOut       io.Writer
	remote       store.Backend
	transport    notify.Transport
	loginLimiter *Limiter
	formLimiter  *Limiter
	unsubscribe  *subscribers.Signer
	customRoutes []func(*App)
	staticDir    string
	ready        bool
}

// New creates an App with the given configuration. Nothing is opened until
// Setup or Start is called.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		staticDir: "public",
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Setup opens the databases, builds every component and registers
// middleware and routes. It is idempotent.
func (a *App) Setup() error {
	if a.ready {
		return nil
	}
	if err := a.Config.validate(); err != nil {
		return err
	}
	cfg := a.Config

	if a.Logger == nil {
		a.Logger, a.logOut = logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	}
	if a.Metrics == nil {
		a.Metrics = metrics.New()
	}

	db, err := sqlitedb.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("folio: open database: %w", err)
	}
	a.db = db

	local, err := store.OpenLocal(cfg.LocalStorePath)
	if err != nil {
		return fmt.Errorf("folio: open local store: %w", err)
	}
	remote := a.remote
	if remote == nil && cfg.RemoteDSN != "" {
		client, err := store.OpenSQL(cfg.RemoteDriver, cfg.RemoteDSN)
		if err != nil {
			// An unreachable remote leaves the adapter unconfigured.
			a.Logger.Warn("remote store unavailable, using local store only", "driver", cfg.RemoteDriver, "error", err)
		} else {
			remote = client
		}
	}
	a.Store, err = store.NewAdapter(local, remote, store.Options{
		RemoteTimeout: cfg.RemoteTimeout,
		PinOnFailure:  cfg.PinOnFailure,
		Logger:        a.Logger,
		Metrics:       a.Metrics,
	})
	if err != nil {
		local.Close()
		return fmt.Errorf("folio: store: %w", err)
	}
	a.Cache = NewPostCache(a.Store, cfg.PostCacheTTL)

	templates := notify.NewTemplates(cfg.Name, cfg.URL)
	if a.transport == nil {
		if cfg.SMTP.Enabled() {
			a.transport = notify.NewSMTPTransport(cfg.SMTP, templates)
		} else {
			a.Logger.Info("smtp not configured, notifications are logged only")
			a.transport = notify.NewLogTransport(templates, a.Logger)
		}
	}
	a.NotifyLog = notify.NewSQLiteLog(db)
	a.unsubscribe = subscribers.NewSigner(cfg.SessionSecret)
	a.Dispatcher = notify.NewDispatcher(a.transport, templates, a.NotifyLog, notify.Config{
		Interval:         cfg.NotifyInterval,
		SendTimeout:      cfg.SendTimeout,
		AdminEmail:       cfg.AdminEmail,
		UnsubscribeToken: a.unsubscribe.Token,
		Logger:           a.Logger,
		Metrics:          a.Metrics,
	})
	a.Registry = subscribers.NewRegistry(db)
	a.Publisher = publish.New(a.Store, a.Dispatcher, a.Registry, publish.Config{
		SiteURL:    cfg.URL,
		AdminEmail: cfg.AdminEmail,
		Logger:     a.Logger,
		Metrics:    a.Metrics,
	})
	a.Images = NewImageStore(db)

	a.loginLimiter = NewLimiter(5, time.Minute)
	a.formLimiter = NewLimiter(10, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.ready = true
	return nil
}

// Start runs Setup, schedules notification log retention and serves HTTP
// until the server is shut down.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}

	if a.Config.LogRetention > 0 {
		stop, err := a.NotifyLog.StartRetention(24*time.Hour, a.Config.LogRetention, a.Logger)
		if err != nil {
			return fmt.Errorf("folio: log retention: %w", err)
		}
		defer func() {
			if err := stop(); err != nil {
				a.Logger.Warn("stopping retention job", "error", err)
			}
		}()
	}

	a.Logger.Info("listening", "addr", a.Config.Addr, "store_mode", a.Store.Mode().String())
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.staticDir)
	e.GET("/images/:name", a.handleImage)

	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/metrics", echo.WrapHandler(a.Metrics.Handler()))
	e.GET("/blog/:slug/", a.handlePostPage)
	e.GET("/unsubscribe", a.handleUnsubscribeLink)

	api := e.Group("/api")
	api.GET("/posts", a.handleListPosts)
	api.GET("/posts/:slug", a.handleGetPost)
	api.POST("/posts/:slug/like", a.handleLike)
	api.POST("/subscribe", a.handleSubscribe)
	api.POST("/unsubscribe", a.handleUnsubscribe)
	api.POST("/contact", a.handleContact)

	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)

	admin := e.Group("/api/admin", requireAdmin)
	admin.GET("/posts", a.handleAdminListPosts)
	admin.POST("/posts", a.handleAdminPublish)
	admin.POST("/drafts", a.handleAdminDraft)
	admin.GET("/posts/:id", a.handleAdminGetPost)
	admin.PUT("/posts/:id", a.handleAdminUpdatePost)
	admin.DELETE("/posts/:id", a.handleAdminDeletePost)
	admin.POST("/posts/:id/archive", a.handleAdminArchive)
	admin.POST("/posts/:id/restore", a.handleAdminRestore)
	admin.POST("/images", a.handleImageUpload)
	admin.GET("/subscribers", a.handleAdminSubscribers)
	admin.GET("/notifications", a.handleAdminNotifications)
}

// Close releases the stores and background goroutines. Call it when the
// app is shutting down.
func (a *App) Close() error {
	var errs []error
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.formLimiter != nil {
		a.formLimiter.Stop()
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if c, ok := a.logOut.(io.Closer); ok && a.logOut != io.Writer(os.Stdout) {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
