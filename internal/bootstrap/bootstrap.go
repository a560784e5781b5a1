// Package bootstrap builds the application graph from configuration. The
// server and the CLI share it so both talk to the same stores.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ignite/campaignsync/internal/activity"
	"github.com/ignite/campaignsync/internal/api"
	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/cache"
	"github.com/ignite/campaignsync/internal/campaign"
	"github.com/ignite/campaignsync/internal/config"
	"github.com/ignite/campaignsync/internal/content"
	"github.com/ignite/campaignsync/internal/mailchimp"
	"github.com/ignite/campaignsync/internal/notify"
	"github.com/ignite/campaignsync/internal/pkg/clock"
	"github.com/ignite/campaignsync/internal/pkg/distlock"
	"github.com/ignite/campaignsync/internal/pkg/logger"
	"github.com/ignite/campaignsync/internal/render"
	"github.com/ignite/campaignsync/internal/schedule"
	"github.com/ignite/campaignsync/internal/storage"
	"github.com/ignite/campaignsync/internal/webhook"
)

// App holds the wired components.
type App struct {
	Config     *config.Config
	Store      storage.Store
	Repo       *audience.Repository
	Mailchimp  *mailchimp.Client
	Renderer   *render.Renderer
	Reconciler *campaign.Reconciler
	Service    *campaign.Service
	Content    *content.Source
	Activity   activity.Log
	Events     notify.Publisher
	Webhook    *webhook.Handler

	cache   cache.Cache
	closers []io.Closer
}

// Option adjusts the graph before it is built.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// ConfigureLogging applies the log section to the default logger.
func ConfigureLogging(cfg config.LogConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.Redact())
}

// SiteTimezone is the zone new audiences are created in.
func SiteTimezone(cfg config.SiteConfig) schedule.Timezone {
	return schedule.Timezone{Label: cfg.Timezone, Offset: cfg.TimezoneOffset}
}

// New connects every backend named by cfg and wires the services. Close
// releases what it opened.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{clock: clock.Real{}}
	for _, opt := range opts {
		opt(&o)
	}
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.Store = store
	app.track(store)

	app.Repo = audience.NewRepository(store, audience.Defaults{
		Timezone:     SiteTimezone(cfg.Site),
		PreviewEmail: cfg.Site.AdminEmail,
		FromName:     firstNonEmpty(cfg.Mailchimp.FromName, cfg.Site.Name),
		FromEmail:    firstNonEmpty(cfg.Mailchimp.FromEmail, cfg.Site.AdminEmail),
		APIKey:       cfg.Mailchimp.APIKey,
	})

	// A key saved through the settings endpoint applies when none is configured.
	mcCfg := cfg.Mailchimp
	if mcCfg.APIKey == "" && mcCfg.OAuthAccessToken == "" {
		if p, err := app.Repo.Plugin(ctx); err == nil && p.APIKey != "" {
			mcCfg.APIKey = p.APIKey
		}
	}

	backend, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	app.track(backend)
	app.cache = backend
	ttl := cfg.Cache.TTL()
	if ttl <= 0 {
		ttl = time.Hour
	}
	app.Mailchimp = mailchimp.NewClient(mcCfg, cache.NewBucket(backend, o.clock, ttl))
	app.Mailchimp.SetSender(func(ctx context.Context) (string, string) {
		p, err := app.Repo.Plugin(ctx)
		if err != nil {
			logger.Warn("plugin settings unavailable for sender", "error", err)
			return mcCfg.FromName, mcCfg.FromEmail
		}
		return p.DefaultFromName, p.DefaultFromEmail
	})
	if !app.Mailchimp.Configured() {
		logger.Warn("mailchimp credentials missing; provider calls will fail until configured")
	}

	app.Content = content.NewSource(cfg.Content.FeedURL, mcCfg.Timeout(), cache.NewBucket(backend, o.clock, 5*time.Minute))

	if app.Renderer, err = render.New(app.Repo, app.Mailchimp, o.clock); err != nil {
		return nil, err
	}

	if app.Events, err = notify.New(cfg.Notify); err != nil {
		return nil, fmt.Errorf("failed to initialize notifications: %w", err)
	}
	app.track(app.Events)

	if app.Activity, err = activity.Open(ctx, cfg.Activity); err != nil {
		return nil, fmt.Errorf("failed to initialize activity log: %w", err)
	}
	app.track(app.Activity)

	app.Reconciler = campaign.NewReconciler(app.Repo, app.Mailchimp, app.Renderer, schedule.NewCalculator(o.clock))
	app.Reconciler.SetPublisher(app.Events)
	app.Reconciler.SetActivity(app.Activity)
	app.Service = campaign.NewService(app.Repo, app.Mailchimp, app.Reconciler, app.Renderer, cfg.Server.PublicURL)
	if app.Content.Configured() {
		app.Reconciler.SetLinkResolver(app.Content)
		app.Service.SetLinkResolver(app.Content)
	}
	app.Webhook = webhook.NewHandler(app.Reconciler)

	ok = true
	return app, nil
}

// Handlers builds the HTTP handlers with health checks for the provider
// and the settings store.
func (a *App) Handlers() *api.Handlers {
	var posts api.ContentSearcher
	if a.Content.Configured() {
		posts = a.Content
	}
	h := api.NewHandlers(a.Service, a.Activity, posts, a.Webhook)
	h.SetHealthChecker(api.NewHealthChecker(
		api.Check{Name: "storage", Critical: true, Probe: func(ctx context.Context) error {
			_, err := a.Store.Keys(ctx, "plugin_")
			return err
		}},
		api.Check{Name: "mailchimp", Timeout: 5 * time.Second, Probe: a.Mailchimp.Ping},
	))
	return h
}

// Lock returns a lock shared by every process on the same Redis cache or
// PostgreSQL store. Other setups only exclude within this process.
func (a *App) Lock(key string, ttl time.Duration) distlock.Lock {
	if r, ok := a.cache.(*cache.Redis); ok {
		return distlock.New(r.Client(), nil, key, ttl)
	}
	if s, ok := a.Store.(*storage.SQL); ok && s.Dialect() == storage.DialectPostgres {
		return distlock.New(nil, s.DB(), key, ttl)
	}
	return distlock.New(nil, nil, key, ttl)
}

// Server builds the API server.
func (a *App) Server() *api.Server {
	return api.NewServer(a.Config.Server, a.Handlers())
}

func (a *App) track(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
