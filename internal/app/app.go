// Package app wires the agent together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/bissquit/notify-agent/internal/catalog"
	catalogserver "github.com/bissquit/notify-agent/internal/catalog/server"
	"github.com/bissquit/notify-agent/internal/config"
	"github.com/bissquit/notify-agent/internal/notifications"
	notificationsserver "github.com/bissquit/notify-agent/internal/notifications/server"
	"github.com/bissquit/notify-agent/internal/pkg/ctxlog"
	"github.com/bissquit/notify-agent/internal/pkg/metrics"
	"github.com/bissquit/notify-agent/internal/pkg/notice"
	"github.com/bissquit/notify-agent/internal/push"
	"github.com/bissquit/notify-agent/internal/querycache"
	"github.com/bissquit/notify-agent/internal/realtime"
	"github.com/bissquit/notify-agent/internal/reconcile"
	"github.com/bissquit/notify-agent/internal/remote"
	"github.com/bissquit/notify-agent/internal/subscriptions"
	subscriptionsserver "github.com/bissquit/notify-agent/internal/subscriptions/server"
	"github.com/bissquit/notify-agent/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App is a running agent: one engine for the configured app scope, the
// realtime channel and two HTTP servers (local API and metrics).
type App struct {
	config *config.Config
	logger *slog.Logger

	catalog *catalog.Catalog
	store   *subscriptions.Store
	engine  *reconcile.Engine
	feed    *notifications.Feed
	notices *notice.Log
	channel *realtime.Channel

	server        *http.Server
	metricsServer *http.Server
}

// New builds the agent from cfg. Nothing is started until Run.
func New(cfg *config.Config) (*App, error) {
	logger := ctxlog.New(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(logger)

	metrics.BuildInfo.WithLabelValues(version.Version, version.GitCommit).Set(1)

	client, err := remote.New(remote.Config{
		BaseURL:   cfg.Remote.BaseURL,
		Token:     cfg.Remote.Token,
		Timeout:   cfg.Remote.Timeout,
		RateLimit: cfg.Remote.RateLimit,
		Burst:     cfg.Remote.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("create remote client: %w", err)
	}

	a := &App{config: cfg, logger: logger}
	if err := a.wire(client); err != nil {
		return nil, err
	}

	a.server = a.newServer(cfg.Server.Port, a.router())

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())
	a.metricsServer = a.newServer(cfg.Server.MetricsPort, metricsRouter)

	logger.Info("agent configured",
		"remote", client.BaseURL().Redacted(),
		"app_scope", cfg.Remote.AppScope,
		"push_enabled", cfg.Push.Enabled,
		"push_policy", cfg.Push.Policy,
		"realtime_enabled", a.channel != nil,
	)
	return a, nil
}

func (a *App) wire(client *remote.Client) error {
	cfg := a.config

	cache := querycache.New(querycache.Config{
		StaleTime: cfg.Cache.StaleTime,
		GCTime:    cfg.Cache.GCTime,
	})
	a.notices = notice.NewLog(notice.DefaultCapacity, a.logger)

	feedBase, err := cfg.FeedBase()
	if err != nil {
		return fmt.Errorf("parse feed base url: %w", err)
	}
	a.catalog = catalog.New(catalogserver.NewRepository(client), cache, a.notices, feedBase)
	a.store = subscriptions.NewStore(subscriptionsserver.NewRepository(client), cache)
	a.feed = notifications.NewFeed(notificationsserver.NewRepository(client), cache)

	agent := push.NewAgent(push.AgentConfig{
		Enabled:    cfg.Push.Enabled,
		Policy:     push.Policy(cfg.Push.Policy),
		ServiceURL: cfg.Push.ServiceURL,
	})
	pushClient := push.NewClient(agent, push.NewServerRegistrar(client, cfg.Push.Label))

	a.engine = reconcile.New(cfg.Remote.AppScope, a.store, a.catalog, pushClient, a.notices)

	if !cfg.Realtime.Enabled {
		return nil
	}
	wsURL := cfg.Realtime.URL
	if wsURL == "" {
		if wsURL, err = realtime.WebsocketURL(client.BaseURL()); err != nil {
			return fmt.Errorf("derive websocket url: %w", err)
		}
	}
	a.channel = realtime.New(realtime.Config{
		URL:            wsURL,
		ReconnectDelay: cfg.Realtime.ReconnectDelay,
	}, &realtime.WebsocketDialer{
		Token:            cfg.Remote.Token,
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
	}, cache, a.logger)
	return nil
}

func (a *App) newServer(port string, h http.Handler) *http.Server {
	s := a.config.Server
	return &http.Server{
		Addr:              net.JoinHostPort(s.Host, port),
		Handler:           h,
		ReadTimeout:       s.ReadTimeout,
		ReadHeaderTimeout: s.ReadHeaderTimeout,
		WriteTimeout:      s.WriteTimeout,
		IdleTimeout:       s.IdleTimeout,
	}
}

// Run starts the realtime channel and serves until Shutdown.
func (a *App) Run() error {
	a.StartRealtime()

	go func() {
		a.logger.Info("metrics server listening", "addr", a.metricsServer.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("api server listening", "addr", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// StartRealtime connects the realtime channel if it is enabled.
func (a *App) StartRealtime() {
	if a.channel != nil {
		a.channel.Start()
	}
}

// Shutdown stops the engine and the channel first so no state changes
// land while the servers drain.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.engine.Close()
	if a.channel != nil {
		a.channel.Stop()
	}

	servers := map[string]*http.Server{"api": a.server, "metrics": a.metricsServer}
	errs := make([]error, 0, len(servers))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, srv := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s server: %w", name, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Router returns the local API handler.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Realtime returns the realtime channel, or nil when it is disabled.
func (a *App) Realtime() *realtime.Channel {
	return a.channel
}
