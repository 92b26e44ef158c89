package app

import (
	"context"
	"net/http"
	"time"

	"github.com/bissquit/notify-agent/internal/catalog"
	"github.com/bissquit/notify-agent/internal/notifications"
	"github.com/bissquit/notify-agent/internal/pkg/ctxlog"
	"github.com/bissquit/notify-agent/internal/pkg/httputil"
	"github.com/bissquit/notify-agent/internal/pkg/notice"
	"github.com/bissquit/notify-agent/internal/realtime"
	"github.com/bissquit/notify-agent/internal/reconcile"
	"github.com/bissquit/notify-agent/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	openAPIPath  = "api/openapi/openapi.yaml"
	readyTimeout = 2 * time.Second
)

func (a *App) router() *chi.Mux {
	cfg := a.config
	r := chi.NewRouter()

	// Outermost so the histogram covers the whole chain, CORS next so
	// preflights never reach auth.
	r.Use(httputil.MetricsMiddleware)
	r.Use(httputil.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.readyz)
	r.Get("/version", a.versionInfo)
	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, openAPIPath)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.TokenAuthMiddleware(cfg.Server.APIToken))

		reconcile.NewHandler(a.engine).RegisterRoutes(r)
		catalog.NewHandler(a.catalog, cfg.Remote.AppScope).RegisterRoutes(r)
		notifications.NewHandler(a.feed).RegisterRoutes(r)
		notice.NewHandler(a.notices).RegisterRoutes(r)
		if a.channel != nil {
			realtime.NewHandler(a.channel).RegisterRoutes(r)
		}
	})

	return r
}

func (a *App) healthz(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

// readyz reports whether the notifications server answers a subscription
// list within readyTimeout.
func (a *App) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if _, err := a.store.List(ctx); err != nil {
		ctxlog.FromContext(ctx).Warn("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Notifications server unavailable")
		return
	}
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionInfo(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}
