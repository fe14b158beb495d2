package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ferry77-dispatch/internal/http/handlers"
	mw "ferry77-dispatch/internal/http/middleware"
	"ferry77-dispatch/internal/http/middleware/ratelimit"
	"ferry77-dispatch/internal/logx"
)

// New constructs a chi-based http.Handler with base middleware and routes.
// A nil rate-limit middleware disables limiting.
func New(
	logger logx.Logger,
	base *handlers.Handlers,
	jobs *handlers.JobsHandler,
	driver *handlers.DriverHandler,
	notifications *handlers.NotificationsHandler,
	limiter *ratelimit.Middleware,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))
	r.Use(mw.Observability(logger))
	if limiter != nil {
		r.Use(limiter.Handler())
	}

	r.Get("/ping", base.Ping)
	r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(base.HealthcheckHead))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", jobs.List)
		r.Post("/{source}/{id}/accept", jobs.Accept)
		r.Post("/{source}/{id}/complete", jobs.Complete)
	})

	r.Route("/driver", func(r chi.Router) {
		r.Get("/", driver.Get)
		r.Put("/status", driver.SetStatus)
		r.Put("/location", driver.ReportLocation)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/{recipientID}", notifications.List)
		r.Post("/{recipientID}/read-all", notifications.MarkAllRead)
	})

	r.NotFound(http.HandlerFunc(base.NotFound))

	return r
}
