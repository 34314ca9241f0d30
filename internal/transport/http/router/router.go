package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/baechuer/seatwatch/internal/metrics"
	"github.com/baechuer/seatwatch/internal/transport/http/handlers"
	mw "github.com/baechuer/seatwatch/internal/transport/http/middleware"
)

type RateLimit struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

func New(
	reqs *handlers.RequestsHandler,
	status *handlers.StatusHandler,
	health *handlers.HealthHandler,
	rl RateLimit,
	lg zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(mw.AccessLog(lg))

	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Handle("/metrics", metrics.MetricsHandler())

	r.Group(func(r chi.Router) {
		if rl.Enabled {
			r.Use(httprate.LimitByIP(rl.Limit, rl.Window))
		}

		r.Get("/status", status.Status)

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", reqs.List)
			r.Post("/", reqs.Create)
			r.Get("/{request_id}", reqs.Get)
			r.Delete("/{request_id}", reqs.Delete)
		})

		r.Route("/users/{user_id}/requests", func(r chi.Router) {
			r.Get("/", reqs.ListForUser)
			r.Delete("/", reqs.ClearForUser)
		})
	})

	return r
}
