package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/club-seat-reservations/internal/idempotency"
	"github.com/robertarktes/club-seat-reservations/internal/observability"
	"github.com/robertarktes/club-seat-reservations/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyMiddleware(idemp))

	r.Post("/v1/reservations", h.CreateReservation)
	r.Get("/v1/reservations", h.ListReservations)
	r.Post("/v1/reservations/{id}/cancel", h.CancelReservation)
	r.Post("/v1/payments/checkout", h.Checkout)
	r.Post("/v1/payments/topup", h.TopUp)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
