package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"github.com/robertarktes/cinema-booking/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyMiddleware)

	r.Post("/v1/users", h.CreateUser)

	r.Post("/v1/shows", h.ScheduleShow)
	r.Get("/v1/shows", h.ListShows)
	r.Delete("/v1/shows", h.RemoveShowsOnDate)
	r.Get("/v1/shows/{id}/seats", h.ListFreeSeats)

	r.Post("/v1/bookings", h.CreateBooking)
	r.Get("/v1/bookings/{id}", h.GetBooking)
	r.Delete("/v1/bookings/{id}", h.CancelBooking)
	r.Post("/v1/bookings/{id}/seat-change", h.ChangeSeat)
	r.Post("/v1/bookings/cancel-pending", h.CancelPendingBookings)
	r.Post("/v1/bookings/clear-cancelled", h.ClearCancelledBookings)

	r.Post("/v1/payments", h.RecordPayment)
	r.Delete("/v1/payments/{id}", h.RemovePayment)

	r.Get("/v1/reports/pending-users", h.ListPendingUsers)
	r.Get("/v1/reports/users/{email}/bookings", h.ListUserBookings)
	r.Get("/v1/reports/movies", h.SearchMovies)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
