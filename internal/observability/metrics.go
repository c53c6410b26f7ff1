package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinebook_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cinebook_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	SeatConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cinebook_seat_conflicts_total",
			Help: "Seat bind attempts rejected because a seat was already bound",
		},
	)

	BookingsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cinebook_bookings_swept_total",
			Help: "Abandoned pending bookings cancelled by the sweep worker",
		},
	)

	OutboxLag = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cinebook_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cinebook_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(RequestsTotal, DBTxDuration, SeatConflicts, BookingsSwept, OutboxLag, RateLimitExceeded)
}
