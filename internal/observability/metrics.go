package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csr_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csr_reservations_total",
			Help: "Reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "csr_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	SweepCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csr_sweep_completed_total",
			Help: "Reservations promoted to completed by the sweep",
		},
	)

	SweepExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csr_sweep_expired_total",
			Help: "Provisional holds retired by the sweep",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "csr_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csr_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
