package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatwatch_sweeps_total",
			Help: "Total number of reconciliation sweeps",
		},
		[]string{"outcome"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seatwatch_sweep_duration_seconds",
			Help:    "Wall time of one sweep in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatwatch_fetches_total",
			Help: "Upstream checks by request kind and result status",
		},
		[]string{"kind", "status"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seatwatch_fetch_duration_seconds",
			Help:    "Upstream check duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"kind"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatwatch_notifications_total",
			Help: "Seat notifications by outcome (sent, failed, rate_limited, deduplicated)",
		},
		[]string{"outcome"},
	)

	storeSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatwatch_store_saves_total",
			Help: "State file saves by outcome",
		},
		[]string{"outcome"},
	)

	trackedRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seatwatch_tracked_requests",
			Help: "Number of live tracking requests",
		},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seatwatch_breaker_state",
			Help: "Circuit breaker state per fetcher (0 closed, 1 open, 2 half-open)",
		},
		[]string{"fetcher"},
	)

	backedOffRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seatwatch_backed_off_requests",
			Help: "Requests skipped this sweep because of repeated transient errors",
		},
	)
)

func RecordSweep(outcome string, duration time.Duration) {
	sweepsTotal.WithLabelValues(outcome).Inc()
	sweepDuration.Observe(duration.Seconds())
}

func RecordFetch(kind, status string, duration time.Duration) {
	fetchesTotal.WithLabelValues(kind, status).Inc()
	fetchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func RecordNotification(outcome string) {
	notificationsTotal.WithLabelValues(outcome).Inc()
}

func RecordStoreSave(err error) {
	if err != nil {
		storeSavesTotal.WithLabelValues("error").Inc()
		return
	}
	storeSavesTotal.WithLabelValues("ok").Inc()
}

func SetTrackedRequests(n int) {
	trackedRequests.Set(float64(n))
}

func SetBackedOffRequests(n int) {
	backedOffRequests.Set(float64(n))
}

func SetBreakerState(fetcher string, state int) {
	breakerState.WithLabelValues(fetcher).Set(float64(state))
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
