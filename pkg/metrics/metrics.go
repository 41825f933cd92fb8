package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ship metrics
	ShipsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harbor_ships_total",
			Help: "Total number of ships by status",
		},
		[]string{"status"},
	)

	ShipsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harbor_ships_created_total",
			Help: "Total number of ships created",
		},
	)

	ShipsCleanedUpTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harbor_ships_cleaned_up_total",
			Help: "Total number of ships stopped by the TTL scheduler",
		},
	)

	ShipCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harbor_ship_create_duration_seconds",
			Help:    "Time taken to create or restore a ship's backing container in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ShipStopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harbor_ship_stop_duration_seconds",
			Help:    "Time taken to stop a ship's backing container in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Resolver metrics
	ResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harbor_resolutions_total",
			Help: "Total number of session-to-ship resolutions by outcome",
		},
		[]string{"outcome"}, // reused, restored, warm_pool, created, rejected
	)

	ResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harbor_resolution_duration_seconds",
			Help:    "Time taken to resolve a session to a ship in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CapacityWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harbor_capacity_wait_duration_seconds",
			Help:    "Time spent waiting for a free ship slot under the wait behavior",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harbor_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harbor_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	DriftRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harbor_drift_repairs_total",
			Help: "Total number of ship status drifts repaired, by kind",
		},
		[]string{"kind"}, // promoted, demoted, orphan_expired
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harbor_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harbor_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Proxy metrics
	ProxyForwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harbor_proxy_forwards_total",
			Help: "Total number of requests forwarded to ships, by kind and status",
		},
		[]string{"kind", "status"}, // kind: exec, upload, download
	)

	ProxyForwardDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harbor_proxy_forward_duration_seconds",
			Help:    "Time taken to forward a request to a ship in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	TerminalSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "harbor_terminal_sessions_active",
			Help: "Number of currently open terminal websocket proxy sessions",
		},
	)
)

func init() {
	prometheus.MustRegister(ShipsTotal)
	prometheus.MustRegister(ShipsCreatedTotal)
	prometheus.MustRegister(ShipsCleanedUpTotal)
	prometheus.MustRegister(ShipCreateDuration)
	prometheus.MustRegister(ShipStopDuration)

	prometheus.MustRegister(ResolutionsTotal)
	prometheus.MustRegister(ResolutionDuration)
	prometheus.MustRegister(CapacityWaitDuration)

	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(DriftRepairsTotal)

	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)

	prometheus.MustRegister(ProxyForwardsTotal)
	prometheus.MustRegister(ProxyForwardDuration)
	prometheus.MustRegister(TerminalSessionsActive)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
