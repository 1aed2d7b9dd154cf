// Package metrics exposes Prometheus instrumentation for the analysis
// daemon: cycle outcomes, oracle usage, order placement, notification
// delivery and the HTTP surface that serves /metrics itself.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Trading metrics
	cyclesTotal       *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	strategiesCreated *prometheus.CounterVec
	strategiesExpired prometheus.Counter
	ordersTotal       *prometheus.CounterVec
	oracleCalls       *prometheus.CounterVec
	oracleDuration    prometheus.Histogram
	oracleTokens      *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	clockResyncs      prometheus.Counter
	watchlistSymbols  prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Trading metrics
	r.cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remora_cycles_total",
			Help: "Total number of analysis cycles by outcome",
		},
		[]string{"symbol", "status"},
	)
	r.cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remora_cycle_duration_seconds",
			Help:    "Analysis cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	r.strategiesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remora_strategies_created_total",
			Help: "Total number of strategies created",
		},
		[]string{"symbol", "action"},
	)
	r.strategiesExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "remora_strategies_expired_total",
			Help: "Total number of strategies expired by the sweep",
		},
	)
	r.ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remora_orders_total",
			Help: "Total number of order attempts by result",
		},
		[]string{"symbol", "result"},
	)
	r.oracleCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remora_oracle_calls_total",
			Help: "Total number of reasoning oracle calls",
		},
		[]string{"provider", "status"},
	)
	r.oracleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remora_oracle_duration_seconds",
			Help:    "Reasoning oracle call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	r.oracleTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remora_oracle_tokens_total",
			Help: "Total oracle tokens consumed",
		},
		[]string{"provider", "kind"},
	)
	r.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remora_notifications_total",
			Help: "Total number of notification deliveries by channel",
		},
		[]string{"channel", "status"},
	)
	r.clockResyncs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "remora_clock_resyncs_total",
			Help: "Total number of exchange clock resyncs forced by skew",
		},
	)
	r.watchlistSymbols = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "remora_watchlist_symbols",
			Help: "Number of symbols in the analysis watchlist",
		},
	)

	reg.MustRegister(r.cyclesTotal)
	reg.MustRegister(r.cycleDuration)
	reg.MustRegister(r.strategiesCreated)
	reg.MustRegister(r.strategiesExpired)
	reg.MustRegister(r.ordersTotal)
	reg.MustRegister(r.oracleCalls)
	reg.MustRegister(r.oracleDuration)
	reg.MustRegister(r.oracleTokens)
	reg.MustRegister(r.notifications)
	reg.MustRegister(r.clockResyncs)
	reg.MustRegister(r.watchlistSymbols)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordCycle records one completed analysis cycle.
func (r *Registry) RecordCycle(symbol, status string, duration float64) {
	r.cyclesTotal.WithLabelValues(symbol, status).Inc()
	r.cycleDuration.Observe(duration)
}

// RecordStrategy records a created strategy.
func (r *Registry) RecordStrategy(symbol, action string) {
	r.strategiesCreated.WithLabelValues(symbol, action).Inc()
}

// AddStrategiesExpired adds the count of strategies retired by one sweep.
func (r *Registry) AddStrategiesExpired(n int) {
	if n > 0 {
		r.strategiesExpired.Add(float64(n))
	}
}

// RecordOrder records an order attempt outcome (placed, rejected, failed).
func (r *Registry) RecordOrder(symbol, result string) {
	r.ordersTotal.WithLabelValues(symbol, result).Inc()
}

// RecordOracleCall records a reasoning oracle round trip.
func (r *Registry) RecordOracleCall(provider, status string, duration float64) {
	r.oracleCalls.WithLabelValues(provider, status).Inc()
	r.oracleDuration.Observe(duration)
}

// AddOracleTokens accumulates token usage reported by a provider.
func (r *Registry) AddOracleTokens(provider string, input, output int) {
	if input > 0 {
		r.oracleTokens.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		r.oracleTokens.WithLabelValues(provider, "output").Add(float64(output))
	}
}

// RecordNotification records a notification delivery attempt.
func (r *Registry) RecordNotification(channel, status string) {
	r.notifications.WithLabelValues(channel, status).Inc()
}

// RecordClockResync records a forced exchange clock resync.
func (r *Registry) RecordClockResync() {
	r.clockResyncs.Inc()
}

// SetWatchlistSize sets the watchlist size.
func (r *Registry) SetWatchlistSize(size int) {
	r.watchlistSymbols.Set(float64(size))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
