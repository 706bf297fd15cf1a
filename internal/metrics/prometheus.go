package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry          *prometheus.Registry
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	conflictRetries   *prometheus.CounterVec
	reconcileMismatch prometheus.Counter
	httpRequests      *prometheus.CounterVec
}

func NewMetricsCollector() *MetricsCollector {
	registry := prometheus.NewRegistry()

	return &MetricsCollector{
		registry: registry,
		operations: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by outcome (ok or an error reason)",
		}, []string{"operation", "outcome"}),
		operationDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Time taken to run a ledger operation including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		conflictRetries: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_conflict_retries_total",
			Help: "Units of work retried after losing an optimistic concurrency race",
		}, []string{"operation"}),
		reconcileMismatch: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_reconcile_mismatches_total",
			Help: "Accounts whose stored balance disagreed with a replay of their log",
		}),
		httpRequests: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Gateway requests by route and status code",
		}, []string{"route", "code"}),
	}
}

func (m *MetricsCollector) ObserveOperation(operation, outcome string, duration time.Duration) {
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *MetricsCollector) ObserveRetry(operation string) {
	m.conflictRetries.WithLabelValues(operation).Inc()
}

func (m *MetricsCollector) ObserveReconcileMismatch() {
	m.reconcileMismatch.Inc()
}

func (m *MetricsCollector) ObserveRequest(route string, code int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Instrument counts gateway responses by chi route pattern, so account ids
// never become label values.
func (m *MetricsCollector) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.ObserveRequest(route, status)
	})
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NewMetricsServer builds the /metrics listener; the caller owns its lifecycle.
func (m *MetricsCollector) NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
