package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/expensetracker/internal/apperror"
)

var (
	histogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
)

type metrics struct {
	registry       *prometheus.Registry
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
	authAttempts   *prometheus.CounterVec
	expenseOps     *prometheus.CounterVec
}

// newMetrics registers collectors on a private registry so several routers
// can coexist in one process.
func newMetrics() *metrics {
	m := &metrics{registry: prometheus.NewRegistry()}
	m.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "expensetracker",
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})

	m.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "expensetracker",
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"})

	m.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "expensetracker",
		Subsystem: "api",
		Name:      "rate_limit_hits_total",
		Help:      "Number of rate-limited responses",
	}, []string{"route", "key"})

	m.authAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "expensetracker",
		Subsystem: "auth",
		Name:      "attempts_total",
		Help:      "Registration and login attempts by outcome",
	}, []string{"op", "result"})

	m.expenseOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "expensetracker",
		Subsystem: "expenses",
		Name:      "operations_total",
		Help:      "Successful expense mutations",
	}, []string{"op"})

	m.registry.MustRegister(
		m.requestTotal,
		m.requestLatency,
		m.rateLimitHits,
		m.authAttempts,
		m.expenseOps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *metrics) recordRequest(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(duration.Seconds())
}

func (m *metrics) recordRateLimitHit(route, key string) {
	m.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}

// recordAuth labels failures by their error code.
func (m *metrics) recordAuth(op string, err error) {
	result := "ok"
	if err != nil {
		result = apperror.KindOf(err).Code()
	}
	m.authAttempts.With(prometheus.Labels{"op": op, "result": result}).Inc()
}

func (m *metrics) recordExpense(op string) {
	m.expenseOps.With(prometheus.Labels{"op": op}).Inc()
}
