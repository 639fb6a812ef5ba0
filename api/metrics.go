package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seenimoa/barb/internal/query"
	"github.com/seenimoa/barb/pkg/models"
)

// Metrics holds the server's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	queries         *prometheus.CounterVec
	queryDuration   prometheus.Histogram
	backtests       *prometheus.CounterVec
	backtestTrades  prometheus.Histogram
	wsClients       prometheus.Gauge
	rateLimited     prometheus.Counter
}

// NewMetrics registers every collector, plus the Go runtime and process
// collectors, on a fresh registry.
func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Metrics{
		registry: r,
		requests: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "barb_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		requestDuration: promauto.With(r).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "barb_http_request_duration_seconds",
			Help:    "Time taken to serve an HTTP request.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		queries: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "barb_queries_total",
			Help: "Total number of queries by result type or error type.",
		}, []string{"outcome"}),
		queryDuration: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
			Name:    "barb_query_duration_seconds",
			Help:    "Time taken to decode, load and execute a query.",
			Buckets: prometheus.DefBuckets,
		}),
		backtests: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "barb_backtests_total",
			Help: "Total number of backtests by outcome.",
		}, []string{"outcome"}),
		backtestTrades: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
			Name:    "barb_backtest_trades",
			Help:    "Number of trades produced by a backtest.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		wsClients: promauto.With(r).NewGauge(prometheus.GaugeOpts{
			Name: "barb_websocket_clients",
			Help: "Number of connected WebSocket clients.",
		}),
		rateLimited: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "barb_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeRequest(route, method string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) observeQuery(resp *query.Response, err error, elapsed time.Duration) {
	m.queryDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.queries.WithLabelValues(describe(err).Type).Inc()
		return
	}
	m.queries.WithLabelValues(resp.Type()).Inc()
}

func (m *Metrics) observeBacktest(res *models.BacktestResult, err error, _ time.Duration) {
	if err != nil {
		m.backtests.WithLabelValues(describe(err).Type).Inc()
		return
	}
	m.backtests.WithLabelValues("ok").Inc()
	m.backtestTrades.Observe(float64(len(res.Trades)))
}
