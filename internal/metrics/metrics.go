// Package metrics holds the Prometheus collectors of the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// persistence metrics
	SessionSaves   *prometheus.CounterVec
	DraftWrites    *prometheus.CounterVec
	DraftsFlushed  prometheus.Counter
	FlushErrors    prometheus.Counter
	FlushDuration  prometheus.Histogram
	OrphansRemoved prometheus.Counter

	// generation metrics
	Generations *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers every collector on reg; nil uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepilot_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coursepilot_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionSaves: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepilot_session_saves_total",
				Help: "Full session saves by outcome",
			},
			[]string{"status"},
		),
		DraftWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepilot_draft_writes_total",
				Help: "Lesson draft writes accepted into the buffer, by kind",
			},
			[]string{"kind"},
		),
		DraftsFlushed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "coursepilot_drafts_flushed_total",
				Help: "Lesson drafts written from the buffer to postgres",
			},
		),
		FlushErrors: f.NewCounter(
			prometheus.CounterOpts{
				Name: "coursepilot_draft_flush_errors_total",
				Help: "Sessions whose buffered drafts failed to flush",
			},
		),
		FlushDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "coursepilot_draft_flush_duration_seconds",
				Help:    "Duration of one flush pass",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		OrphansRemoved: f.NewCounter(
			prometheus.CounterOpts{
				Name: "coursepilot_orphan_drafts_removed_total",
				Help: "Lesson drafts deleted because their lesson no longer exists",
			},
		),

		Generations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepilot_generations_total",
				Help: "Chat generations by outcome",
			},
			[]string{"status"},
		),

		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "coursepilot_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
	}
}

// records request count and latency by route template
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		m.RequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
