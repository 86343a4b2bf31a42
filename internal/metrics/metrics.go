// Package metrics exposes Prometheus collectors for batch runs and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bonusledger"

// Metrics owns a private registry so tests and multiple servers never collide
// on the global one.
type Metrics struct {
	registry *prometheus.Registry

	RowsRead            prometheus.Counter
	RowsSkipped         prometheus.Counter
	TransactionsCreated *prometheus.CounterVec
	DuplicatesSkipped   prometheus.Counter
	DocumentsFailed     prometheus.Counter
	Batches             *prometheus.CounterVec
	BatchDuration       prometheus.Histogram

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RowsRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Data rows read from uploaded ledger exports.",
		}),
		RowsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Rows rejected by the parser.",
		}),
		TransactionsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_created_total",
			Help:      "Points transactions written, by kind.",
		}, []string{"kind"}),
		DuplicatesSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_skipped_total",
			Help:      "Candidates skipped because their fingerprint already existed.",
		}),
		DocumentsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_failed_total",
			Help:      "Documents whose transactions could not be committed.",
		}),
		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Finalized batches, by terminal status.",
		}, []string{"status"}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a batch run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route pattern and status code.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// BatchFinished records a finalized batch.
func (m *Metrics) BatchFinished(batch *domain.ProcessingBatch, elapsed time.Duration) {
	m.Batches.WithLabelValues(string(batch.Status)).Inc()
	m.BatchDuration.Observe(elapsed.Seconds())

	r := batch.Report
	if r == nil {
		return
	}
	m.RowsRead.Add(float64(r.RowsRead))
	m.RowsSkipped.Add(float64(r.RowsSkipped))
	m.TransactionsCreated.WithLabelValues(string(domain.KindStandardPoints)).Add(float64(r.StandardCreated))
	m.TransactionsCreated.WithLabelValues(string(domain.KindCreditReversal)).Add(float64(r.ReversalsCreated))
	m.DuplicatesSkipped.Add(float64(r.DuplicatesSkipped))
	m.DocumentsFailed.Add(float64(r.DocumentsFailed))
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
