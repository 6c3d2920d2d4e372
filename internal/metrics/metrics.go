// Package metrics exports import counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/dealerprice/internal/core"
)

const namespace = "dealerprice"

// Metrics implements core.Observer.
type Metrics struct {
	registry *prometheus.Registry

	importsTotal   *prometheus.CounterVec
	importDuration *prometheus.HistogramVec
	rowsTotal      *prometheus.CounterVec
	issuesTotal    *prometheus.CounterVec
	productsTotal  *prometheus.CounterVec

	batchDuration prometheus.Histogram
	batchRecords  prometheus.Counter
}

// New registers the import metrics plus the Go and process collectors on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		importsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Total number of finished imports.",
		}, []string{"format", "status"}),
		importDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Duration of finished imports.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"format", "status"}),
		rowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Decoded data rows by outcome.",
		}, []string{"outcome"}),
		issuesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_row_issues_total",
			Help:      "Row-level problems that did not abort an import.",
		}, []string{"kind"}),
		productsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_total",
			Help:      "Products deleted and inserted by replacements.",
		}, []string{"op"}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "insert_batch_duration_seconds",
			Help:      "Latency of one product insert batch.",
			Buckets: []float64{
				0.001, 0.005,
				0.01, 0.05,
				0.1, 0.5,
				1, 5,
			},
		}),
		batchRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insert_batch_records_total",
			Help:      "Records written by insert batches.",
		}),
	}
}

// ImportFinished records one finished import.
func (m *Metrics) ImportFinished(res *core.ImportResult) {
	format := res.FormatName
	if format == "" {
		format = "unknown"
	}
	status := string(res.Status)

	m.importsTotal.WithLabelValues(format, status).Inc()
	m.importDuration.WithLabelValues(format, status).Observe(res.Duration.Seconds())

	m.rowsTotal.WithLabelValues("kept").Add(float64(res.Kept))
	m.rowsTotal.WithLabelValues("filtered").Add(float64(res.FilteredOut))
	m.rowsTotal.WithLabelValues("assembled").Add(float64(res.Assembled))

	m.issuesTotal.WithLabelValues("missing_name").Add(float64(res.MissingName))
	m.issuesTotal.WithLabelValues("value_coercion").Add(float64(res.Coercions))
	m.issuesTotal.WithLabelValues("unknown_currency").Add(float64(res.UnknownCurrencies))

	m.productsTotal.WithLabelValues("deleted").Add(float64(res.Deleted))
	m.productsTotal.WithLabelValues("inserted").Add(float64(res.Inserted))
}

// BatchInserted records one committed insert batch.
func (m *Metrics) BatchInserted(records int, d time.Duration) {
	m.batchDuration.Observe(d.Seconds())
	m.batchRecords.Add(float64(records))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
