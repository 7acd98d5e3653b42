// Package metrics exposes Prometheus instrumentation for the card issuance API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cardissue"

// Metrics holds the collectors recorded by the service and HTTP layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	studentsImported prometheus.Counter
	studentsAdded    prometheus.Counter
	cardChecks       *prometheus.CounterVec
	cardsIssued      *prometheus.CounterVec
	importFailures   prometheus.Counter
	requestDuration  *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		studentsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "students_imported_rows_total",
			Help:      "CSV rows processed by bulk imports, duplicates included.",
		}),
		studentsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "students_added_total",
			Help:      "Single-student add requests that reached the store.",
		}),
		cardChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "card_checks_total",
			Help:      "Card lookups by outcome.",
		}, []string{"result"}),
		cardsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cards_issued_total",
			Help:      "Mark-issued calls by whether a new issuance was recorded.",
		}, []string{"result"}),
		importFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_failures_total",
			Help:      "Bulk imports aborted by a store error.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.studentsImported,
		m.studentsAdded,
		m.cardChecks,
		m.cardsIssued,
		m.importFailures,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

func (m *Metrics) StudentsImported(n int) {
	if m == nil {
		return
	}
	m.studentsImported.Add(float64(n))
}

func (m *Metrics) StudentAdded() {
	if m == nil {
		return
	}
	m.studentsAdded.Inc()
}

func (m *Metrics) ImportFailed() {
	if m == nil {
		return
	}
	m.importFailures.Inc()
}

// CardChecked records a lookup; result is "issued", "not_issued" or "unknown".
func (m *Metrics) CardChecked(result string) {
	if m == nil {
		return
	}
	m.cardChecks.WithLabelValues(result).Inc()
}

// CardIssued records a mark-issued call that reached the ledger.
func (m *Metrics) CardIssued(first bool) {
	if m == nil {
		return
	}
	result := "already_issued"
	if first {
		result = "issued"
	}
	m.cardsIssued.WithLabelValues(result).Inc()
}

// Middleware observes request latency labelled by the matched chi route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.requestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
