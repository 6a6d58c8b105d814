// Package observability holds the prometheus collectors shared across the
// service. Collectors are registered with promauto on the default registry,
// exposed by the router at /metrics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	chimw "github.com/go-chi/chi/v5/middleware"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tindahan",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method and status code.",
	}, []string{"method", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tindahan",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	// JournalEntriesPosted counts entries written to the book, by source type.
	JournalEntriesPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tindahan",
		Subsystem: "ledger",
		Name:      "journal_entries_posted_total",
		Help:      "Journal entries posted, by source type.",
	}, []string{"source"})

	// PostingsSkipped counts business events that completed without a journal
	// entry, by skip reason.
	PostingsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tindahan",
		Subsystem: "ledger",
		Name:      "postings_skipped_total",
		Help:      "Journal postings skipped, by reason.",
	}, []string{"reason"})

	// StockShortfalls counts sale decrements clamped at zero stock.
	StockShortfalls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tindahan",
		Subsystem: "inventory",
		Name:      "stock_shortfalls_total",
		Help:      "Sale lines whose decrement was clamped at zero stock.",
	})

	// ReceiptsPosted counts goods receipt batches applied to purchase orders.
	ReceiptsPosted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tindahan",
		Subsystem: "purchasing",
		Name:      "receipts_posted_total",
		Help:      "Goods receipt batches applied.",
	})

	// SalesCompleted counts finalised sales.
	SalesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tindahan",
		Subsystem: "sales",
		Name:      "completed_total",
		Help:      "Sales completed through the coordinator.",
	})
)

// HTTPMiddleware records request counts and latency.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
		httpRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
