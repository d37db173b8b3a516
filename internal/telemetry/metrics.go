// Package telemetry provides application-level observability for KeyNest.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<KN_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router and
// therefore bypasses the authentication middleware entirely.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Secret seal/open operation counters and decryption failure counter
//   - Environment export and import counters (labelled by format)
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/variables/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as variable or environment IDs.  Secret metrics
// deliberately carry no key or environment labels for the same reason.
//
// # Usage
//
// Import the package directly and use an exported var:
//
//	telemetry.SecretOperationsTotal.WithLabelValues("seal").Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/v1/environments/:id/variables),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Secret lifecycle metrics — recorded by the secrets service around every cipher call.
//
// SecretOperationsTotal is a CounterVec with label {operation}, one of "seal" or
// "open".  It counts successful cipher operations only; failed opens are tracked
// separately by DecryptionFailuresTotal so the two can be alerted on independently.
//
// Example PromQL queries:
//   - Read/write ratio:  rate(secret_operations_total{operation="open"}[5m]) / rate(secret_operations_total{operation="seal"}[5m])
//
// DecryptionFailuresTotal is a plain Counter incremented whenever opening a stored
// ciphertext fails.  Any non-zero rate indicates either data corruption or an
// encryption key rotation that left stale ciphertexts behind, and should page.
//
// Example PromQL queries:
//   - Alert expression:  increase(secret_decryption_failures_total[5m]) > 0
var (
	SecretOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secret_operations_total",
			Help: "Total number of successful secret cipher operations, by operation (seal|open).",
		},
		[]string{"operation"},
	)

	DecryptionFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "secret_decryption_failures_total",
			Help: "Total number of stored ciphertexts that failed to decrypt.",
		},
	)
)

// Bulk transfer metrics — recorded by the export and import operations.
//
// ExportsTotal and ImportsTotal are CounterVecs with label {format} ("env", "json",
// "yaml").  Imports are counted once per accepted request regardless of how many
// variables it touched; per-variable outcomes are visible in the audit trail instead.
//
// Example PromQL queries:
//   - Most used export format:  topk(1, sum by (format) (exports_total))
//   - Import rate:              rate(imports_total[1h])
var (
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exports_total",
			Help: "Total number of environment exports served, by format.",
		},
		[]string{"format"},
	)

	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imports_total",
			Help: "Total number of environment imports applied, by format.",
		},
		[]string{"format"},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <KN_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
