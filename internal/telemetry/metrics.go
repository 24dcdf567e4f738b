// Package telemetry provides application-level observability for the
// entitlement service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<FLT_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Access resolution and consumption counters (labelled by access method)
//   - Voucher issuance/redemption counters and redemption failure reasons
//   - Referral payout counter and outstanding-invitation gauges
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/access/:unit)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as content-unit names or voucher codes.
// Domain metrics are labelled by closed enumerations only (access method,
// voucher kind, failure reason) for the same reason — never by owner id.
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
// The path label holds the Gin route template (e.g. /api/v1/access/:unit),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
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

// Access metrics — recorded by the resolver and the consumption engine.
//
// ResolvesTotal is a CounterVec with labels {method, authorized}. The method
// label is the winning rung of the priority chain (purchase, voucher, passes,
// free, none) and authorized is "true"/"false".
//
// Example PromQL queries:
//   - Denial rate:            sum(rate(access_resolves_total{authorized="false"}[5m]))
//   - Method distribution:    sum by (method) (rate(access_resolves_total[1h]))
//
// ConsumptionsTotal counts committed consumptions by method; PassesConsumedTotal
// counts the individual pass credits they deducted.
//
// Example PromQL queries:
//   - Pass burn rate:         rate(passes_consumed_total[1h])
//   - Consumption mix:        sum by (method) (rate(access_consumptions_total[1h]))
var (
	ResolvesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_resolves_total",
			Help: "Total number of access resolutions, by winning method and outcome.",
		},
		[]string{"method", "authorized"},
	)

	ConsumptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_consumptions_total",
			Help: "Total number of committed access consumptions, by method.",
		},
		[]string{"method"},
	)

	PassesConsumedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "passes_consumed_total",
			Help: "Total number of pass credits deducted by the consumption engine.",
		},
	)
)

// Voucher metrics — recorded by the lifecycle manager.
//
// VouchersIssuedTotal is labelled by purpose (invite, promo, referral_bonus,
// achievement, ...), VouchersRedeemedTotal by grant kind (era, pass).
// RedemptionFailuresTotal is labelled by reason (invalid_format, not_found,
// already_redeemed, expired, permission_denied) — a spike in not_found is the
// code-guessing signal the redeem rate limit exists for.
//
// Example PromQL queries:
//   - Redemption success rate:  sum(rate(vouchers_redeemed_total[1h])) / (sum(rate(vouchers_redeemed_total[1h])) + sum(rate(voucher_redemption_failures_total[1h])))
//   - Guessing alert:           rate(voucher_redemption_failures_total{reason="not_found"}[15m]) > 1
var (
	VouchersIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vouchers_issued_total",
			Help: "Total number of vouchers issued, by purpose.",
		},
		[]string{"purpose"},
	)

	VouchersRedeemedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vouchers_redeemed_total",
			Help: "Total number of vouchers successfully redeemed, by grant kind.",
		},
		[]string{"kind"},
	)

	RedemptionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voucher_redemption_failures_total",
			Help: "Total number of failed redemption attempts, by reason.",
		},
		[]string{"reason"},
	)
)

// Referral metrics — recorded by the referral orchestrator and the voucher
// stats background job.
//
// ReferralPayoutsTotal counts claimed invitations that paid both sides.
// OutstandingInvitations/RedeemedInvitations are refreshed periodically from
// a COUNT query rather than incremented inline, so restarts do not skew them.
var (
	ReferralPayoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_payouts_total",
			Help: "Total number of referral invitations claimed and rewarded on both sides.",
		},
	)

	OutstandingInvitations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "invitations_outstanding",
			Help: "Current number of unredeemed user-issued invitation vouchers.",
		},
	)

	RedeemedInvitations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "invitations_redeemed",
			Help: "Current number of redeemed user-issued invitation vouchers.",
		},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
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
