// Package metrics holds the Prometheus collectors for token and post activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Token lifecycle metrics
var (
	// TokenExchangesTotal counts long-lived token exchanges by outcome.
	TokenExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagescheduler_token_exchanges_total",
			Help: "Long-lived token exchanges by outcome",
		},
		[]string{"outcome"},
	)

	// TokenRefreshesTotal counts per-page results of refresh sweeps.
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagescheduler_token_refreshes_total",
			Help: "Page token refresh attempts during sweeps by outcome",
		},
		[]string{"outcome"},
	)

	// RefreshSweepsTotal counts completed refresh sweeps.
	RefreshSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagescheduler_refresh_sweeps_total",
			Help: "Completed page token refresh sweeps",
		},
	)

	// CredentialReadsTotal counts credential reads by kind and result
	// (found, absent, expired, unreadable).
	CredentialReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagescheduler_credential_reads_total",
			Help: "Credential store reads by credential kind and result",
		},
		[]string{"kind", "result"},
	)

	// CipherConfidential is 1 when stored tokens are encrypted and 0 when the
	// base64 fallback is active.
	CipherConfidential = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagescheduler_cipher_confidential",
			Help: "1 if token payloads are encrypted, 0 if the base64 fallback is active",
		},
	)
)

// Graph API metrics
var (
	// GraphRequestsTotal counts outbound Graph API calls by operation and outcome.
	GraphRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagescheduler_graph_requests_total",
			Help: "Outbound Graph API requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// GraphRequestDuration tracks Graph API latency in seconds.
	GraphRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagescheduler_graph_request_duration_seconds",
			Help:    "Graph API request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	// PostsScheduledTotal counts posts handed to Facebook for scheduling.
	PostsScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagescheduler_posts_scheduled_total",
			Help: "Posts scheduled on Facebook by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)
)

// Outcome maps an error to a success/failure label value.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
