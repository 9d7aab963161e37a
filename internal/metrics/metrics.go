// Package metrics exposes Prometheus instrumentation for the tracking edge,
// the recorder, the reconciler and the analytics API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TrackingEvents counts recorder outcomes per event kind.
	TrackingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_events_total",
			Help: "Engagement events processed by the recorder",
		},
		[]string{"kind", "outcome"}, // outcome: recorded, partial, dropped, failed
	)

	SinkDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_sink_dropped_total",
			Help: "Engagement events dropped before reaching the recorder",
		},
		[]string{"sink", "reason"},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_persistence_failures_total",
			Help: "Store operations that failed after retries",
		},
		[]string{"operation"},
	)

	RecordDivergences = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_record_divergences_total",
			Help: "Email/engagement counter divergences by source",
		},
		[]string{"source"}, // recorder, reconciler
	)

	TokenCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracking_token_collisions_total",
			Help: "Tracking token collisions detected during issuance",
		},
	)

	AnalyticsReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_reports_total",
			Help: "Campaign analytics reports by result",
		},
		[]string{"status"}, // ok, invalid, unavailable
	)

	MalformedCampaignRefs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_malformed_campaign_refs_total",
			Help: "Survey campaign references normalized by last-resort stringification",
		},
	)

	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Scheduled reconciliation passes by result",
		},
		[]string{"result"}, // ok, failed, skipped_locked
	)
)
