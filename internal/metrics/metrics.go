// Package metrics registers the Prometheus collectors for the ingestion and
// assignment pipeline. Collectors are package-level so every component shares
// the same registry without wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PostsIngested counts posts accepted from each ingestion source.
	PostsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicpulse",
		Name:      "posts_ingested_total",
		Help:      "Number of posts ingested, by source",
	}, []string{"source"})

	// PostsSkipped counts rows dropped during ingestion, by reason.
	PostsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicpulse",
		Name:      "posts_skipped_total",
		Help:      "Number of ingestion rows skipped, by reason",
	}, []string{"reason"})

	// EventsCreated counts new events opened by the assignment engine.
	EventsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "civicpulse",
		Name:      "events_created_total",
		Help:      "Number of new events created by the assignment engine",
	})

	// PostsAssigned counts posts merged into an existing event.
	PostsAssigned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "civicpulse",
		Name:      "posts_assigned_total",
		Help:      "Number of posts assigned to an existing event",
	})

	// UpstreamFailures counts failed calls to the LLM providers, by operation.
	UpstreamFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicpulse",
		Name:      "upstream_failures_total",
		Help:      "Number of failed LLM provider calls, by operation",
	}, []string{"op"})

	// AssignmentDuration observes the wall time of one full post assignment,
	// including enrichment.
	AssignmentDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "civicpulse",
		Name:      "assignment_duration_seconds",
		Help:      "Time spent assigning a single post, including enrichment",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(
		PostsIngested, PostsSkipped,
		EventsCreated, PostsAssigned,
		UpstreamFailures, AssignmentDuration,
	)
}
