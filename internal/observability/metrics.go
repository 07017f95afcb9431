package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	candidateCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripline",
		Subsystem: "sync",
		Name:      "candidates_total",
		Help:      "Ingested change candidates by source and resolution decision.",
	}, []string{"source", "decision"})
	candidateSkippedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripline",
		Subsystem: "sync",
		Name:      "candidates_skipped_total",
		Help:      "Change candidates dropped before resolution, by source and reason.",
	}, []string{"source", "reason"})
	propagationFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripline",
		Subsystem: "sync",
		Name:      "propagation_failures_total",
		Help:      "Failed forwards of a committed change to an external mirror.",
	}, []string{"target"})
	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tripline",
		Subsystem: "sync",
		Name:      "last_batch_committed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully committed sync batch.",
	})
)

func init() {
	prometheus.MustRegister(
		candidateCounter,
		candidateSkippedCounter,
		propagationFailureCounter,
		lastSyncGauge,
	)
}

// RecordCandidate counts one resolved change candidate.
func RecordCandidate(source, decision string) {
	candidateCounter.WithLabelValues(source, decision).Inc()
}

// RecordCandidateSkipped counts a candidate dropped before resolution.
func RecordCandidateSkipped(source, reason string) {
	candidateSkippedCounter.WithLabelValues(source, reason).Inc()
}

// RecordPropagationFailure counts a failed forward to one mirror.
func RecordPropagationFailure(target string) {
	propagationFailureCounter.WithLabelValues(target).Inc()
}

// RecordSyncCompleted updates the batch commit watermark gauge.
func RecordSyncCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSyncGauge.Set(float64(ts.Unix()))
}
