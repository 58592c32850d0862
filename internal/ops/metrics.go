// Package ops carries the worker's operational surface: Prometheus
// collectors and the HTTP endpoint serving them next to a health probe.
package ops

import "github.com/prometheus/client_golang/prometheus"

// Attempt outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRetry    = "retry"
	OutcomeFailure  = "failure"
	OutcomeConflict = "conflict"
	OutcomeNoop     = "noop"
)

// Metrics exposes collectors reporting saga activity. All vectors are
// labelled by entity kind.
type Metrics struct {
	Attempts      *prometheus.CounterVec
	Uploads       *prometheus.CounterVec
	Retries       *prometheus.CounterVec
	Compensations *prometheus.CounterVec
	DedupHits     *prometheus.CounterVec
	Approvals     *prometheus.CounterVec
}

// MustNewMetrics constructs and registers the collectors. Registration
// errors panic, mirroring promauto; pass a fresh registry in tests.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "media_workers",
			Subsystem: "saga",
			Name:      "attempts_total",
			Help:      "Upload attempts handled, by entity kind and outcome.",
		}, []string{"kind", "outcome"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "media_workers",
			Subsystem: "saga",
			Name:      "asset_uploads_total",
			Help:      "Per-asset blob uploads, by entity kind and result.",
		}, []string{"kind", "result"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "media_workers",
			Subsystem: "saga",
			Name:      "retries_total",
			Help:      "Pending messages republished with an incremented retry count.",
		}, []string{"kind"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "media_workers",
			Subsystem: "saga",
			Name:      "compensations_total",
			Help:      "Entities rolled back after exhausting the retry budget.",
		}, []string{"kind"}),
		DedupHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "media_workers",
			Subsystem: "saga",
			Name:      "dedup_hits_total",
			Help:      "Redelivered attempts dropped by the idempotency guard.",
		}, []string{"kind"}),
		Approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "media_workers",
			Subsystem: "saga",
			Name:      "approvals_total",
			Help:      "Entities made visible after all assets uploaded.",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.Attempts, m.Uploads, m.Retries, m.Compensations, m.DedupHits, m.Approvals)
	return m
}
