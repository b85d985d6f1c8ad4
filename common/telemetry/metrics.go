package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	VersionsCreated     prometheus.Counter
	DiffsComputed       prometheus.Counter
	DiffCacheHits       prometheus.Counter
	ShareLinksIssued    prometheus.Counter
	ShareLinksRevoked   prometheus.Counter
	AuditEntriesWritten prometheus.Counter
	DiffDuration        prometheus.Histogram
}

// NewMetrics creates a metrics set backed by its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		VersionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "decisions_versions_created_total",
			Help: "Number of decision versions created.",
		}),
		DiffsComputed: factory.NewCounter(prometheus.CounterOpts{
			Name: "decisions_diffs_computed_total",
			Help: "Number of version diffs computed (cache misses).",
		}),
		DiffCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "decisions_diff_cache_hits_total",
			Help: "Number of version diffs served from the memo cache.",
		}),
		ShareLinksIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "decisions_share_links_issued_total",
			Help: "Number of share links issued.",
		}),
		ShareLinksRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "decisions_share_links_revoked_total",
			Help: "Number of share links revoked (explicit and reissue-implied).",
		}),
		AuditEntriesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "decisions_audit_entries_written_total",
			Help: "Number of audit log entries written.",
		}),
		DiffDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "decisions_diff_duration_seconds",
			Help:    "Time spent computing a version diff.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
