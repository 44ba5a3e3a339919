package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway. Pass to components
// that need to record metrics; the HTTP adapter exposes the registry.
type Metrics struct {
	DecisionsTotal     *prometheus.CounterVec
	ExecuteDuration    *prometheus.HistogramVec
	InjectionsDetected *prometheus.CounterVec
	ApprovalsTotal     *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmgate",
				Name:      "decisions_total",
				Help:      "Total gateway decisions by tool and outcome",
			},
			[]string{"tool", "decision"}, // decision=allow/deny/approval_required/error
		),
		ExecuteDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "farmgate",
				Name:      "execute_duration_seconds",
				Help:      "Tool call duration in seconds, policy check included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		InjectionsDetected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmgate",
				Name:      "injections_detected_total",
				Help:      "Prompt injection probes flagged in read content",
			},
			[]string{"category"},
		),
		ApprovalsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmgate",
				Name:      "approvals_total",
				Help:      "Approval lifecycle events",
			},
			[]string{"event"}, // event=requested/approved/denied/expired
		),
		CacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "farmgate",
				Name:      "decision_cache_lookups_total",
				Help:      "Policy decision cache lookups",
			},
			[]string{"result"}, // result=hit/miss
		),
	}
}

// NopMetrics returns metrics bound to a throwaway registry. Used by tests
// and callers that do not export metrics.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
