// Package metrics exposes the Prometheus instrumentation shared across the
// knowledge-base services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// KnowledgeMapRecomputes counts cold-cache rebuilds of the knowledge map.
	KnowledgeMapRecomputes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nlukit",
		Subsystem: "knowledge_map",
		Name:      "recomputes_total",
		Help:      "Number of knowledge-map cache recomputations.",
	})

	// KnowledgeMapInvalidations counts cache invalidations triggered by
	// entity or value mutations.
	KnowledgeMapInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nlukit",
		Subsystem: "knowledge_map",
		Name:      "invalidations_total",
		Help:      "Number of knowledge-map cache invalidations.",
	})

	// ImportRows counts CSV import rows by outcome.
	ImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nlukit",
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Number of processed CSV import rows by outcome.",
	}, []string{"outcome"})

	// ProviderSyncFailures counts best-effort NLU provider sync failures by
	// operation. Failures never roll back the local mutation.
	ProviderSyncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nlukit",
		Subsystem: "provider",
		Name:      "sync_failures_total",
		Help:      "Number of failed NLU provider sync calls by operation.",
	}, []string{"operation"})

	// ProviderRequests counts outbound NLU provider HTTP calls by operation
	// and status.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nlukit",
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Number of NLU provider requests by operation and status.",
	}, []string{"operation", "status"})
)
