// Package observability provides the Prometheus metrics that make degraded
// mode visible to operators: fallback serves, credential refreshes, and
// conversational timeouts are the health signals the surrounding monitoring
// watches.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voc"

// Metrics holds all Prometheus instruments for the data-access core.
// Initialize once at startup via New and share across components.
type Metrics struct {
	// QueriesTotal counts data-access requests by logical table and the
	// source that answered them (live, cache, fallback).
	QueriesTotal *prometheus.CounterVec

	// FallbackTotal counts requests answered with placeholder data. Any
	// nonzero rate means the platform is unreachable.
	FallbackTotal *prometheus.CounterVec

	// CacheHits and CacheMisses track query-cache effectiveness.
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// CredentialRefreshes counts refresh attempts by outcome
	// (success, failure).
	CredentialRefreshes *prometheus.CounterVec

	// PoolExhausted counts acquisitions that timed out waiting for a session.
	PoolExhausted prometheus.Counter

	// ConversationsTotal counts conversational queries by terminal state
	// (succeeded, failed, timed_out).
	ConversationsTotal *prometheus.CounterVec

	// QueryDuration measures remote statement latency in seconds.
	QueryDuration prometheus.Histogram
}

// New creates and registers all metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Data-access requests by logical table and answering source.",
		}, []string{"table", "source"}),
		FallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_served_total",
			Help:      "Requests answered with placeholder data because the platform was unreachable.",
		}, []string{"table"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Query-cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Query-cache misses (including expired entries).",
		}),
		CredentialRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_refreshes_total",
			Help:      "Platform credential refresh attempts by outcome.",
		}, []string{"outcome"}),
		PoolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_exhausted_total",
			Help:      "Session acquisitions that timed out because the pool was exhausted.",
		}),
		ConversationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_total",
			Help:      "Conversational queries by terminal state.",
		}, []string{"state"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Remote statement execution latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.QueriesTotal, m.FallbackTotal,
		m.CacheHits, m.CacheMisses,
		m.CredentialRefreshes, m.PoolExhausted,
		m.ConversationsTotal, m.QueryDuration,
	)
	return m
}

// NewForTest creates metrics on a private registry, for use in tests.
func NewForTest() *Metrics {
	return New(prometheus.NewRegistry())
}
