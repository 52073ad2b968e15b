// Package metrics holds Prometheus instruments that are used across the
// gateway.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CachedTenants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenant_cache_entries",
			Help: "Number of domain entries currently held in the tenant cache.",
		})

	TenantCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_cache_hits_total",
			Help: "Cumulative number of tenant lookups served from cache.",
		})

	TenantCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_cache_misses_total",
			Help: "Cumulative number of tenant lookups that went to the store.",
		})

	TenantLoadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_load_total",
			Help: "Cumulative number of tenants successfully loaded from the store.",
		})

	TenantLoadErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_load_errors_total",
			Help: "Cumulative number of failed tenant loads by kind.",
		}, []string{"kind"})

	TenantEvictTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_evict_total",
			Help: "Cumulative number of cache entries evicted by reason.",
		}, []string{"reason"})

	TenantInvalidateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_invalidate_total",
			Help: "Cumulative number of explicit invalidations by scope.",
		}, []string{"scope"})

	TenantResolveSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tenant_resolve_seconds",
			Help:    "Latency of host → tenant resolution, cache hits included.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 2},
		})

	GateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Cumulative number of gate decisions by action and reason.",
		}, []string{"action", "reason"})
)

func init() {
	prometheus.MustRegister(
		CachedTenants,
		TenantCacheHitsTotal,
		TenantCacheMissesTotal,
		TenantLoadTotal,
		TenantLoadErrorsTotal,
		TenantEvictTotal,
		TenantInvalidateTotal,
		TenantResolveSeconds,
		GateDecisionsTotal,
	)
}
