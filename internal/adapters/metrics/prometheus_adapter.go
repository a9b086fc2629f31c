package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnectionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "navi_bridge_active_connections",
			Help: "Number of active bridge WebSocket connections.",
		},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navi_bridge_cache_lookups_total",
			Help: "Status cache lookups, partitioned by outcome (hit, miss).",
		},
		[]string{"outcome"},
	)

	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navi_bridge_resolutions_total",
			Help: "Completed status resolutions, partitioned by provenance (edge, cloud) or failure.",
		},
		[]string{"source"},
	)

	StaleResultsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "navi_bridge_stale_results_dropped_total",
			Help: "Results discarded because the current case changed before delivery.",
		},
	)

	ViewerLinkDebouncedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "navi_bridge_viewer_link_debounced_total",
			Help: "Viewer-link requests suppressed inside the debounce cooldown window.",
		},
	)

	MutationMirrorFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "navi_bridge_mutation_mirror_failures_total",
			Help: "Cloud mirror failures after an edge mutation already succeeded.",
		},
	)
)

// IncrementActiveConnections increments the active connections gauge.
func IncrementActiveConnections() {
	ActiveConnectionsGauge.Inc()
}

// DecrementActiveConnections decrements the active connections gauge.
func DecrementActiveConnections() {
	ActiveConnectionsGauge.Dec()
}

// ObserveCacheHit records a status cache hit.
func ObserveCacheHit() { CacheLookupsTotal.WithLabelValues("hit").Inc() }

// ObserveCacheMiss records a status cache miss (absent or expired entry).
func ObserveCacheMiss() { CacheLookupsTotal.WithLabelValues("miss").Inc() }

// ObserveResolution records a completed resolution by source ("edge", "cloud", "failed").
func ObserveResolution(source string) { ResolutionsTotal.WithLabelValues(source).Inc() }
