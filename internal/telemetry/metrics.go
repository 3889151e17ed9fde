package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency for both REST surfaces.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "speedsentry",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// CacheHitsTotal counts Get() calls served from a hash cache without
// touching the database, labeled by which store's cache served it.
var CacheHitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "speedsentry",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total number of cache hits, by cache name.",
	},
	[]string{"cache"},
)

// CacheMissesTotal counts Get() calls that fell through to the database.
var CacheMissesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "speedsentry",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total number of cache misses, by cache name.",
	},
	[]string{"cache"},
)

// CacheEvictionsTotal counts explicit evictions (reason "delete" or
// "purge"); random evictions made inside internal/cache are not counted.
var CacheEvictionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "speedsentry",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total number of cache evictions, by cache name and reason.",
	},
	[]string{"cache", "reason"},
)

// FanoutTotal counts C8's per-server fan-out calls.
var FanoutTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "speedsentry",
		Subsystem: "serveradmin",
		Name:      "fanout_total",
		Help:      "Total number of fan-out calls to polling servers, by operation and result.",
	},
	[]string{"operation", "result"},
)

// AggregatorRowsIn counts raw latency rows consumed per tick.
var AggregatorRowsIn = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "speedsentry",
		Subsystem: "aggregator",
		Name:      "rows_consumed_total",
		Help:      "Total number of raw latency rows consumed by the aggregator.",
	},
)

// AggregatorRowsExpunged counts aggregate rows deleted for exceeding retention.
var AggregatorRowsExpunged = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "speedsentry",
		Subsystem: "aggregator",
		Name:      "rows_expunged_total",
		Help:      "Total number of aggregate rows expunged for exceeding the retention window.",
	},
)

// AggregatorTickDuration tracks aggregator tick latency.
var AggregatorTickDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "speedsentry",
		Subsystem: "aggregator",
		Name:      "tick_duration_seconds",
		Help:      "Duration of a single aggregator rollup tick.",
		Buckets:   prometheus.DefBuckets,
	},
)

// All returns every speedsentry-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheEvictionsTotal,
		FanoutTotal,
		AggregatorRowsIn,
		AggregatorRowsExpunged,
		AggregatorTickDuration,
	}
}

// NewRegistry creates a Prometheus registry with Go/process collectors and
// every speedsentry collector.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
