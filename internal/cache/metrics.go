package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup outcomes
const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultStale = "stale"
)

var (
	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gosight_file_cache_lookups_total",
		Help: "File cache lookups by payload kind and outcome",
	}, []string{"kind", "result"})

	cacheStoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gosight_file_cache_stores_total",
		Help: "File cache stores by payload kind",
	}, []string{"kind"})

	cacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gosight_file_cache_evictions_total",
		Help: "Entries removed by LRU eviction",
	})

	cacheCollectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gosight_file_cache_collected_total",
		Help: "Entries removed by garbage collection",
	})

	cacheSaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gosight_file_cache_save_duration_seconds",
		Help:    "Time spent persisting the file cache",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
)
