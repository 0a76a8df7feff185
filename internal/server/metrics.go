package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's prometheus collectors.
type Metrics struct {
	Ticks         prometheus.Counter
	Connections   prometheus.Gauge
	CacheSize     prometheus.Gauge
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheEvicted  prometheus.Counter
	MeshesServed  prometheus.Counter
	MeshGenErrors prometheus.Counter
}

// NewMetrics creates and registers the server collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aetheris",
			Name:      "ticks_total",
			Help:      "server ticks processed",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aetheris",
			Name:      "connections",
			Help:      "live client connections",
		}),
		CacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aetheris",
			Name:      "mesh_cache_size",
			Help:      "meshes held in the cache",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aetheris",
			Name:      "mesh_cache_hits_total",
			Help:      "cache lookups served without generation",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aetheris",
			Name:      "mesh_cache_misses_total",
			Help:      "cache lookups that invoked the mesher",
		}),
		CacheEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aetheris",
			Name:      "mesh_cache_evicted_total",
			Help:      "meshes removed by the cleanup pass",
		}),
		MeshesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aetheris",
			Name:      "meshes_served_total",
			Help:      "mesh response pairs sent to clients",
		}),
		MeshGenErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aetheris",
			Name:      "mesh_generation_errors_total",
			Help:      "mesher invocations that failed",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.Ticks, m.Connections, m.CacheSize, m.CacheHits,
		m.CacheMisses, m.CacheEvicted, m.MeshesServed, m.MeshGenErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
