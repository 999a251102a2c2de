package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// System metrics
	SystemMemoryUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_memory_bytes",
		Help: "Current system memory usage",
	})

	SystemGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_goroutines",
		Help: "Number of goroutines",
	})

	DocumentProcessingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_processing_errors_total",
			Help: "Total number of document processing errors",
		},
		[]string{"stage"},
	)

	// Graph metrics
	GraphEntityCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graph_entities_total",
		Help: "Total number of entity nodes in the graph",
	})

	GraphRelationshipCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graph_relationships_total",
		Help: "Total number of relationship edges in the graph",
	})

	GraphSourceCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graph_sources_total",
		Help: "Total number of source documents recorded in the graph",
	})
)

// UpdateSystemMetrics refreshes the process-level gauges.
func UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	SystemMemoryUsage.Set(float64(m.Alloc))
	SystemGoroutines.Set(float64(runtime.NumGoroutine()))
}

// UpdateGraphMetrics publishes graph size counts.
func UpdateGraphMetrics(entities, relationships, sources int) {
	GraphEntityCount.Set(float64(entities))
	GraphRelationshipCount.Set(float64(relationships))
	GraphSourceCount.Set(float64(sources))
}
