// Package metrics exposes prometheus collectors for the frame walk, the paging layer, the
// particle-set updaters and the executor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered with the default registry on package load.
var (
	// OctantsObserved is the number of octree nodes observed in the last frame.
	OctantsObserved = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "starlod_octants_observed",
			Help: "Octree nodes observed during the last frame walk",
		},
		[]string{"index"},
	)

	// ObjectsObserved is the number of records in the last frame's active set.
	ObjectsObserved = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "starlod_objects_observed",
			Help: "Records selected for rendering during the last frame walk",
		},
		[]string{"index"},
	)

	// ResidentObjects is the number of records currently held in memory by loaded nodes.
	ResidentObjects = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "starlod_resident_objects",
			Help: "Records held by resident octree pages",
		},
		[]string{"index"},
	)

	// PageLoads counts page loads by outcome.
	PageLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlod_page_loads_total",
			Help: "Octree page loads by outcome",
		},
		[]string{"outcome"},
	)

	// PageEvictions counts unloaded octree pages.
	PageEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "starlod_page_evictions_total",
			Help: "Octree pages unloaded to respect the resident object budget",
		},
	)

	// SortsPublished counts top-K selections handed to the render thread.
	SortsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlod_sorts_published_total",
			Help: "Particle set selections published to the render thread",
		},
		[]string{"set"},
	)

	// PipelineFailures counts updater stages that failed and rolled back.
	PipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlod_pipeline_failures_total",
			Help: "Particle set pipeline stages that failed",
		},
		[]string{"set"},
	)

	// StageDuration measures how long each updater stage takes.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starlod_stage_duration_seconds",
			Help:    "Duration of particle set pipeline stages",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"stage"},
	)

	// ExecutorTasks counts executor tasks by outcome.
	ExecutorTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlod_executor_tasks_total",
			Help: "Tasks run by the executor service by outcome",
		},
		[]string{"outcome"},
	)
)
