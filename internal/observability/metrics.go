package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics. Registered on the default registry; exposing them over
// HTTP is left to the embedding application.
var (
	// GenerationsTotal counts generation runs by outcome (success, failed, cancelled).
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "m3u_proxy",
		Subsystem: "pipeline",
		Name:      "generations_total",
		Help:      "Number of proxy generation runs by outcome.",
	}, []string{"outcome"})

	// GenerationDuration observes wall-clock generation time.
	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "m3u_proxy",
		Subsystem: "pipeline",
		Name:      "generation_duration_seconds",
		Help:      "Wall-clock duration of proxy generation runs.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// RecordsProcessed counts records handled per stage.
	RecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "m3u_proxy",
		Subsystem: "pipeline",
		Name:      "records_processed_total",
		Help:      "Records processed per pipeline stage.",
	}, []string{"stage"})

	// RecordsDropped counts records dropped per stage and reason.
	RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "m3u_proxy",
		Subsystem: "pipeline",
		Name:      "records_dropped_total",
		Help:      "Records dropped per pipeline stage and reason.",
	}, []string{"stage", "reason"})

	// SpillEvents counts accumulator spill-to-disk events.
	SpillEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "m3u_proxy",
		Subsystem: "pipeline",
		Name:      "spill_events_total",
		Help:      "Accumulator spill-to-disk events.",
	})

	// MemoryPressureLevel reports the governor's current level (0=optimal .. 4=emergency).
	MemoryPressureLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "m3u_proxy",
		Subsystem: "memory",
		Name:      "pressure_level",
		Help:      "Current memory pressure level (0=optimal, 4=emergency).",
	})
)
