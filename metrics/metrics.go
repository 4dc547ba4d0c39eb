// Package metrics holds the Prometheus collectors of the inpainting
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK        = "ok"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avinpaint_runs_total",
		Help: "Total number of pipeline runs, by result",
	}, []string{"result"})

	StageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avinpaint_stage_failures_total",
		Help: "Total number of failed runs, by the stage that failed",
	}, []string{"stage"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "avinpaint_stage_duration_seconds",
		Help:    "Duration of a pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avinpaint_frames_processed_total",
		Help: "Total number of inpainted frames across all runs",
	})

	MaskedPixelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avinpaint_masked_pixels_total",
		Help: "Total number of pixels selected for erasure across all frames",
	})

	InputBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avinpaint_input_bytes_total",
		Help: "Total size of the videos received",
	})

	OutputBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avinpaint_output_bytes_total",
		Help: "Total size of the videos produced",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "avinpaint_active_workers",
		Help: "Number of goroutines currently processing frames",
	})
)
