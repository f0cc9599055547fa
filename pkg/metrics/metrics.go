// Package metrics records pipeline counters and stage timings in a
// Prometheus registry. A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mramip"

// Recorder holds the pipeline metrics
type Recorder struct {
	registry *prometheus.Registry

	stageSeconds     *prometheus.HistogramVec
	slicesMasked     prometheus.Counter
	emptySlices      prometheus.Counter
	foregroundPixels prometheus.Counter
	framesRendered   prometheus.Counter
	runs             *prometheus.CounterVec
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),
		slicesMasked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slices_masked_total",
			Help:      "Slices processed by the background masker.",
		}),
		emptySlices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_slices_total",
			Help:      "Masked slices without any foreground.",
		}),
		foregroundPixels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "foreground_pixels_total",
			Help:      "Foreground pixels kept by the background masker.",
		}),
		framesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rendered_total",
			Help:      "Projection frames rendered by the rotational sweep.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"status"}),
	}
	r.registry.MustRegister(
		r.stageSeconds,
		r.slicesMasked,
		r.emptySlices,
		r.foregroundPixels,
		r.framesRendered,
		r.runs,
	)
	return r
}

// Registry exposes the underlying registry, e.g. for an HTTP handler
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveStage records the duration of a named stage
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// SliceMasked records one masked slice with its foreground pixel count
func (r *Recorder) SliceMasked(foreground int) {
	if r == nil {
		return
	}
	r.slicesMasked.Inc()
	if foreground == 0 {
		r.emptySlices.Inc()
	}
	r.foregroundPixels.Add(float64(foreground))
}

// FrameRendered records one finished sweep frame
func (r *Recorder) FrameRendered() {
	if r == nil {
		return
	}
	r.framesRendered.Inc()
}

// RunFinished records the outcome of a pipeline run
func (r *Recorder) RunFinished(err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	r.runs.WithLabelValues(status).Inc()
}

// WriteTextfile writes all metrics in the Prometheus text format, as read
// by the node exporter textfile collector
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("error writing metrics: %w", err)
	}
	return nil
}
