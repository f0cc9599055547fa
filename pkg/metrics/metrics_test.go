package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounters(t *testing.T) {
	r := NewRecorder()
	r.SliceMasked(10)
	r.SliceMasked(0)
	r.SliceMasked(5)
	r.FrameRendered()
	r.FrameRendered()
	r.RunFinished(nil)
	r.RunFinished(errors.New("boom"))

	if got := testutil.ToFloat64(r.slicesMasked); got != 3 {
		t.Errorf("Expected 3 masked slices, got %v", got)
	}
	if got := testutil.ToFloat64(r.emptySlices); got != 1 {
		t.Errorf("Expected 1 empty slice, got %v", got)
	}
	if got := testutil.ToFloat64(r.foregroundPixels); got != 15 {
		t.Errorf("Expected 15 foreground pixels, got %v", got)
	}
	if got := testutil.ToFloat64(r.framesRendered); got != 2 {
		t.Errorf("Expected 2 frames, got %v", got)
	}
	if got := testutil.ToFloat64(r.runs.WithLabelValues("failure")); got != 1 {
		t.Errorf("Expected 1 failed run, got %v", got)
	}
}

func TestRecorderStages(t *testing.T) {
	r := NewRecorder()
	r.ObserveStage("mask", 2*time.Second)
	r.ObserveStage("sweep", time.Second)

	if n := testutil.CollectAndCount(r.stageSeconds); n != 2 {
		t.Errorf("Expected 2 stage series, got %d", n)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.FrameRendered()

	path := filepath.Join(t.TempDir(), "metrics", "mramip.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read metrics: %v", err)
	}
	if !strings.Contains(string(data), "mramip_frames_rendered_total 1") {
		t.Errorf("Expected frame counter in output, got:\n%s", data)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.SliceMasked(1)
	r.FrameRendered()
	r.ObserveStage("mask", time.Second)
	r.RunFinished(nil)
	if err := r.WriteTextfile("unused"); err != nil {
		t.Errorf("Nil recorder must not fail, got %v", err)
	}
}
