package metrics

import (
	"math"
	"testing"
	"time"
)

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(64, 20*time.Millisecond, 10*time.Millisecond)
	w.Record(64, 10*time.Millisecond, 20*time.Millisecond)
	snap := w.Snapshot()
	if math.Abs(snap.ImagesPerSec-2133.3333) > 1 {
		t.Fatalf("unexpected throughput %.2f", snap.ImagesPerSec)
	}
	if math.Abs(snap.AvgDataMS-15) > 1e-9 {
		t.Fatalf("expected 15ms data wait, got %.4f", snap.AvgDataMS)
	}
	if w.samples != 0 || w.batches != 0 {
		t.Fatalf("window was not reset")
	}
	if snap.Batches != 2 {
		t.Fatalf("expected 2 batches, got %d", snap.Batches)
	}
}

func TestWindowEmptySnapshot(t *testing.T) {
	var w Window
	snap := w.Snapshot()
	if snap.ImagesPerSec != 0 || snap.AvgComputeMS != 0 {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}
}
