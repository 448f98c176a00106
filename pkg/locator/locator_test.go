package locator

import (
	"errors"
	"image"
	"testing"

	perrors "github.com/menta2k/plate-reader/pkg/errors"
	"github.com/menta2k/plate-reader/pkg/ingest"
	"github.com/menta2k/plate-reader/pkg/types"
	"github.com/menta2k/plate-reader/pkg/vision"
)

// fakeDetector returns fixed regions and records the options it saw
type fakeDetector struct {
	regions []vision.Region
	err     error
	opts    vision.ScanOptions
	calls   int
}

func (f *fakeDetector) DetectMultiScale(_ *image.Gray, opts vision.ScanOptions) ([]vision.Region, error) {
	f.calls++
	f.opts = opts
	return f.regions, f.err
}

func createTestFrame(width, height int) *ingest.Frame {
	return ingest.NewFrame(image.NewNRGBA(image.Rect(0, 0, width, height)))
}

func TestLocateSelectsLargest(t *testing.T) {
	det := &fakeDetector{regions: []vision.Region{
		{X: 20, Y: 20, Width: 100, Height: 100, Score: 12},
		{X: 200, Y: 40, Width: 150, Height: 150, Score: 6},
	}}
	loc := New(det)

	c, ok, err := loc.Locate(createTestFrame(400, 300))
	if err != nil || !ok {
		t.Fatalf("Locate failed: ok=%v err=%v", ok, err)
	}

	want := types.BoundingBox{X: 200, Y: 40, Width: 150, Height: 150}
	if c.Box != want {
		t.Errorf("Expected %+v, got %+v", want, c.Box)
	}
}

func TestLocateTieBreaksOnHorizontalCenter(t *testing.T) {
	det := &fakeDetector{regions: []vision.Region{
		{X: 0, Y: 10, Width: 80, Height: 20},
		{X: 150, Y: 200, Width: 80, Height: 20},
		{X: 300, Y: 10, Width: 80, Height: 20},
	}}

	c, ok, err := New(det).Locate(createTestFrame(400, 300))
	if err != nil || !ok {
		t.Fatalf("Locate failed: ok=%v err=%v", ok, err)
	}
	if c.Box.X != 150 {
		t.Errorf("Expected the centered box, got %+v", c.Box)
	}
}

func TestLocateDeterministicOrder(t *testing.T) {
	a := vision.Region{X: 100, Y: 50, Width: 80, Height: 20}
	b := vision.Region{X: 100, Y: 10, Width: 80, Height: 20}

	for _, regions := range [][]vision.Region{{a, b}, {b, a}} {
		c, _, _ := New(&fakeDetector{regions: regions}).Locate(createTestFrame(400, 300))
		if c.Box.Y != 10 {
			t.Errorf("Expected the upper box regardless of order, got %+v", c.Box)
		}
	}
}

func TestLocateIdenticalBoxesPreferHigherScore(t *testing.T) {
	// both clamp to the same box at the right edge
	weak := vision.Region{X: 350, Y: 10, Width: 80, Height: 20, Score: 5}
	strong := vision.Region{X: 350, Y: 10, Width: 120, Height: 20, Score: 9}

	for _, regions := range [][]vision.Region{{weak, strong}, {strong, weak}} {
		c, ok, err := New(&fakeDetector{regions: regions}).Locate(createTestFrame(400, 300))
		if err != nil || !ok {
			t.Fatalf("Locate failed: ok=%v err=%v", ok, err)
		}
		if c.Box.Width != 50 || c.score != 9 {
			t.Errorf("Expected the clamped box with score 9, got %+v score %v", c.Box, c.score)
		}
	}
}

func TestLocateNoCandidate(t *testing.T) {
	det := &fakeDetector{}

	_, ok, err := New(det).Locate(createTestFrame(100, 100))
	if err != nil {
		t.Fatalf("No detections is not an error: %v", err)
	}
	if ok {
		t.Error("Expected no candidate")
	}
}

func TestLocateClampsIntoFrame(t *testing.T) {
	det := &fakeDetector{regions: []vision.Region{
		{X: 90, Y: -5, Width: 30, Height: 20},
		{X: 500, Y: 500, Width: 30, Height: 20},
	}}

	c, ok, err := New(det).Locate(createTestFrame(100, 50))
	if err != nil || !ok {
		t.Fatalf("Locate failed: ok=%v err=%v", ok, err)
	}
	if !c.Box.Valid(100, 50) {
		t.Errorf("Box %+v violates frame bounds", c.Box)
	}
	want := types.BoundingBox{X: 90, Y: 0, Width: 10, Height: 15}
	if c.Box != want {
		t.Errorf("Expected %+v, got %+v", want, c.Box)
	}
}

func TestLocateDetectorErrors(t *testing.T) {
	_, _, err := New(nil).Locate(createTestFrame(10, 10))
	if code, _ := perrors.CodeOf(err); code != perrors.ErrorModelUnavailable {
		t.Errorf("Expected MODEL_UNAVAILABLE for a missing detector, got %v", err)
	}

	det := &fakeDetector{err: errors.New("cascade not loaded")}
	_, _, err = New(det).Locate(createTestFrame(10, 10))
	if perrors.KindOf(err) != perrors.KindInternal {
		t.Errorf("Detector failures must be internal, got %v", err)
	}
}

func TestLocatePassesScanOptions(t *testing.T) {
	det := &fakeDetector{}
	cfg := Config{ScaleFactor: 1.2, MinNeighbors: 3, MinSize: image.Pt(30, 10)}

	_, _, _ = NewWithConfig(det, cfg).Locate(createTestFrame(50, 50))

	if det.opts.ScaleFactor != 1.2 || det.opts.MinNeighbors != 3 || det.opts.MinSize != image.Pt(30, 10) {
		t.Errorf("Scan options not forwarded: %+v", det.opts)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ScaleFactor != 1.1 || cfg.MinNeighbors != 5 || cfg.MinSize != image.Pt(25, 25) {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
}
