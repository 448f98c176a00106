package locator

import (
	"image"

	perrors "github.com/menta2k/plate-reader/pkg/errors"
	"github.com/menta2k/plate-reader/pkg/ingest"
	"github.com/menta2k/plate-reader/pkg/types"
	"github.com/menta2k/plate-reader/pkg/vision"
)

// Detector finds grouped plate-shaped regions in a luminance image.
// Implementations must be safe for concurrent use.
type Detector interface {
	DetectMultiScale(img *image.Gray, opts vision.ScanOptions) ([]vision.Region, error)
}

// Config holds configuration for the plate locator
type Config struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
	MaxSize      image.Point
}

// Candidate is a located plate region. The score only ranks candidates
// inside the locator and is not part of any output.
type Candidate struct {
	Box   types.BoundingBox
	score float64
}

// Locator selects the single best plate region of a frame
type Locator struct {
	detector Detector
	config   Config
}

// DefaultConfig returns the standard scan tuning
func DefaultConfig() Config {
	opts := vision.DefaultScanOptions()
	return Config{
		ScaleFactor:  opts.ScaleFactor,
		MinNeighbors: opts.MinNeighbors,
		MinSize:      opts.MinSize,
	}
}

// New creates a new Locator with default configuration
func New(detector Detector) *Locator {
	return &Locator{detector: detector, config: DefaultConfig()}
}

// NewWithConfig creates a new Locator with custom configuration
func NewWithConfig(detector Detector, config Config) *Locator {
	return &Locator{detector: detector, config: config}
}

// Locate returns the best candidate, or false when no plate-shaped region
// survived detection. Errors mean the detector itself is unusable.
func (l *Locator) Locate(frame *ingest.Frame) (Candidate, bool, error) {
	if l.detector == nil {
		return Candidate{}, false, perrors.NewModelUnavailableError("plate detector", nil)
	}

	regions, err := l.detector.DetectMultiScale(frame.Luma, vision.ScanOptions{
		ScaleFactor:  l.config.ScaleFactor,
		MinNeighbors: l.config.MinNeighbors,
		MinSize:      l.config.MinSize,
		MaxSize:      l.config.MaxSize,
	})
	if err != nil {
		return Candidate{}, false, perrors.NewModelUnavailableError("plate detector", err)
	}

	candidates := toCandidates(regions, frame.Width(), frame.Height())
	if len(candidates) == 0 {
		return Candidate{}, false, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if better(c, best, frame.Width()) {
			best = c
		}
	}
	return best, true, nil
}

// toCandidates clamps regions into the frame and drops the ones left empty
func toCandidates(regions []vision.Region, width, height int) []Candidate {
	bounds := image.Rect(0, 0, width, height)
	out := make([]Candidate, 0, len(regions))
	for _, r := range regions {
		rect := r.Rect().Intersect(bounds)
		if rect.Empty() {
			continue
		}
		out = append(out, Candidate{
			Box: types.BoundingBox{
				X:      rect.Min.X,
				Y:      rect.Min.Y,
				Width:  rect.Dx(),
				Height: rect.Dy(),
			},
			score: r.Score,
		})
	}
	return out
}

// better implements the selection policy: the largest box wins, ties go to
// the box whose center is closest to the frame's horizontal center, then to
// the upper box, then the leftmost. Identical boxes fall back to the higher
// detector score.
func better(a, b Candidate, frameWidth int) bool {
	if aa, ba := a.Box.Area(), b.Box.Area(); aa != ba {
		return aa > ba
	}
	if da, db := centerOffset(a.Box, frameWidth), centerOffset(b.Box, frameWidth); da != db {
		return da < db
	}
	if a.Box.Y != b.Box.Y {
		return a.Box.Y < b.Box.Y
	}
	if a.Box.X != b.Box.X {
		return a.Box.X < b.Box.X
	}
	return a.score > b.score
}

// centerOffset is twice the horizontal distance from the box center to the
// frame center, kept in integers
func centerOffset(b types.BoundingBox, frameWidth int) int {
	d := 2*b.X + b.Width - frameWidth
	if d < 0 {
		return -d
	}
	return d
}
