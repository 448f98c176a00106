// Package vision implements a pure-Go boosted Haar cascade detector
// compatible with OpenCV's trained cascade files.
package vision

import (
	"fmt"
	"image"
)

// Rect is a weighted rectangle of a Haar feature, in base window coordinates
type Rect struct {
	X, Y, Width, Height int
	Weight              float64
}

// Feature is a weighted sum of rectangle sums
type Feature struct {
	Rects []Rect
}

// Node is an internal split of a weak classifier tree. Left and Right are
// node indices when positive and negated leaf indices otherwise.
type Node struct {
	Left, Right int
	Feature     int
	Threshold   float64
}

// WeakClassifier is a small decision tree over feature values
type WeakClassifier struct {
	Nodes  []Node
	Leaves []float64
}

// Stage is one boosted stage: the window survives when the sum of its weak
// classifier outputs reaches Threshold.
type Stage struct {
	Threshold float64
	Weak      []WeakClassifier
}

// Cascade is an immutable trained classifier. It is safe for concurrent use.
type Cascade struct {
	Width    int
	Height   int
	Stages   []Stage
	Features []Feature
}

// Validate checks the internal references of the cascade
func (c *Cascade) Validate() error {
	if c.Width < 3 || c.Height < 3 {
		return fmt.Errorf("cascade window too small: %dx%d", c.Width, c.Height)
	}
	if len(c.Stages) == 0 {
		return fmt.Errorf("cascade has no stages")
	}
	for fi, f := range c.Features {
		if len(f.Rects) == 0 {
			return fmt.Errorf("feature %d has no rectangles", fi)
		}
		for _, r := range f.Rects {
			if r.X < 0 || r.Y < 0 || r.Width <= 0 || r.Height <= 0 ||
				r.X+r.Width > c.Width || r.Y+r.Height > c.Height {
				return fmt.Errorf("feature %d rectangle %+v outside %dx%d window", fi, r, c.Width, c.Height)
			}
		}
	}
	for si, s := range c.Stages {
		if len(s.Weak) == 0 {
			return fmt.Errorf("stage %d has no weak classifiers", si)
		}
		for wi, w := range s.Weak {
			if len(w.Nodes) == 0 {
				return fmt.Errorf("stage %d classifier %d has no nodes", si, wi)
			}
			for _, n := range w.Nodes {
				if n.Feature < 0 || n.Feature >= len(c.Features) {
					return fmt.Errorf("stage %d classifier %d references feature %d of %d", si, wi, n.Feature, len(c.Features))
				}
				for _, next := range []int{n.Left, n.Right} {
					if next > 0 && next >= len(w.Nodes) {
						return fmt.Errorf("stage %d classifier %d references node %d", si, wi, next)
					}
					if next <= 0 && -next >= len(w.Leaves) {
						return fmt.Errorf("stage %d classifier %d references leaf %d", si, wi, -next)
					}
				}
			}
		}
	}
	return nil
}

// WindowSize returns the base detection window
func (c *Cascade) WindowSize() image.Point {
	return image.Pt(c.Width, c.Height)
}

// window is one scan position together with its variance normalization factor
type window struct {
	x, y int
	inv  float64
}

// featureValue evaluates a feature at a window, normalized by the window's
// standard deviation.
func (c *Cascade) featureValue(ii *integralImage, w window, fi int) float64 {
	var sum float64
	for _, r := range c.Features[fi].Rects {
		sum += r.Weight * float64(ii.sum(w.x+r.X, w.y+r.Y, r.Width, r.Height))
	}
	return sum * w.inv
}

func (c *Cascade) evalWeak(ii *integralImage, w window, wc *WeakClassifier) float64 {
	idx := 0
	for {
		n := &wc.Nodes[idx]
		if c.featureValue(ii, w, n.Feature) < n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
		if idx <= 0 {
			return wc.Leaves[-idx]
		}
	}
}

// stageFilter returns the stage as a predicate over windows
func (c *Cascade) stageFilter(ii *integralImage, s *Stage) func(window) bool {
	return func(w window) bool {
		var sum float64
		for i := range s.Weak {
			sum += c.evalWeak(ii, w, &s.Weak[i])
		}
		return sum >= s.Threshold
	}
}

// classify runs the stages in order over the still-candidate set and returns
// the windows that survive all of them. The slice is filtered in place.
func (c *Cascade) classify(ii *integralImage, candidates []window) []window {
	for si := range c.Stages {
		keep := c.stageFilter(ii, &c.Stages[si])
		n := 0
		for _, w := range candidates {
			if keep(w) {
				candidates[n] = w
				n++
			}
		}
		candidates = candidates[:n]
		if n == 0 {
			break
		}
	}
	return candidates
}
