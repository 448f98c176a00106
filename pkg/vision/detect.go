package vision

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// ScanOptions controls the multi-scale scan
type ScanOptions struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
	MaxSize      image.Point
}

// DefaultScanOptions matches the plate detector's tuning
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		ScaleFactor:  1.1,
		MinNeighbors: 5,
		MinSize:      image.Pt(25, 25),
	}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// Rect returns the region as an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// DetectMultiScale scans img at a geometric series of scales and returns the
// grouped detections in img coordinates. Score is the group's raw detection count.
func (c *Cascade) DetectMultiScale(img *image.Gray, opts ScanOptions) ([]Region, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if opts.ScaleFactor <= 1 {
		opts.ScaleFactor = 1.1
	}

	raw := c.scan(img, opts)
	return GroupRectangles(raw, opts.MinNeighbors, 0.2), nil
}

// scan returns every window accepted by all stages, mapped back to img coordinates
func (c *Cascade) scan(img *image.Gray, opts ScanOptions) []image.Rectangle {
	b := img.Bounds()
	imgW, imgH := b.Dx(), b.Dy()
	var found []image.Rectangle

	for factor := 1.0; ; factor *= opts.ScaleFactor {
		winW := round(float64(c.Width) * factor)
		winH := round(float64(c.Height) * factor)
		scaledW := round(float64(imgW) / factor)
		scaledH := round(float64(imgH) / factor)

		if scaledW < c.Width || scaledH < c.Height {
			break
		}
		if opts.MaxSize.X > 0 && opts.MaxSize.Y > 0 && (winW > opts.MaxSize.X || winH > opts.MaxSize.Y) {
			break
		}
		if winW < opts.MinSize.X || winH < opts.MinSize.Y {
			continue
		}

		scaled := img
		if factor != 1.0 {
			scaled = image.NewGray(image.Rect(0, 0, scaledW, scaledH))
			draw.BiLinear.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)
		}
		ii := newIntegralImage(scaled)

		step := 2
		if factor > 2 {
			step = 1
		}

		candidates := make([]window, 0, ((scaledW-c.Width)/step+1)*((scaledH-c.Height)/step+1))
		for y := 0; y+c.Height <= scaledH; y += step {
			for x := 0; x+c.Width <= scaledW; x += step {
				candidates = append(candidates, window{x: x, y: y, inv: ii.normFactor(x, y, c.Width, c.Height)})
			}
		}

		for _, w := range c.classify(ii, candidates) {
			x := round(float64(w.x) * factor)
			y := round(float64(w.y) * factor)
			found = append(found, image.Rect(x, y, x+winW, y+winH))
		}
	}
	return found
}

func round(v float64) int {
	return int(math.Round(v))
}
