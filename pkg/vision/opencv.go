//go:build opencv

package vision

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"gocv.io/x/gocv"
)

// OpenCVDetector runs OpenCV's own cascade implementation through gocv.
// It reads every cascade layout OpenCV reads, tilted and LBP features included.
type OpenCVDetector struct {
	// gocv classifiers are not safe for concurrent use
	mu              sync.Mutex
	classifier      gocv.CascadeClassifier
	contourFallback bool
}

// NewOpenCVDetector loads the cascade at path. With contourFallback set, a scan
// that finds nothing falls back to rectangular contour search.
func NewOpenCVDetector(path string, contourFallback bool) (*OpenCVDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade file %s", path)
	}
	return &OpenCVDetector{classifier: classifier, contourFallback: contourFallback}, nil
}

// Close releases the native classifier
func (d *OpenCVDetector) Close() error {
	return d.classifier.Close()
}

// DetectMultiScale implements the locator's detector contract
func (d *OpenCVDetector) DetectMultiScale(img *image.Gray, opts ScanOptions) ([]Region, error) {
	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	d.mu.Lock()
	rects := d.classifier.DetectMultiScaleWithParams(mat, opts.ScaleFactor, opts.MinNeighbors, 0, opts.MinSize, opts.MaxSize)
	d.mu.Unlock()

	regions := make([]Region, 0, len(rects))
	for _, r := range rects {
		regions = append(regions, Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy(), Score: 1})
	}

	if len(regions) == 0 && d.contourFallback {
		regions = contourCandidates(mat)
	}
	return regions, nil
}

// contourCandidates looks for 4-corner contours with a plate-like aspect ratio
// among the ten largest contours of the edge map.
func contourCandidates(gray gocv.Mat) []Region {
	filtered := gocv.NewMat()
	defer filtered.Close()
	gocv.BilateralFilter(gray, &filtered, 11, 17, 17)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(filtered, &edges, 30, 200)

	contours := gocv.FindContours(edges, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer contours.Close()

	type scored struct {
		idx  int
		area float64
	}
	items := make([]scored, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		items = append(items, scored{idx: i, area: gocv.ContourArea(contours.At(i))})
	}
	sort.SliceStable(items, func(a, b int) bool { return items[a].area > items[b].area })
	if len(items) > 10 {
		items = items[:10]
	}

	var out []Region
	for _, it := range items {
		c := contours.At(it.idx)
		approx := gocv.ApproxPolyDP(c, 0.02*gocv.ArcLength(c, true), true)
		if approx.Size() == 4 {
			r := gocv.BoundingRect(approx)
			if r.Dy() > 0 {
				ratio := float64(r.Dx()) / float64(r.Dy())
				if ratio >= 2.0 && ratio <= 5.0 {
					out = append(out, Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy(), Score: it.area})
				}
			}
		}
		approx.Close()
	}
	return out
}
