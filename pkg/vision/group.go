package vision

import (
	"image"
	"math"
)

// similar reports whether two rectangles belong to the same object
func similar(a, b image.Rectangle, eps float64) bool {
	aw, ah := a.Dx(), a.Dy()
	bw, bh := b.Dx(), b.Dy()
	delta := eps * float64(minInt(aw, bw)+minInt(ah, bh)) * 0.5
	return math.Abs(float64(a.Min.X-b.Min.X)) <= delta &&
		math.Abs(float64(a.Min.Y-b.Min.Y)) <= delta &&
		math.Abs(float64(a.Max.X-b.Max.X)) <= delta &&
		math.Abs(float64(a.Max.Y-b.Max.Y)) <= delta
}

// partition labels rects into equivalence classes of the similar relation
func partition(rects []image.Rectangle, eps float64) ([]int, int) {
	parent := make([]int, len(rects))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := range rects {
		for j := i + 1; j < len(rects); j++ {
			if similar(rects[i], rects[j], eps) {
				ri, rj := find(i), find(j)
				if ri != rj {
					if ri < rj {
						parent[rj] = ri
					} else {
						parent[ri] = rj
					}
				}
			}
		}
	}

	labels := make([]int, len(rects))
	ids := map[int]int{}
	for i := range rects {
		root := find(i)
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		labels[i] = id
	}
	return labels, len(ids)
}

// GroupRectangles clusters raw detections, averages each cluster and keeps
// clusters with more than minNeighbors members. Clusters lying inside a
// stronger cluster are dropped.
func GroupRectangles(rects []image.Rectangle, minNeighbors int, eps float64) []Region {
	if len(rects) == 0 {
		return nil
	}
	if minNeighbors <= 0 {
		out := make([]Region, 0, len(rects))
		for _, r := range rects {
			out = append(out, Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy(), Score: 1})
		}
		return out
	}

	labels, nclasses := partition(rects, eps)

	type acc struct{ x, y, w, h, n int }
	sums := make([]acc, nclasses)
	for i, r := range rects {
		a := &sums[labels[i]]
		a.x += r.Min.X
		a.y += r.Min.Y
		a.w += r.Dx()
		a.h += r.Dy()
		a.n++
	}

	avg := make([]image.Rectangle, nclasses)
	for i, a := range sums {
		s := 1 / float64(a.n)
		x := round(float64(a.x) * s)
		y := round(float64(a.y) * s)
		avg[i] = image.Rect(x, y, x+round(float64(a.w)*s), y+round(float64(a.h)*s))
	}

	var out []Region
	for i := 0; i < nclasses; i++ {
		r1, n1 := avg[i], sums[i].n
		if n1 <= minNeighbors {
			continue
		}

		inside := false
		for j := 0; j < nclasses; j++ {
			n2 := sums[j].n
			if j == i || n2 <= minNeighbors {
				continue
			}
			r2 := avg[j]
			dx := round(float64(r2.Dx()) * eps)
			dy := round(float64(r2.Dy()) * eps)
			if r1.Min.X >= r2.Min.X-dx && r1.Min.Y >= r2.Min.Y-dy &&
				r1.Max.X <= r2.Max.X+dx && r1.Max.Y <= r2.Max.Y+dy &&
				(n2 > maxInt(3, n1) || n1 < 3) {
				inside = true
				break
			}
		}
		if !inside {
			out = append(out, Region{X: r1.Min.X, Y: r1.Min.Y, Width: r1.Dx(), Height: r1.Dy(), Score: float64(n1)})
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
