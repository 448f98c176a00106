package vision

import (
	"image"
	"math"
)

// integralImage holds summed-area tables of pixel values and squared values
type integralImage struct {
	width, height int
	stride        int
	sums          []int64
	sqsums        []int64
}

func newIntegralImage(img *image.Gray) *integralImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := w + 1
	ii := &integralImage{
		width:  w,
		height: h,
		stride: stride,
		sums:   make([]int64, stride*(h+1)),
		sqsums: make([]int64, stride*(h+1)),
	}

	for y := 0; y < h; y++ {
		var rowSum, rowSq int64
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			v := int64(row[x])
			rowSum += v
			rowSq += v * v
			i := (y+1)*stride + x + 1
			ii.sums[i] = ii.sums[i-stride] + rowSum
			ii.sqsums[i] = ii.sqsums[i-stride] + rowSq
		}
	}
	return ii
}

// sum returns the pixel sum of the rectangle
func (ii *integralImage) sum(x, y, w, h int) int64 {
	s := ii.stride
	return ii.sums[(y+h)*s+x+w] - ii.sums[y*s+x+w] - ii.sums[(y+h)*s+x] + ii.sums[y*s+x]
}

func (ii *integralImage) sqsum(x, y, w, h int) int64 {
	s := ii.stride
	return ii.sqsums[(y+h)*s+x+w] - ii.sqsums[y*s+x+w] - ii.sqsums[(y+h)*s+x] + ii.sqsums[y*s+x]
}

// normFactor returns 1/(area*stddev) over the 1-pixel-inset window, or 1
// when the window is flat.
func (ii *integralImage) normFactor(x, y, winW, winH int) float64 {
	area := float64((winW - 2) * (winH - 2))
	s := float64(ii.sum(x+1, y+1, winW-2, winH-2))
	sq := float64(ii.sqsum(x+1, y+1, winW-2, winH-2))
	nf := area*sq - s*s
	if nf > 0 {
		nf = math.Sqrt(nf)
	} else {
		nf = 1
	}
	return 1 / nf
}
