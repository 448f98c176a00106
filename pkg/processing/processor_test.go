package processing

import (
	"image"
	"image/color"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/menta2k/plate-reader/pkg/types"
)

// createTestImage creates a plate-like image: dark characters on a light field
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(230)
			if (x/8)%3 == 0 && y > height/4 && y < 3*height/4 {
				v = 30
			}
			img.SetNRGBA(x, y, color.NRGBA{v, v, uint8(int(v) * 9 / 10), 255})
		}
	}
	return img
}

// ssim computes a single-window structural similarity over luminance
func ssim(a, b image.Image) float64 {
	bounds := a.Bounds()
	n := float64(bounds.Dx() * bounds.Dy())
	lum := func(img image.Image, x, y int) float64 {
		r, g, bl, _ := img.At(x, y).RGBA()
		return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257
	}

	var ma, mb float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			ma += lum(a, x, y)
			mb += lum(b, x-bounds.Min.X+b.Bounds().Min.X, y-bounds.Min.Y+b.Bounds().Min.Y)
		}
	}
	ma /= n
	mb /= n

	var va, vb, cov float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			da := lum(a, x, y) - ma
			db := lum(b, x-bounds.Min.X+b.Bounds().Min.X, y-bounds.Min.Y+b.Bounds().Min.Y) - mb
			va += da * da
			vb += db * db
			cov += da * db
		}
	}
	va /= n - 1
	vb /= n - 1
	cov /= n - 1

	c1 := math.Pow(0.01*255, 2)
	c2 := math.Pow(0.03*255, 2)
	return ((2*ma*mb + c1) * (2*cov + c2)) / ((ma*ma + mb*mb + c1) * (va + vb + c2))
}

func TestNewProcessorWithFormat(t *testing.T) {
	tests := []struct {
		in, format, mediaType string
	}{
		{"jpeg", FormatJPEG, "image/jpeg"},
		{"PNG", FormatPNG, "image/png"},
		{"webp", FormatWebP, "image/webp"},
		{"bmp", FormatJPEG, "image/jpeg"},
	}

	for _, tt := range tests {
		p := NewProcessorWithFormat(tt.in, 0)
		if p.Format() != tt.format || p.MediaType() != tt.mediaType {
			t.Errorf("%s: got %s / %s", tt.in, p.Format(), p.MediaType())
		}
		if p.quality != 95 {
			t.Errorf("%s: expected default quality 95, got %d", tt.in, p.quality)
		}
	}
}

func TestEncodeDataURLRoundTrip(t *testing.T) {
	crop := createTestImage(160, 40)

	for _, format := range []string{FormatJPEG, FormatPNG, FormatWebP} {
		p := NewProcessorWithFormat(format, 90)

		dataURL, err := p.EncodeDataURL(crop)
		if err != nil {
			t.Fatalf("%s: EncodeDataURL failed: %v", format, err)
		}
		if !strings.HasPrefix(dataURL, "data:image/"+format+";base64,") {
			t.Errorf("%s: unexpected prefix %.30s", format, dataURL)
		}

		decoded, err := DecodeDataURL(dataURL)
		if err != nil {
			t.Fatalf("%s: DecodeDataURL failed: %v", format, err)
		}
		if decoded.Bounds().Dx() != 160 || decoded.Bounds().Dy() != 40 {
			t.Fatalf("%s: size changed to %v", format, decoded.Bounds())
		}
		if s := ssim(crop, decoded); s < 0.9 {
			t.Errorf("%s: SSIM %f below 0.9", format, s)
		}
	}
}

func TestDataURLBytesErrors(t *testing.T) {
	tests := []string{
		"image/png;base64,AAAA",
		"data:image/png;base64",
		"data:image/png,AAAA",
		"data:image/png;base64,***",
	}
	for _, in := range tests {
		if _, _, err := DataURLBytes(in); err == nil {
			t.Errorf("Expected error for %q", in)
		}
	}

	data, mediaType, err := DataURLBytes("data:image/png;base64,aGk=")
	if err != nil || string(data) != "hi" || mediaType != "image/png" {
		t.Errorf("Unexpected result %q %q %v", data, mediaType, err)
	}
}

func TestAnnotate(t *testing.T) {
	p := NewProcessor()
	img := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	box := types.BoundingBox{X: 50, Y: 40, Width: 100, Height: 30}

	annotated := p.Annotate(img, box)

	green := color.NRGBA{0, 255, 0, 255}
	for _, pt := range []image.Point{{50, 40}, {52, 55}, {149, 69}, {100, 67}} {
		if got := annotated.NRGBAAt(pt.X, pt.Y); got != green {
			t.Errorf("Expected box stroke at %v, got %v", pt, got)
		}
	}
	if got := annotated.NRGBAAt(100, 55); got == green {
		t.Error("Box interior must not be filled")
	}

	// label sits in the band above the box
	labelled := false
	for y := 15; y < 32 && !labelled; y++ {
		for x := 50; x < 150; x++ {
			if annotated.NRGBAAt(x, y).G > 0 {
				labelled = true
				break
			}
		}
	}
	if !labelled {
		t.Error("Expected label pixels above the box")
	}

	if img.NRGBAAt(50, 40) == green {
		t.Error("Annotate must not modify its input")
	}
}

func TestAnnotateLabelBelowAtTopEdge(t *testing.T) {
	p := NewProcessor()
	img := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	box := types.BoundingBox{X: 10, Y: 0, Width: 120, Height: 20}

	annotated := p.Annotate(img, box)

	labelled := false
	for y := 21; y < 40 && !labelled; y++ {
		for x := 10; x < 130; x++ {
			if annotated.NRGBAAt(x, y).G > 0 {
				labelled = true
				break
			}
		}
	}
	if !labelled {
		t.Error("Expected label below a box touching the top edge")
	}
}

func TestSaveImage(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(40, 20)
	dir := t.TempDir()

	for _, format := range []string{"jpg", "png", "webp"} {
		path := filepath.Join(dir, "plate."+format)
		if err := p.SaveImage(img, path, format, 90); err != nil {
			t.Fatalf("SaveImage %s failed: %v", format, err)
		}
		raw, err := p.LoadRaw(path)
		if err != nil {
			t.Fatalf("LoadRaw %s failed: %v", format, err)
		}
		if !strings.HasPrefix(raw.MediaType, "image/") || raw.Length != int64(len(raw.Data)) {
			t.Errorf("%s: unexpected raw image %s %d", format, raw.MediaType, raw.Length)
		}
	}
}

func TestLoadRawFromURL(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "plate.png")
	if err := p.SaveImage(createTestImage(40, 20), path, "png", 0); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	raw, err := p.LoadRaw(srv.URL + "/plate.png")
	if err != nil {
		t.Fatalf("LoadRaw failed: %v", err)
	}
	if raw.MediaType != "image/png" {
		t.Errorf("Expected sniffed image/png, got %q", raw.MediaType)
	}
	if len(raw.Data) != len(data) {
		t.Errorf("Expected %d bytes, got %d", len(data), len(raw.Data))
	}

	if _, err := p.LoadRaw(srv.URL + "/missing.png"); err == nil {
		t.Error("Expected error for HTTP 404")
	}
	if _, err := p.LoadRawFromURL("ftp://example.com/a.png"); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}
