package ingest

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	perrors "github.com/menta2k/plate-reader/pkg/errors"
	"github.com/menta2k/plate-reader/pkg/types"
)

const (
	// MaxBytes is the default upload ceiling (10 MiB)
	MaxBytes = 10 * 1024 * 1024

	// MaxPixels is the default ceiling on declared width*height
	MaxPixels = 178956970
)

// DefaultSupportedTypes is the media type allow-list
var DefaultSupportedTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/webp"}

// DecodeFunc turns encoded bytes into an image
type DecodeFunc func(data []byte) (image.Image, error)

// Config holds configuration for the ingestor
type Config struct {
	SupportedTypes []string
	MaxBytes       int64
	MaxPixels      int64
	MaxDimension   int
}

// Ingestor validates, decodes and normalizes uploaded images
type Ingestor struct {
	config Config
	decode DecodeFunc
}

// Frame is a decoded image in RGB order plus its luminance view.
// Detection reads Luma; rendering reads Color.
type Frame struct {
	Color *image.NRGBA
	Luma  *image.Gray
}

// Width returns the frame width in pixels
func (f *Frame) Width() int {
	return f.Color.Bounds().Dx()
}

// Height returns the frame height in pixels
func (f *Frame) Height() int {
	return f.Color.Bounds().Dy()
}

// New creates a new Ingestor with default configuration
func New() *Ingestor {
	return &Ingestor{
		config: Config{
			SupportedTypes: DefaultSupportedTypes,
			MaxBytes:       MaxBytes,
			MaxPixels:      MaxPixels,
			MaxDimension:   1920,
		},
		decode: DecodeBytes,
	}
}

// NewWithConfig creates a new Ingestor with custom configuration
func NewWithConfig(config Config) *Ingestor {
	if len(config.SupportedTypes) == 0 {
		config.SupportedTypes = DefaultSupportedTypes
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = MaxBytes
	}
	if config.MaxPixels <= 0 {
		config.MaxPixels = MaxPixels
	}
	return &Ingestor{config: config, decode: DecodeBytes}
}

// SetDecoder replaces the byte decoder
func (i *Ingestor) SetDecoder(fn DecodeFunc) {
	i.decode = fn
}

// Config returns the active configuration
func (i *Ingestor) Config() Config {
	return i.config
}

// Ingest validates raw and decodes it into a Frame. Size, type and the
// header's pixel count are checked before the decoder is touched.
func (i *Ingestor) Ingest(raw types.RawImage) (*Frame, error) {
	if size := raw.Size(); size > i.config.MaxBytes {
		return nil, perrors.NewTooLargeError(size, i.config.MaxBytes)
	}

	if !i.IsTypeSupported(raw.MediaType) {
		return nil, perrors.NewUnsupportedTypeError(raw.MediaType, i.config.SupportedTypes)
	}

	if w, h, ok := DecodeDimensions(raw.Data); ok && int64(w)*int64(h) > i.config.MaxPixels {
		return nil, perrors.NewTooManyPixelsError(w, h, i.config.MaxPixels)
	}

	img, err := i.decode(raw.Data)
	if err != nil {
		return nil, perrors.NewCorruptImageError(err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, perrors.NewCorruptImageError(fmt.Errorf("decoded image has no pixels"))
	}

	return NewFrame(i.resizeIfNeeded(img)), nil
}

// IsTypeSupported checks a declared media type against the allow-list
func (i *Ingestor) IsTypeSupported(mediaType string) bool {
	mt := NormalizeMediaType(mediaType)
	for _, supported := range i.config.SupportedTypes {
		if strings.EqualFold(mt, supported) {
			return true
		}
	}
	return false
}

// NormalizeMediaType lowercases a media type and drops its parameters
func NormalizeMediaType(mediaType string) string {
	if idx := strings.IndexByte(mediaType, ';'); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func (i *Ingestor) resizeIfNeeded(img image.Image) image.Image {
	maxDim := i.config.MaxDimension
	if maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	if w >= h {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}

// NewFrame copies img into an opaque RGB buffer and derives its luminance view
func NewFrame(img image.Image) *Frame {
	color := imaging.Clone(img)
	for p := 3; p < len(color.Pix); p += 4 {
		color.Pix[p] = 0xff
	}
	return &Frame{Color: color, Luma: Luminance(color)}
}

// Luminance converts an NRGBA buffer to 8-bit gray with BT.601 weights,
// using the same fixed-point rounding as OpenCV's RGB2GRAY.
func Luminance(src *image.NRGBA) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		si := src.PixOffset(b.Min.X, b.Min.Y+y)
		di := y * dst.Stride
		for x := 0; x < w; x++ {
			r := uint32(src.Pix[si])
			g := uint32(src.Pix[si+1])
			bl := uint32(src.Pix[si+2])
			dst.Pix[di+x] = uint8((r*4899 + g*9617 + bl*1868 + 8192) >> 14)
			si += 4
		}
	}
	return dst
}

// DecodeDimensions reads the width and height from the image header only.
// ok is false when no header reader recognizes the data; the full decoder
// then gets to report it.
func DecodeDimensions(data []byte) (width, height int, ok bool) {
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg.Width, cfg.Height, true
	}
	if w, h, _, err := webp.GetInfo(data); err == nil {
		return w, h, true
	}
	return 0, 0, false
}

// DecodeBytes decodes an image from byte data with WebP support
func DecodeBytes(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}

	// The pure-Go WebP decoder misses some variants; libwebp reads them
	if webpImg, webpErr := webp.Decode(bytes.NewReader(data)); webpErr == nil {
		return webpImg, nil
	}

	return nil, fmt.Errorf("failed to decode image: %w", err)
}
