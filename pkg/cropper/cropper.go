package cropper

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/plate-reader/pkg/types"
)

// DefaultPadding is the margin kept around a located plate, in pixels
const DefaultPadding = 5

// PlateCropper cuts plate regions out of a frame for recognition
type PlateCropper struct {
	config CropConfig
}

// CropConfig holds configuration for plate cropping
type CropConfig struct {
	// Padding is added on every side before clamping to the frame
	Padding int
	// MinHeight upscales crops shorter than this; zero disables upscaling
	MinHeight int
	// MaxUpscale caps the upscaling factor
	MaxUpscale float64
}

// PlateCrop is a copy of the frame restricted to the padded plate box
type PlateCrop struct {
	Image *image.NRGBA
	// Box is the located region, unpadded
	Box types.BoundingBox
	// Padded is the region actually cut from the frame
	Padded image.Rectangle
	Scale  float64
}

// New creates a new PlateCropper with default configuration
func New() *PlateCropper {
	return &PlateCropper{
		config: CropConfig{
			Padding:    DefaultPadding,
			MaxUpscale: 4,
		},
	}
}

// NewWithConfig creates a new PlateCropper with custom configuration
func NewWithConfig(config CropConfig) *PlateCropper {
	if config.MaxUpscale < 1 {
		config.MaxUpscale = 1
	}
	return &PlateCropper{config: config}
}

// Crop cuts the padded box out of img. The returned image has its origin
// at (0,0).
func (c *PlateCropper) Crop(img image.Image, box types.BoundingBox) (PlateCrop, error) {
	bounds := img.Bounds()
	if !box.Valid(bounds.Dx(), bounds.Dy()) {
		return PlateCrop{}, fmt.Errorf("box %+v outside %dx%d image", box, bounds.Dx(), bounds.Dy())
	}

	padded := PaddedRect(box, c.config.Padding, bounds)
	cropped := imaging.Crop(img, padded)

	scale := 1.0
	if c.config.MinHeight > 0 && cropped.Bounds().Dy() < c.config.MinHeight {
		scale = float64(c.config.MinHeight) / float64(cropped.Bounds().Dy())
		if scale > c.config.MaxUpscale {
			scale = c.config.MaxUpscale
		}
		w := int(float64(cropped.Bounds().Dx())*scale + 0.5)
		h := int(float64(cropped.Bounds().Dy())*scale + 0.5)
		cropped = imaging.Resize(cropped, w, h, imaging.CatmullRom)
	}

	return PlateCrop{
		Image:  cropped,
		Box:    box,
		Padded: padded,
		Scale:  scale,
	}, nil
}

// PaddedRect grows the box by padding on every side, clamped to bounds
func PaddedRect(box types.BoundingBox, padding int, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		bounds.Min.X+box.X-padding,
		bounds.Min.Y+box.Y-padding,
		bounds.Min.X+box.X+box.Width+padding,
		bounds.Min.Y+box.Y+box.Height+padding,
	)
	return r.Intersect(bounds)
}
