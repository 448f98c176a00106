package client

import (
	"context"
	"image"

	"github.com/menta2k/plate-reader/pkg/types"
)

// Recognizer reads text fragments from a cropped plate image. Fragments
// must come back in reading order with confidences on a [0,1] scale.
// Implementations must be safe for concurrent use.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, img image.Image) ([]types.Fragment, error)
}

// RecognizerFunc adapts a function to the Recognizer interface
type RecognizerFunc func(ctx context.Context, img image.Image) ([]types.Fragment, error)

// Name implements Recognizer
func (f RecognizerFunc) Name() string { return "func" }

// Recognize implements Recognizer
func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image) ([]types.Fragment, error) {
	return f(ctx, img)
}
