package extraction

import (
	"context"
	"errors"
	"strings"

	"github.com/menta2k/plate-reader/pkg/client"
	"github.com/menta2k/plate-reader/pkg/cropper"
	perrors "github.com/menta2k/plate-reader/pkg/errors"
	"github.com/menta2k/plate-reader/pkg/types"
)

// ErrNoText is returned when the recognizer found nothing readable in the crop
var ErrNoText = errors.New("no text recognized")

// Extractor handles plate text extraction using a recognizer backend
type Extractor struct {
	recognizer client.Recognizer
}

// NewExtractor creates a new extractor with a recognizer
func NewExtractor(recognizer client.Recognizer) *Extractor {
	return &Extractor{recognizer: recognizer}
}

// Extract runs recognition over the crop. Text is never normalized; fragments
// keep the order the recognizer emitted them in.
func (e *Extractor) Extract(ctx context.Context, crop cropper.PlateCrop) (types.RecognitionResult, error) {
	if e.recognizer == nil {
		return types.RecognitionResult{}, perrors.NewModelUnavailableError("text recognizer", nil)
	}

	fragments, err := e.recognizer.Recognize(ctx, crop.Image)
	if err != nil {
		return types.RecognitionResult{}, perrors.NewRecognitionFailedError(e.recognizer.Name(), err)
	}

	result := types.RecognitionResult{Fragments: normalizeFragments(fragments)}
	if result.Empty() {
		return types.RecognitionResult{}, ErrNoText
	}
	return result, nil
}

// normalizeFragments drops blank fragments and clamps confidences to [0,1]
func normalizeFragments(fragments []types.Fragment) []types.Fragment {
	out := make([]types.Fragment, 0, len(fragments))
	for _, f := range fragments {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		out = append(out, types.Fragment{
			Text:       f.Text,
			Confidence: clamp(f.Confidence, 0, 1),
		})
	}
	return out
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
