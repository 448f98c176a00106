package extraction

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"github.com/menta2k/plate-reader/pkg/client"
	"github.com/menta2k/plate-reader/pkg/cropper"
	perrors "github.com/menta2k/plate-reader/pkg/errors"
	"github.com/menta2k/plate-reader/pkg/types"
)

func createTestCrop() cropper.PlateCrop {
	return cropper.PlateCrop{
		Image: image.NewNRGBA(image.Rect(0, 0, 120, 30)),
		Box:   types.BoundingBox{X: 10, Y: 10, Width: 110, Height: 20},
	}
}

func fixedRecognizer(fragments []types.Fragment, err error) client.RecognizerFunc {
	return func(context.Context, image.Image) ([]types.Fragment, error) {
		return fragments, err
	}
}

func TestExtractAggregates(t *testing.T) {
	ext := NewExtractor(fixedRecognizer([]types.Fragment{
		{Text: "AB", Confidence: 0.9},
		{Text: "12", Confidence: 0.7},
		{Text: "CD", Confidence: 0.8},
	}, nil))

	result, err := ext.Extract(context.Background(), createTestCrop())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got := result.Text(); got != "AB12CD" {
		t.Errorf("Expected text AB12CD, got %q", got)
	}
	if got := result.Confidence(); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("Expected confidence 0.8, got %f", got)
	}
}

func TestExtractKeepsTextVerbatim(t *testing.T) {
	ext := NewExtractor(fixedRecognizer([]types.Fragment{
		{Text: " ab-1", Confidence: 0.5},
		{Text: "x ", Confidence: 0.5},
	}, nil))

	result, err := ext.Extract(context.Background(), createTestCrop())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := result.Text(); got != " ab-1x " {
		t.Errorf("Text must not be normalized, got %q", got)
	}
}

func TestExtractNoText(t *testing.T) {
	tests := map[string][]types.Fragment{
		"nil":   nil,
		"blank": {{Text: "  ", Confidence: 0.9}, {Text: "", Confidence: 0.4}},
	}

	for name, fragments := range tests {
		_, err := NewExtractor(fixedRecognizer(fragments, nil)).Extract(context.Background(), createTestCrop())
		if !errors.Is(err, ErrNoText) {
			t.Errorf("%s: expected ErrNoText, got %v", name, err)
		}
	}
}

func TestExtractClampsConfidence(t *testing.T) {
	ext := NewExtractor(fixedRecognizer([]types.Fragment{
		{Text: "A", Confidence: 1.7},
		{Text: "B", Confidence: -0.3},
	}, nil))

	result, err := ext.Extract(context.Background(), createTestCrop())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for _, f := range result.Fragments {
		if f.Confidence < 0 || f.Confidence > 1 {
			t.Errorf("Confidence %f outside [0,1]", f.Confidence)
		}
	}
	if got := result.Confidence(); got != 0.5 {
		t.Errorf("Expected mean 0.5, got %f", got)
	}
}

func TestExtractRecognizerFailure(t *testing.T) {
	ext := NewExtractor(fixedRecognizer(nil, errors.New("connection refused")))

	_, err := ext.Extract(context.Background(), createTestCrop())
	if code, _ := perrors.CodeOf(err); code != perrors.ErrorRecognitionFailed {
		t.Errorf("Expected RECOGNITION_FAILED, got %v", err)
	}
	if errors.Is(err, ErrNoText) {
		t.Error("Recognizer failures must not look like an empty read")
	}
}

func TestExtractWithoutRecognizer(t *testing.T) {
	_, err := NewExtractor(nil).Extract(context.Background(), createTestCrop())
	if code, _ := perrors.CodeOf(err); code != perrors.ErrorModelUnavailable {
		t.Errorf("Expected MODEL_UNAVAILABLE, got %v", err)
	}
}

func TestExtractPassesCropImage(t *testing.T) {
	crop := createTestCrop()
	var seen image.Image
	ext := NewExtractor(client.RecognizerFunc(func(_ context.Context, img image.Image) ([]types.Fragment, error) {
		seen = img
		return []types.Fragment{{Text: "X", Confidence: 1}}, nil
	}))

	if _, err := ext.Extract(context.Background(), crop); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if seen != image.Image(crop.Image) {
		t.Error("Recognizer did not receive the crop image")
	}
}
