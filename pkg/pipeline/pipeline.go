// Package pipeline runs one uploaded image through ingest, plate location,
// text extraction and result assembly.
package pipeline

import (
	"context"
	"errors"

	"github.com/menta2k/plate-reader/pkg/cropper"
	perrors "github.com/menta2k/plate-reader/pkg/errors"
	"github.com/menta2k/plate-reader/pkg/extraction"
	"github.com/menta2k/plate-reader/pkg/ingest"
	"github.com/menta2k/plate-reader/pkg/locator"
	"github.com/menta2k/plate-reader/pkg/processing"
	"github.com/menta2k/plate-reader/pkg/types"
)

// Config holds configuration for every stage of a run
type Config struct {
	Ingest  ingest.Config
	Locator locator.Config
	// Crop shapes the image handed to the recognizer
	Crop          cropper.CropConfig
	OutputFormat  string
	OutputQuality int
}

// DefaultConfig returns the standard pipeline configuration
func DefaultConfig() Config {
	return Config{
		Ingest:        ingest.New().Config(),
		Locator:       locator.DefaultConfig(),
		Crop:          cropper.CropConfig{Padding: cropper.DefaultPadding, MaxUpscale: 1},
		OutputFormat:  processing.FormatJPEG,
		OutputQuality: 95,
	}
}

// Pipeline holds the per-process stage setup. It has no mutable state and
// may run concurrently.
type Pipeline struct {
	config    Config
	ingestor  *ingest.Ingestor
	cropper   *cropper.PlateCropper
	assembler *Assembler
}

// New creates a pipeline with default configuration
func New() *Pipeline {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a pipeline with custom configuration
func NewWithConfig(config Config) *Pipeline {
	return &Pipeline{
		config:    config,
		ingestor:  ingest.NewWithConfig(config.Ingest),
		cropper:   cropper.NewWithConfig(config.Crop),
		assembler: NewAssembler(processing.NewProcessorWithFormat(config.OutputFormat, config.OutputQuality)),
	}
}

// Ingestor exposes the ingest stage so callers can pre-check uploads
func (p *Pipeline) Ingestor() *ingest.Ingestor {
	return p.ingestor
}

// Run processes one image to a terminal outcome. ctx only reaches network
// recognizers; nothing else in a run is cancellable.
func (p *Pipeline) Run(ctx context.Context, models *Models, raw types.RawImage) Outcome {
	frame, err := p.ingestor.Ingest(raw)
	if err != nil {
		return IngestionError{Err: err}
	}

	if models == nil {
		return IngestionError{Err: perrors.NewModelUnavailableError("models", nil)}
	}

	candidate, found, err := locator.NewWithConfig(models.Detector, p.config.Locator).Locate(frame)
	if err != nil {
		return IngestionError{Err: err}
	}
	if !found {
		return p.assembler.Assemble(frame, nil, nil)
	}

	crop, err := p.cropper.Crop(frame.Color, candidate.Box)
	if err != nil {
		return IngestionError{Err: perrors.NewRecognitionFailedError(models.RecognizerName(), err)}
	}

	result, err := extraction.NewExtractor(models.Recognizer).Extract(ctx, crop)
	if errors.Is(err, extraction.ErrNoText) {
		return p.assembler.Assemble(frame, &candidate, nil)
	}
	if err != nil {
		return IngestionError{Err: err}
	}

	return p.assembler.Assemble(frame, &candidate, &result)
}
