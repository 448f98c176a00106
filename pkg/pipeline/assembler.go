package pipeline

import (
	"github.com/menta2k/plate-reader/pkg/cropper"
	perrors "github.com/menta2k/plate-reader/pkg/errors"
	"github.com/menta2k/plate-reader/pkg/ingest"
	"github.com/menta2k/plate-reader/pkg/locator"
	"github.com/menta2k/plate-reader/pkg/processing"
	"github.com/menta2k/plate-reader/pkg/types"
)

// Assembler is the single place where a run's outcome is classified
type Assembler struct {
	processor *processing.Processor
	cropper   *cropper.PlateCropper
}

// NewAssembler creates an assembler rendering images with processor
func NewAssembler(processor *processing.Processor) *Assembler {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	return &Assembler{
		processor: processor,
		cropper:   cropper.New(),
	}
}

// Assemble builds the outcome. A nil candidate means nothing was located; a
// nil or empty result means the plate could not be read.
func (a *Assembler) Assemble(frame *ingest.Frame, candidate *locator.Candidate, result *types.RecognitionResult) Outcome {
	if candidate == nil {
		return a.noPlate(frame, ReasonNoCandidate)
	}
	if result.Empty() {
		return a.noPlate(frame, ReasonNoText)
	}

	crop, err := a.cropper.Crop(frame.Color, candidate.Box)
	if err != nil {
		return IngestionError{Err: perrors.NewEncodeFailedError(err)}
	}

	original, err := a.processor.EncodeDataURL(a.processor.Annotate(frame.Color, candidate.Box))
	if err != nil {
		return IngestionError{Err: perrors.NewEncodeFailedError(err)}
	}
	plate, err := a.processor.EncodeDataURL(crop.Image)
	if err != nil {
		return IngestionError{Err: perrors.NewEncodeFailedError(err)}
	}

	return Success{
		PlateText:     result.Text(),
		Confidence:    result.Confidence(),
		Box:           candidate.Box,
		OriginalImage: original,
		PlateImage:    plate,
	}
}

func (a *Assembler) noPlate(frame *ingest.Frame, reason Reason) Outcome {
	original, err := a.processor.EncodeDataURL(frame.Color)
	if err != nil {
		return IngestionError{Err: perrors.NewEncodeFailedError(err)}
	}
	return NoPlateFound{Reason: reason, OriginalImage: original}
}
