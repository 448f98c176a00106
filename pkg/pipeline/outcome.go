package pipeline

import (
	"github.com/menta2k/plate-reader/pkg/types"
)

// Outcome is the terminal state of one run. The variant set is closed:
// Success, NoPlateFound and IngestionError are the only implementations.
type Outcome interface {
	outcome()
}

// Reason says why no plate was reported. It is for logs only; both reasons
// produce the same response.
type Reason string

const (
	ReasonNoCandidate Reason = "no_candidate"
	ReasonNoText      Reason = "no_text"
)

// Success carries a read plate and its rendered images
type Success struct {
	PlateText     string
	Confidence    float64
	Box           types.BoundingBox
	OriginalImage string
	PlateImage    string
}

// NoPlateFound is the expected-empty outcome
type NoPlateFound struct {
	Reason        Reason
	OriginalImage string
}

// IngestionError ends a run before a result could be assembled. Err carries
// a *errors.PipelineError whose kind separates bad input from bad deployment.
type IngestionError struct {
	Err error
}

func (Success) outcome()        {}
func (NoPlateFound) outcome()   {}
func (IngestionError) outcome() {}

func (e IngestionError) Error() string {
	if e.Err == nil {
		return "ingestion error"
	}
	return e.Err.Error()
}

func (e IngestionError) Unwrap() error {
	return e.Err
}
