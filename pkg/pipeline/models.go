package pipeline

import (
	"github.com/menta2k/plate-reader/pkg/client"
	"github.com/menta2k/plate-reader/pkg/locator"
)

// Models is the read-only handle to the loaded detector and recognizer.
// Build it once per process and pass it to every run.
type Models struct {
	Detector   locator.Detector
	Recognizer client.Recognizer
}

// NewModels creates a model handle
func NewModels(detector locator.Detector, recognizer client.Recognizer) *Models {
	return &Models{Detector: detector, Recognizer: recognizer}
}

// RecognizerName returns the recognizer backend name for logs
func (m *Models) RecognizerName() string {
	if m == nil || m.Recognizer == nil {
		return "none"
	}
	return m.Recognizer.Name()
}
