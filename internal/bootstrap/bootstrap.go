// Package bootstrap turns configuration into the process-wide model handle.
package bootstrap

import (
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/menta2k/plate-reader/internal/config"
	"github.com/menta2k/plate-reader/internal/logging"
	"github.com/menta2k/plate-reader/pkg/client"
	"github.com/menta2k/plate-reader/pkg/cropper"
	"github.com/menta2k/plate-reader/pkg/ingest"
	"github.com/menta2k/plate-reader/pkg/llamacpp"
	"github.com/menta2k/plate-reader/pkg/locator"
	"github.com/menta2k/plate-reader/pkg/ollama"
	"github.com/menta2k/plate-reader/pkg/pipeline"
	"github.com/menta2k/plate-reader/pkg/rekognition"
	"github.com/menta2k/plate-reader/pkg/tesseract"
	"github.com/menta2k/plate-reader/pkg/types"
	"github.com/menta2k/plate-reader/pkg/vision"
)

// BuildModels loads the detector and recognizer named by cfg. The returned
// cleanup releases native resources and is safe to call when err is non-nil.
func BuildModels(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pipeline.Models, func(), error) {
	detector, closeDetector, err := buildDetector(ctx, cfg.Detector, logger)
	if err != nil {
		return nil, func() {}, err
	}

	recognizer, closeRecognizer, err := buildRecognizer(ctx, cfg)
	if err != nil {
		closeDetector()
		return nil, func() {}, err
	}
	cleanup := func() {
		closeRecognizer()
		closeDetector()
	}

	logger.Info("models loaded",
		"detector", cfg.Detector.Backend,
		"cascade", cfg.Detector.CascadePath,
		"recognizer", recognizer.Name())

	return pipeline.NewModels(detector, recognizer), cleanup, nil
}

// PipelineConfig maps application configuration onto the pipeline stages
func PipelineConfig(cfg *config.Config) pipeline.Config {
	pc := pipeline.DefaultConfig()

	pc.Ingest = ingest.Config{
		SupportedTypes: cfg.Ingest.SupportedTypes,
		MaxBytes:       cfg.Ingest.MaxBytes,
		MaxPixels:      cfg.Ingest.MaxPixels,
		MaxDimension:   cfg.Ingest.MaxDimension,
	}
	pc.Locator = locator.Config{
		ScaleFactor:  cfg.Detector.ScaleFactor,
		MinNeighbors: cfg.Detector.MinNeighbors,
		MinSize:      image.Pt(cfg.Detector.MinWidth, cfg.Detector.MinHeight),
		MaxSize:      image.Pt(cfg.Detector.MaxWidth, cfg.Detector.MaxHeight),
	}
	pc.Crop = cropper.CropConfig{
		Padding:    cropper.DefaultPadding,
		MinHeight:  cfg.Recognizer.MinCropHeight,
		MaxUpscale: 4,
	}
	pc.OutputFormat = cfg.Output.Format
	pc.OutputQuality = cfg.Output.Quality

	return pc
}

func buildDetector(ctx context.Context, cfg config.DetectorConfig, logger *logging.Logger) (locator.Detector, func(), error) {
	if err := vision.EnsureCascadeFile(ctx, cfg.CascadePath, cfg.CascadeURL); err != nil {
		return nil, func() {}, fmt.Errorf("cascade unavailable: %w", err)
	}

	switch cfg.Backend {
	case "haar":
		cascade, err := vision.LoadCascadeFile(cfg.CascadePath)
		if err != nil {
			return nil, func() {}, err
		}
		logger.Debug("cascade loaded", "window", cascade.WindowSize(), "stages", len(cascade.Stages))
		return cascade, func() {}, nil
	case "opencv":
		return newOpenCVDetector(cfg.CascadePath, cfg.ContourFallback)
	default:
		return nil, func() {}, fmt.Errorf("unknown detector backend %q", cfg.Backend)
	}
}

// buildRecognizer also returns a release func for backends that hold
// native engines
func buildRecognizer(ctx context.Context, cfg *config.Config) (client.Recognizer, func(), error) {
	rc := cfg.Recognizer
	var (
		recognizer client.Recognizer
		err        error
	)

	switch rc.Backend {
	case "tesseract":
		recognizer, err = tesseract.NewClient(tesseract.Config{
			Language:       rc.Language,
			TessdataPrefix: rc.TessdataPrefix,
			Whitelist:      rc.Whitelist,
			Engines:        cfg.Server.MaxConcurrentRuns,
		})
	case "ollama":
		recognizer, err = ollama.NewClient(rc.URL, rc.Model)
	case "llamacpp":
		recognizer, err = llamacpp.NewClient(rc.URL, rc.Model)
	case "rekognition":
		recognizer, err = rekognition.NewFromRegion(ctx, rc.AWSRegion)
	default:
		return nil, func() {}, fmt.Errorf("unknown recognizer backend %q", rc.Backend)
	}
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to create %s recognizer: %w", rc.Backend, err)
	}

	release := func() {}
	if closer, ok := recognizer.(io.Closer); ok {
		release = func() { closer.Close() }
	}

	if timeout := cfg.RecognizerTimeout(); timeout > 0 {
		recognizer = withTimeout(recognizer, timeout)
	}
	return recognizer, release, nil
}

type timeoutRecognizer struct {
	client.Recognizer
	timeout time.Duration
}

func withTimeout(r client.Recognizer, timeout time.Duration) client.Recognizer {
	return &timeoutRecognizer{Recognizer: r, timeout: timeout}
}

func (t *timeoutRecognizer) Recognize(ctx context.Context, img image.Image) ([]types.Fragment, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Recognizer.Recognize(ctx, img)
}
