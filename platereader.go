// Package platereader finds a license plate in a vehicle photo and reads its text.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		platereader "github.com/menta2k/plate-reader"
//		"github.com/menta2k/plate-reader/pkg/tesseract"
//	)
//
//	func main() {
//		ocr, err := tesseract.NewClient(tesseract.DefaultConfig())
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer ocr.Close()
//
//		reader, err := platereader.NewFromCascade("haarcascade_russian_plate_number.xml", ocr)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		resp, err := reader.ReadFile(context.Background(), "car.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		if resp.PlateText != nil {
//			fmt.Printf("%s (%.2f)\n", *resp.PlateText, resp.Confidence)
//		}
//	}
//
// A run goes through four stages:
//
// 1. Ingest (pkg/ingest): validates type and size, decodes and downscales
// 2. Locate (pkg/locator, pkg/vision): Haar cascade scan and candidate selection
// 3. Extract (pkg/extraction): runs a recognizer over the padded plate crop
// 4. Assemble (pkg/pipeline): annotated original and plate crop as data URLs
//
// Recognizers live in pkg/tesseract, pkg/ollama, pkg/llamacpp and pkg/rekognition.
package platereader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/menta2k/plate-reader/internal/utils"
	"github.com/menta2k/plate-reader/pkg/client"
	"github.com/menta2k/plate-reader/pkg/pipeline"
	"github.com/menta2k/plate-reader/pkg/processing"
	"github.com/menta2k/plate-reader/pkg/types"
	"github.com/menta2k/plate-reader/pkg/vision"
)

// Version of the plate reader library
const Version = "1.0.0"

// PlateReader provides a high-level interface over the plate pipeline
type PlateReader struct {
	pipeline  *pipeline.Pipeline
	models    *pipeline.Models
	processor *processing.Processor
}

// New creates a PlateReader with default configuration
func New(models *pipeline.Models) *PlateReader {
	return NewWithConfig(models, pipeline.DefaultConfig())
}

// NewWithConfig creates a PlateReader with custom configuration
func NewWithConfig(models *pipeline.Models, config pipeline.Config) *PlateReader {
	return &PlateReader{
		pipeline:  pipeline.NewWithConfig(config),
		models:    models,
		processor: processing.NewProcessorWithFormat(config.OutputFormat, config.OutputQuality),
	}
}

// NewFromCascade loads a cascade file for the pure-Go detector
func NewFromCascade(cascadePath string, recognizer client.Recognizer) (*PlateReader, error) {
	cascade, err := vision.LoadCascadeFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load cascade: %w", err)
	}
	return New(pipeline.NewModels(cascade, recognizer)), nil
}

// Read runs the pipeline and returns the terminal outcome
func (r *PlateReader) Read(ctx context.Context, raw types.RawImage) pipeline.Outcome {
	return r.pipeline.Run(ctx, r.models, raw)
}

// ReadBytes runs the pipeline over encoded image bytes and returns the wire
// response. Ingestion failures come back as the error.
func (r *PlateReader) ReadBytes(ctx context.Context, data []byte, mediaType string) (types.Response, error) {
	return pipeline.Respond(r.Read(ctx, types.RawImage{
		Data:      data,
		MediaType: mediaType,
		Length:    int64(len(data)),
	}))
}

// ReadFile reads an image from a file path or http(s) URL
func (r *PlateReader) ReadFile(ctx context.Context, source string) (types.Response, error) {
	raw, err := r.processor.LoadRaw(source)
	if err != nil {
		return types.Response{}, err
	}
	return pipeline.Respond(r.Read(ctx, raw))
}

// SaveResult writes the response images next to each other in outputDir
// and returns the written paths. The plate crop is skipped when absent.
func (r *PlateReader) SaveResult(resp types.Response, source, outputDir string) ([]string, error) {
	if err := utils.EnsureDir(outputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	type output struct {
		suffix  string
		dataURL string
	}
	images := []output{{"_annotated", resp.OriginalImage}}
	if resp.PlateImage != nil {
		images = append(images, output{"_plate", *resp.PlateImage})
	}

	var written []string
	for _, item := range images {
		img, err := processing.DecodeDataURL(item.dataURL)
		if err != nil {
			return written, fmt.Errorf("failed to decode %s image: %w", strings.TrimPrefix(item.suffix, "_"), err)
		}

		path := utils.GenerateOutputFilename(baseName(source), outputDir, item.suffix, fileExt(r.processor.Format()))
		if err := r.processor.SaveImage(img, path, r.processor.Format(), r.processor.Quality()); err != nil {
			return written, fmt.Errorf("failed to save %s: %w", path, err)
		}
		written = append(written, path)
	}

	return written, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

// baseName keeps URL sources usable as file names
func baseName(source string) string {
	if i := strings.IndexAny(source, "?#"); i >= 0 {
		source = source[:i]
	}
	return filepath.Base(source)
}

func fileExt(format string) string {
	if format == processing.FormatJPEG {
		return "jpg"
	}
	return format
}
