package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	platereader "github.com/menta2k/plate-reader"
	"github.com/menta2k/plate-reader/internal/bootstrap"
	"github.com/menta2k/plate-reader/internal/config"
	"github.com/menta2k/plate-reader/internal/logging"
	"github.com/menta2k/plate-reader/internal/utils"
	"github.com/menta2k/plate-reader/pkg/types"
)

func main() {
	var in, outDir, configPath string
	var backend, model, url, format string
	var quality int
	var save, full, debug bool

	flag.StringVar(&in, "in", "", "input image path, directory or URL (jpg/png/webp)")
	flag.StringVar(&outDir, "out", "", "output directory for annotated and plate images (default from config)")
	flag.StringVar(&configPath, "config", config.GetConfigPath(), "path to JSON config file")

	flag.StringVar(&backend, "backend", "", "recognizer backend: tesseract|ollama|llamacpp|rekognition")
	flag.StringVar(&model, "model", "", "model name for ollama/llamacpp")
	flag.StringVar(&url, "url", "", "recognizer server URL for ollama/llamacpp")

	flag.StringVar(&format, "format", "", "result image format: jpeg|png|webp")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP quality for result images (1-100)")

	flag.BoolVar(&save, "save", false, "write annotated and plate images to the output directory")
	flag.BoolVar(&full, "full", false, "print image data URLs in the JSON output")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")

	flag.Parse()
	if in == "" {
		log.Fatalf("usage: %s -in image.jpg|dir|URL [-backend tesseract|ollama|llamacpp|rekognition] [-model name] [-url server_url] [-save] [-out outdir] [-format jpeg|png|webp]", filepath.Base(os.Args[0]))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, backend, model, url, format, quality, outDir)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.NewLoggerWithWriter("plate-reader", os.Stderr)
	logger.SetDebug(debug)

	ctx := context.Background()
	models, cleanup, err := bootstrap.BuildModels(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to load models: %v", err)
	}
	defer cleanup()

	reader := platereader.NewWithConfig(models, bootstrap.PipelineConfig(cfg))

	inputs, err := collectInputs(in)
	if err != nil {
		log.Fatal(err)
	}

	failed := 0
	for _, input := range inputs {
		resp, err := reader.ReadFile(ctx, input)
		if err != nil {
			logger.Error("read failed", "input", input, "error", err)
			failed++
			continue
		}

		if save {
			written, err := reader.SaveResult(resp, input, cfg.Output.OutputDir)
			if err != nil {
				logger.Error("save failed", "input", input, "error", err)
			}
			for _, path := range written {
				logger.Info("wrote", "path", path)
			}
		}

		if err := printResult(input, resp, full); err != nil {
			log.Fatal(err)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config, backend, model, url, format string, quality int, outDir string) {
	if backend != "" {
		cfg.Recognizer.Backend = backend
	}
	if model != "" {
		cfg.Recognizer.Model = model
	}
	if url != "" {
		cfg.Recognizer.URL = url
	}
	if format != "" {
		cfg.Output.Format = strings.ToLower(format)
	}
	if quality > 0 {
		cfg.Output.Quality = quality
	}
	if outDir != "" {
		cfg.Output.OutputDir = outDir
	}
}

// collectInputs expands a directory into its image files
func collectInputs(in string) ([]string, error) {
	if strings.HasPrefix(in, "http://") || strings.HasPrefix(in, "https://") {
		return []string{in}, nil
	}
	if utils.DirExists(in) {
		files, err := utils.ListImageFiles(in)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", in, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no images found in %s", in)
		}
		return files, nil
	}
	if !utils.FileExists(in) {
		return nil, fmt.Errorf("input %s does not exist", in)
	}
	return []string{in}, nil
}

func printResult(input string, resp types.Response, full bool) error {
	if !full {
		resp.OriginalImage = ""
		resp.PlateImage = nil
	}
	js, err := json.MarshalIndent(struct {
		Input string `json:"input"`
		types.Response
	}{input, resp}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(js))
	return nil
}
