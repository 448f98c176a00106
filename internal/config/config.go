package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "PLATE_"

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Ingest     IngestConfig     `json:"ingest"`
	Detector   DetectorConfig   `json:"detector"`
	Recognizer RecognizerConfig `json:"recognizer"`
	Output     OutputConfig     `json:"output"`
}

// ServerConfig holds configuration for the HTTP service
type ServerConfig struct {
	Addr                  string `json:"addr"`
	MaxConcurrentRuns     int    `json:"max_concurrent_runs"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
	Debug                 bool   `json:"debug"`
}

// IngestConfig holds configuration for upload validation
type IngestConfig struct {
	MaxBytes int64 `json:"max_bytes"`
	// MaxPixels caps width*height as declared by the image header
	MaxPixels      int64    `json:"max_pixels"`
	MaxDimension   int      `json:"max_dimension"`
	SupportedTypes []string `json:"supported_types"`
}

// DetectorConfig holds configuration for plate detection
type DetectorConfig struct {
	// Backend is "haar" (pure Go) or "opencv" (needs the opencv build tag)
	Backend      string  `json:"backend"`
	CascadePath  string  `json:"cascade_path"`
	CascadeURL   string  `json:"cascade_url"`
	ScaleFactor  float64 `json:"scale_factor"`
	MinNeighbors int     `json:"min_neighbors"`
	MinWidth     int     `json:"min_width"`
	MinHeight    int     `json:"min_height"`
	MaxWidth     int     `json:"max_width"`
	MaxHeight    int     `json:"max_height"`
	// ContourFallback lets the opencv backend try edge contours when the
	// cascade finds nothing
	ContourFallback bool `json:"contour_fallback"`
}

// RecognizerConfig holds configuration for text recognition
type RecognizerConfig struct {
	// Backend is one of tesseract, ollama, llamacpp, rekognition
	Backend        string `json:"backend"`
	Language       string `json:"language"`
	TessdataPrefix string `json:"tessdata_prefix"`
	Whitelist      string `json:"whitelist"`
	// MinCropHeight upscales short crops before recognition
	MinCropHeight  int    `json:"min_crop_height"`
	URL            string `json:"url"`
	Model          string `json:"model"`
	AWSRegion      string `json:"aws_region"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// OutputConfig holds configuration for result images
type OutputConfig struct {
	Format    string `json:"format"`
	Quality   int    `json:"quality"`
	OutputDir string `json:"output_dir"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                  ":8000",
			MaxConcurrentRuns:     4,
			RequestTimeoutSeconds: 30,
		},
		Ingest: IngestConfig{
			MaxBytes:       10 * 1024 * 1024,
			MaxPixels:      178956970,
			MaxDimension:   1920,
			SupportedTypes: []string{"image/jpeg", "image/jpg", "image/png", "image/webp"},
		},
		Detector: DetectorConfig{
			Backend:         "haar",
			CascadePath:     "./models/haarcascade_russian_plate_number.xml",
			CascadeURL:      "https://raw.githubusercontent.com/opencv/opencv/master/data/haarcascades/haarcascade_russian_plate_number.xml",
			ScaleFactor:     1.1,
			MinNeighbors:    5,
			MinWidth:        25,
			MinHeight:       25,
			ContourFallback: true,
		},
		Recognizer: RecognizerConfig{
			Backend:        "tesseract",
			Language:       "eng",
			MinCropHeight:  48,
			URL:            "http://localhost:11434",
			AWSRegion:      "us-east-1",
			TimeoutSeconds: 60,
		},
		Output: OutputConfig{
			Format:    "jpeg",
			Quality:   95,
			OutputDir: "./output",
		},
	}
}

// Load reads an optional .env file, the JSON config at path when it exists,
// then applies PLATE_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		loaded, err := LoadFromFile(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON file. Fields missing from
// the file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from PLATE_* environment variables
func (c *Config) ApplyEnv() error {
	e := envReader{}

	e.setString("ADDR", &c.Server.Addr)
	e.setInt("MAX_CONCURRENT_RUNS", &c.Server.MaxConcurrentRuns)
	e.setInt("REQUEST_TIMEOUT_SECONDS", &c.Server.RequestTimeoutSeconds)
	e.setBool("DEBUG", &c.Server.Debug)

	e.setInt64("MAX_BYTES", &c.Ingest.MaxBytes)
	e.setInt64("MAX_PIXELS", &c.Ingest.MaxPixels)
	e.setInt("MAX_DIMENSION", &c.Ingest.MaxDimension)
	e.setList("SUPPORTED_TYPES", &c.Ingest.SupportedTypes)

	e.setString("DETECTOR_BACKEND", &c.Detector.Backend)
	e.setString("CASCADE_PATH", &c.Detector.CascadePath)
	e.setString("CASCADE_URL", &c.Detector.CascadeURL)
	e.setFloat("SCALE_FACTOR", &c.Detector.ScaleFactor)
	e.setInt("MIN_NEIGHBORS", &c.Detector.MinNeighbors)
	e.setInt("MIN_WIDTH", &c.Detector.MinWidth)
	e.setInt("MIN_HEIGHT", &c.Detector.MinHeight)
	e.setInt("MAX_WIDTH", &c.Detector.MaxWidth)
	e.setInt("MAX_HEIGHT", &c.Detector.MaxHeight)
	e.setBool("CONTOUR_FALLBACK", &c.Detector.ContourFallback)

	e.setString("RECOGNIZER_BACKEND", &c.Recognizer.Backend)
	e.setString("RECOGNIZER_LANGUAGE", &c.Recognizer.Language)
	e.setString("TESSDATA_PREFIX", &c.Recognizer.TessdataPrefix)
	e.setString("RECOGNIZER_WHITELIST", &c.Recognizer.Whitelist)
	e.setInt("MIN_CROP_HEIGHT", &c.Recognizer.MinCropHeight)
	e.setString("RECOGNIZER_URL", &c.Recognizer.URL)
	e.setString("RECOGNIZER_MODEL", &c.Recognizer.Model)
	e.setString("AWS_REGION", &c.Recognizer.AWSRegion)
	e.setInt("RECOGNIZER_TIMEOUT_SECONDS", &c.Recognizer.TimeoutSeconds)

	e.setString("OUTPUT_FORMAT", &c.Output.Format)
	e.setInt("OUTPUT_QUALITY", &c.Output.Quality)
	e.setString("OUTPUT_DIR", &c.Output.OutputDir)

	return e.err()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.MaxConcurrentRuns < 1 || c.Server.MaxConcurrentRuns > 256 {
		return fmt.Errorf("server.max_concurrent_runs must be between 1 and 256, got %d", c.Server.MaxConcurrentRuns)
	}

	if c.Server.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("server.request_timeout_seconds must be positive")
	}

	if c.Ingest.MaxBytes < 1 {
		return fmt.Errorf("ingest.max_bytes must be positive")
	}

	if c.Ingest.MaxPixels < 1 {
		return fmt.Errorf("ingest.max_pixels must be positive")
	}

	if c.Ingest.MaxDimension < 0 {
		return fmt.Errorf("ingest.max_dimension cannot be negative")
	}

	if len(c.Ingest.SupportedTypes) == 0 {
		return fmt.Errorf("ingest.supported_types cannot be empty")
	}

	switch c.Detector.Backend {
	case "haar", "opencv":
	default:
		return fmt.Errorf("detector.backend must be haar or opencv, got %q", c.Detector.Backend)
	}

	if c.Detector.CascadePath == "" {
		return fmt.Errorf("detector.cascade_path is required")
	}

	if c.Detector.ScaleFactor <= 1 {
		return fmt.Errorf("detector.scale_factor must be greater than 1")
	}

	if c.Detector.MinNeighbors < 0 {
		return fmt.Errorf("detector.min_neighbors cannot be negative")
	}

	if c.Detector.MinWidth < 0 || c.Detector.MinHeight < 0 || c.Detector.MaxWidth < 0 || c.Detector.MaxHeight < 0 {
		return fmt.Errorf("detector window sizes cannot be negative")
	}

	switch c.Recognizer.Backend {
	case "tesseract":
	case "ollama", "llamacpp":
		if c.Recognizer.URL == "" {
			return fmt.Errorf("recognizer.url is required for %s", c.Recognizer.Backend)
		}
		if c.Recognizer.Backend == "ollama" && c.Recognizer.Model == "" {
			return fmt.Errorf("recognizer.model is required for ollama")
		}
	case "rekognition":
		if c.Recognizer.AWSRegion == "" {
			return fmt.Errorf("recognizer.aws_region is required for rekognition")
		}
	default:
		return fmt.Errorf("recognizer.backend must be one of tesseract, ollama, llamacpp, rekognition, got %q", c.Recognizer.Backend)
	}

	if c.Recognizer.MinCropHeight < 0 {
		return fmt.Errorf("recognizer.min_crop_height cannot be negative")
	}

	switch strings.ToLower(c.Output.Format) {
	case "jpeg", "jpg", "png", "webp":
	default:
		return fmt.Errorf("output.format must be jpeg, png or webp, got %q", c.Output.Format)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	return nil
}

// RequestTimeout returns the per-request deadline
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// RecognizerTimeout returns the deadline for one recognizer call
func (c *Config) RecognizerTimeout() time.Duration {
	return time.Duration(c.Recognizer.TimeoutSeconds) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "plate-reader", "config.json")
}

// envReader collects parse errors so ApplyEnv reads linearly
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err))
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setInt64(key string, dst *int64) {
	if v, ok := e.lookup(key); ok {
		n, err := cast.ToInt64E(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setFloat(key string, dst *float64) {
	if v, ok := e.lookup(key); ok {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) setBool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := cast.ToBoolE(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) setList(key string, dst *[]string) {
	if v, ok := e.lookup(key); ok {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
	}
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}
