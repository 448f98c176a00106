// Package server exposes the plate pipeline over HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/menta2k/plate-reader/internal/config"
	"github.com/menta2k/plate-reader/internal/logging"
	"github.com/menta2k/plate-reader/internal/utils"
	perrors "github.com/menta2k/plate-reader/pkg/errors"
	"github.com/menta2k/plate-reader/pkg/pipeline"
	"github.com/menta2k/plate-reader/pkg/types"
)

const (
	ServiceName = "License Plate OCR API"
	Version     = "1.0.0"

	// multipartOverhead is allowed on top of the image limit for form
	// boundaries and part headers
	multipartOverhead = 1 << 20
)

//go:embed static
var staticFiles embed.FS

// Server handles uploads with bounded concurrency
type Server struct {
	pipeline *pipeline.Pipeline
	models   *pipeline.Models
	logger   *logging.Logger
	timeout  time.Duration
	// one token per running pipeline
	slots  chan struct{}
	engine *gin.Engine
}

// New creates a server around a configured pipeline and loaded models
func New(cfg config.ServerConfig, p *pipeline.Pipeline, models *pipeline.Models, logger *logging.Logger) *Server {
	runs := cfg.MaxConcurrentRuns
	if runs < 1 {
		runs = 1
	}

	s := &Server{
		pipeline: p,
		models:   models,
		logger:   logger,
		timeout:  time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		slots:    make(chan struct{}, runs),
	}
	s.engine = s.setupRouter(cfg.Debug)
	return s
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRouter(debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors())
	r.Use(requestID())
	r.Use(s.accessLog())

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	r.GET("/", s.handleIndex)
	r.StaticFS("/static", http.FS(static))
	r.GET("/health", s.handleHealth)
	r.GET("/api/info", s.handleInfo)
	r.POST("/upload", s.handleUpload)

	return r
}

func (s *Server) handleIndex(c *gin.Context) {
	page, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8",
			[]byte("<h1>License Plate OCR</h1><p>Frontend not found.</p>"))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": ServiceName})
}

func (s *Server) handleInfo(c *gin.Context) {
	cfg := s.pipeline.Ingestor().Config()
	c.JSON(http.StatusOK, gin.H{
		"name":    ServiceName,
		"version": Version,
		"features": []string{
			"License plate detection using a Haar cascade",
			"Text extraction using " + s.models.RecognizerName(),
			"Support for multiple image formats (JPEG, PNG, WebP)",
			"Automatic image preprocessing",
			"Confidence scoring",
		},
		"supported_formats": cfg.SupportedTypes,
		"max_file_size":     utils.HumanSize(cfg.MaxBytes),
	})
}

func (s *Server) handleUpload(c *gin.Context) {
	log := requestLogger(c, s.logger)

	limit := s.pipeline.Ingestor().Config().MaxBytes
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(c, log, perrors.NewTooLargeError(c.Request.ContentLength, limit))
			return
		}
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Detail: "No file uploaded"})
		return
	}

	raw, err := s.readUpload(header)
	if err != nil {
		s.writeError(c, log, err)
		return
	}
	log.Info("upload received", "filename", header.Filename, "type", raw.MediaType, "size", utils.HumanSize(raw.Length))

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		log.Warn("no pipeline slot available", "timeout", s.timeout)
		c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{Detail: "Server is busy, try again later"})
		return
	}

	done := make(chan pipeline.Outcome, 1)
	go func() {
		defer func() { <-s.slots }()
		done <- s.pipeline.Run(ctx, s.models, raw)
	}()

	var outcome pipeline.Outcome
	select {
	case outcome = <-done:
	case <-ctx.Done():
		log.Warn("pipeline run timed out", "timeout", s.timeout)
		c.JSON(http.StatusGatewayTimeout, types.ErrorResponse{Detail: "Processing timed out"})
		return
	}

	resp, err := pipeline.Respond(outcome)
	if err != nil {
		s.writeError(c, log, err)
		return
	}

	switch v := outcome.(type) {
	case pipeline.Success:
		log.Info("plate extracted", "text", v.PlateText, "confidence", fmt.Sprintf("%.2f", v.Confidence))
	case pipeline.NoPlateFound:
		log.Info("no plate found", "reason", v.Reason)
	}
	c.JSON(http.StatusOK, resp)
}

// readUpload checks the multipart header before reading the body
func (s *Server) readUpload(header *multipart.FileHeader) (types.RawImage, error) {
	ingestor := s.pipeline.Ingestor()
	cfg := ingestor.Config()
	mediaType := header.Header.Get("Content-Type")

	if cfg.MaxBytes > 0 && header.Size > cfg.MaxBytes {
		return types.RawImage{}, perrors.NewTooLargeError(header.Size, cfg.MaxBytes)
	}
	if !ingestor.IsTypeSupported(mediaType) {
		return types.RawImage{}, perrors.NewUnsupportedTypeError(mediaType, cfg.SupportedTypes)
	}

	f, err := header.Open()
	if err != nil {
		return types.RawImage{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if cfg.MaxBytes > 0 {
		r = io.LimitReader(f, cfg.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return types.RawImage{}, fmt.Errorf("failed to read upload: %w", err)
	}

	return types.RawImage{Data: data, MediaType: mediaType, Length: header.Size}, nil
}

// writeError answers 400 for caller mistakes and 500 for everything else
func (s *Server) writeError(c *gin.Context, log *logging.Logger, err error) {
	var pe *perrors.PipelineError
	if !errors.As(err, &pe) {
		log.Error("request failed", "error", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Detail: "Internal server error while processing image: " + err.Error(),
		})
		return
	}

	if pe.Kind() == perrors.KindValidation {
		log.Warn("rejected upload", "code", pe.Code, "error", pe.Message)
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Detail: pe.Message, Code: string(pe.Code)})
		return
	}

	log.Error("pipeline failed", "code", pe.Code, "error", err)
	c.JSON(http.StatusInternalServerError, types.ErrorResponse{
		Detail: "Internal server error while processing image: " + pe.Message,
		Code:   string(pe.Code),
	})
}
