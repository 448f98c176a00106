package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/menta2k/plate-reader/internal/config"
	"github.com/menta2k/plate-reader/internal/logging"
	"github.com/menta2k/plate-reader/pkg/client"
	"github.com/menta2k/plate-reader/pkg/pipeline"
	"github.com/menta2k/plate-reader/pkg/types"
	"github.com/menta2k/plate-reader/pkg/vision"
)

type fakeDetector struct {
	regions []vision.Region
}

func (f *fakeDetector) DetectMultiScale(*image.Gray, vision.ScanOptions) ([]vision.Region, error) {
	return f.regions, nil
}

func plateRecognizer(text string, confidence float64) client.Recognizer {
	return client.RecognizerFunc(func(context.Context, image.Image) ([]types.Fragment, error) {
		return []types.Fragment{{Text: text, Confidence: confidence}}, nil
	})
}

func testServer(t *testing.T, rec client.Recognizer, mutate func(*config.ServerConfig, *pipeline.Config)) *Server {
	t.Helper()
	serverCfg := config.Default().Server
	pipeCfg := pipeline.DefaultConfig()
	if mutate != nil {
		mutate(&serverCfg, &pipeCfg)
	}

	models := pipeline.NewModels(&fakeDetector{
		regions: []vision.Region{{X: 40, Y: 30, Width: 80, Height: 24, Score: 6}},
	}, rec)
	logger := logging.NewLoggerWithWriter("test", io.Discard)
	return New(serverCfg, pipeline.NewWithConfig(pipeCfg), models, logger)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, data []byte, contentType string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="car.png"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var body types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid error body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestUploadSuccess(t *testing.T) {
	s := testServer(t, plateRecognizer("AB 123", 0.9), nil)

	rec := serve(s, uploadRequest(t, testPNG(t), "image/png"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("Expected a request ID header")
	}

	var resp types.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.PlateText == nil || *resp.PlateText != "AB 123" {
		t.Fatalf("Unexpected response %+v", resp)
	}
	if resp.Confidence != 0.9 {
		t.Errorf("Expected confidence 0.9, got %f", resp.Confidence)
	}
	want := types.BoundingBox{X: 40, Y: 30, Width: 80, Height: 24}
	if resp.BoundingBox == nil || *resp.BoundingBox != want {
		t.Errorf("Expected box %+v, got %+v", want, resp.BoundingBox)
	}
	if !strings.HasPrefix(resp.OriginalImage, "data:image/jpeg;base64,") {
		t.Errorf("Unexpected original image prefix %.30q", resp.OriginalImage)
	}
	if resp.PlateImage == nil || !strings.HasPrefix(*resp.PlateImage, "data:image/jpeg;base64,") {
		t.Error("Expected plate image data URL")
	}
}

func TestUploadNoText(t *testing.T) {
	s := testServer(t, plateRecognizer("  ", 0.5), nil)

	rec := serve(s, uploadRequest(t, testPNG(t), "image/png"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if raw["success"] != false || raw["message"] != pipeline.MessageNoPlate {
		t.Errorf("Unexpected no-plate body %v", raw)
	}
	if v, ok := raw["plate_text"]; !ok || v != nil {
		t.Error("Expected explicit null plate_text")
	}
	if v, ok := raw["plate_image"]; !ok || v != nil {
		t.Error("Expected explicit null plate_image")
	}
	if _, ok := raw["bounding_box"]; ok {
		t.Error("No-plate body must not carry a bounding box")
	}
}

func TestUploadValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		contentType string
		maxBytes    int64
		code        string
	}{
		{"unsupported", []byte("hello"), "text/plain", 0, "UNSUPPORTED_TYPE"},
		{"too large", nil, "image/png", 64, "TOO_LARGE"},
		{"corrupt", []byte("not an image at all"), "image/png", 0, "CORRUPT_IMAGE"},
	}

	for _, tt := range tests {
		s := testServer(t, plateRecognizer("X", 1), func(_ *config.ServerConfig, p *pipeline.Config) {
			if tt.maxBytes > 0 {
				p.Ingest.MaxBytes = tt.maxBytes
			}
		})
		data := tt.data
		if data == nil {
			data = testPNG(t)
		}

		rec := serve(s, uploadRequest(t, data, tt.contentType))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tt.name, rec.Code)
			continue
		}
		body := decodeError(t, rec)
		if body.Code != tt.code || body.Detail == "" {
			t.Errorf("%s: unexpected body %+v", tt.name, body)
		}
	}
}

// countingReader records how much of the request body the server pulled
type countingReader struct {
	r    io.Reader
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	return n, err
}

func TestUploadOversizedBodyNotBuffered(t *testing.T) {
	s := testServer(t, plateRecognizer("X", 1), func(_ *config.ServerConfig, p *pipeline.Config) {
		p.Ingest.MaxBytes = 64
	})

	payload := bytes.Repeat([]byte{0xff}, 4*multipartOverhead)
	req := uploadRequest(t, payload, "image/png")
	body := &countingReader{r: req.Body}
	req.Body = io.NopCloser(body)

	rec := serve(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeError(t, rec); got.Code != "TOO_LARGE" {
		t.Errorf("Expected TOO_LARGE, got %+v", got)
	}
	if limit := 64 + multipartOverhead + 1; body.read > limit {
		t.Errorf("Read %d body bytes, limit is %d", body.read, limit)
	}
}

func TestUploadMissingFile(t *testing.T) {
	s := testServer(t, plateRecognizer("X", 1), nil)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
	rec := serve(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Detail != "No file uploaded" {
		t.Errorf("Unexpected detail %q", body.Detail)
	}
}

func TestUploadRecognizerFailure(t *testing.T) {
	failing := client.RecognizerFunc(func(context.Context, image.Image) ([]types.Fragment, error) {
		return nil, errors.New("engine crashed")
	})
	s := testServer(t, failing, nil)

	rec := serve(s, uploadRequest(t, testPNG(t), "image/png"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "RECOGNITION_FAILED" {
		t.Errorf("Expected RECOGNITION_FAILED, got %+v", body)
	}
}

func TestUploadTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	blocking := client.RecognizerFunc(func(context.Context, image.Image) ([]types.Fragment, error) {
		<-release
		return nil, nil
	})
	s := testServer(t, blocking, func(c *config.ServerConfig, _ *pipeline.Config) {
		c.RequestTimeoutSeconds = 1
	})

	rec := serve(s, uploadRequest(t, testPNG(t), "image/png"))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("Expected 504, got %d", rec.Code)
	}
}

func TestUploadBusy(t *testing.T) {
	s := testServer(t, plateRecognizer("X", 1), func(c *config.ServerConfig, _ *pipeline.Config) {
		c.MaxConcurrentRuns = 1
		c.RequestTimeoutSeconds = 1
	})
	s.slots <- struct{}{}

	rec := serve(s, uploadRequest(t, testPNG(t), "image/png"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}

	<-s.slots
	rec = serve(s, uploadRequest(t, testPNG(t), "image/png"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 once the slot is free, got %d", rec.Code)
	}
}

func TestHealthAndInfo(t *testing.T) {
	s := testServer(t, plateRecognizer("X", 1), nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Errorf("Unexpected health response %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/info", nil))
	var info struct {
		Name             string   `json:"name"`
		SupportedFormats []string `json:"supported_formats"`
		MaxFileSize      string   `json:"max_file_size"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Name != ServiceName || info.MaxFileSize != "10MB" || len(info.SupportedFormats) == 0 {
		t.Errorf("Unexpected info %+v", info)
	}
}

func TestIndexAndStatic(t *testing.T) {
	s := testServer(t, plateRecognizer("X", 1), nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "License Plate OCR") {
		t.Errorf("Unexpected index response %d", rec.Code)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected static asset, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := testServer(t, plateRecognizer("X", 1), nil)

	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set(requestIDHeader, "abc")
	rec := serve(s, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}
