// Package tesseract reads plate text with the local Tesseract engine.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/menta2k/plate-reader/pkg/types"
)

// Config holds Tesseract configuration
type Config struct {
	Language       string
	TessdataPrefix string
	// Whitelist restricts the characters Tesseract may emit; empty allows all
	Whitelist string
	// Engines is the number of loaded engines; concurrent calls beyond it wait
	Engines int
}

// DefaultConfig returns the English model with no character restriction
func DefaultConfig() Config {
	return Config{Language: "eng", Engines: 1}
}

// engine is the part of gosseract.Client the pool drives
type engine interface {
	SetImageFromBytes(data []byte) error
	GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error)
	Close() error
}

// Client keeps a fixed set of initialized engines. A gosseract client is
// not safe for concurrent use, so each call borrows one exclusively.
type Client struct {
	config  Config
	idle    chan engine
	engines []engine
	once    sync.Once
}

// NewClient loads Engines engines and runs each over a blank page, so a
// missing language model or tessdata directory fails here rather than on
// the first request.
func NewClient(config Config) (*Client, error) {
	if config.Language == "" {
		config.Language = "eng"
	}
	return newClient(config, func() (engine, error) {
		return newEngine(config)
	})
}

func newClient(config Config, start func() (engine, error)) (*Client, error) {
	if config.Engines < 1 {
		config.Engines = 1
	}

	blank, err := blankPage()
	if err != nil {
		return nil, err
	}

	c := &Client{config: config, idle: make(chan engine, config.Engines)}
	for i := 0; i < config.Engines; i++ {
		e, err := start()
		if err != nil {
			c.Close()
			return nil, err
		}
		c.engines = append(c.engines, e)

		if err := warmUp(e, blank); err != nil {
			c.Close()
			return nil, fmt.Errorf("tesseract failed to initialize: %w", err)
		}
		c.idle <- e
	}

	return c, nil
}

// Name implements client.Recognizer
func (c *Client) Name() string {
	return "tesseract"
}

// Recognize implements client.Recognizer. Word confidences come back on a
// 0-100 scale and are divided down to [0,1].
func (c *Client) Recognize(ctx context.Context, img image.Image) ([]types.Fragment, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Grayscale(img), imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}

	var e engine
	select {
	case e = <-c.idle:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for tesseract engine: %w", ctx.Err())
	}
	defer func() { c.idle <- e }()

	if err := e.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := e.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return toFragments(boxes), nil
}

// Close releases every engine. Calls to Recognize must have returned.
func (c *Client) Close() error {
	var firstErr error
	c.once.Do(func() {
		for _, e := range c.engines {
			if err := e.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

func newEngine(config Config) (*gosseract.Client, error) {
	e := gosseract.NewClient()

	if config.TessdataPrefix != "" {
		if err := e.SetTessdataPrefix(config.TessdataPrefix); err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := e.SetLanguage(config.Language); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := e.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if config.Whitelist != "" {
		if err := e.SetWhitelist(config.Whitelist); err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}

	return e, nil
}

// warmUp forces gosseract to load the model, which it otherwise defers to
// the first recognition
func warmUp(e engine, page []byte) error {
	if err := e.SetImageFromBytes(page); err != nil {
		return err
	}
	_, err := e.GetBoundingBoxes(gosseract.RIL_WORD)
	return err
}

func blankPage() ([]byte, error) {
	var buf bytes.Buffer
	page := imaging.New(64, 32, color.White)
	if err := imaging.Encode(&buf, page, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode blank page: %w", err)
	}
	return buf.Bytes(), nil
}

// toFragments keeps iterator order and drops empty words
func toFragments(boxes []gosseract.BoundingBox) []types.Fragment {
	fragments := make([]types.Fragment, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		fragments = append(fragments, types.Fragment{
			Text:       word,
			Confidence: b.Confidence / 100,
		})
	}
	return fragments
}
