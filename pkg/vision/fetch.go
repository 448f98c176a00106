package vision

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DefaultCascadeURL points at OpenCV's licence plate cascade
const DefaultCascadeURL = "https://raw.githubusercontent.com/opencv/opencv/master/data/haarcascades/haarcascade_russian_plate_number.xml"

// EnsureCascadeFile downloads the cascade to path when it does not exist yet.
// An empty url disables the download and a missing file is an error.
func EnsureCascadeFile(ctx context.Context, path, url string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat cascade file: %w", err)
	}
	if url == "" {
		return fmt.Errorf("cascade file %s not found and no download URL configured", path)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Plate-Reader/1.0")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download cascade: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download cascade: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create cascade directory: %w", err)
		}
	}

	// write to a temp file first so a partial download never looks valid
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cascade-*.xml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cascade: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cascade: %w", err)
	}

	// reject HTML error pages and truncated files before installing
	if _, err := LoadCascadeFile(tmp.Name()); err != nil {
		return fmt.Errorf("downloaded cascade is invalid: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}
