//go:build opencv

package bootstrap

import (
	"github.com/menta2k/plate-reader/pkg/locator"
	"github.com/menta2k/plate-reader/pkg/vision"
)

func newOpenCVDetector(path string, contourFallback bool) (locator.Detector, func(), error) {
	det, err := vision.NewOpenCVDetector(path, contourFallback)
	if err != nil {
		return nil, func() {}, err
	}
	return det, func() { _ = det.Close() }, nil
}
