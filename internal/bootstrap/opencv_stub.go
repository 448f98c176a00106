//go:build !opencv

package bootstrap

import (
	"errors"

	"github.com/menta2k/plate-reader/pkg/locator"
)

func newOpenCVDetector(string, bool) (locator.Detector, func(), error) {
	return nil, func() {}, errors.New("opencv detector requires a build with -tags opencv")
}
