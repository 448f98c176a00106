package pipeline

import (
	"fmt"

	"github.com/menta2k/plate-reader/pkg/types"
)

// Response messages
const (
	MessageSuccess = "License plate successfully detected and extracted"
	MessageNoPlate = "No license plate detected in the image"
)

// Respond translates an outcome into the wire response. IngestionError comes
// back as an error for the caller to report at request level.
func Respond(o Outcome) (types.Response, error) {
	switch v := o.(type) {
	case Success:
		text := v.PlateText
		plate := v.PlateImage
		box := v.Box
		return types.Response{
			Success:       true,
			Message:       MessageSuccess,
			PlateText:     &text,
			Confidence:    v.Confidence,
			OriginalImage: v.OriginalImage,
			PlateImage:    &plate,
			BoundingBox:   &box,
		}, nil
	case NoPlateFound:
		return types.Response{
			Success:       false,
			Message:       MessageNoPlate,
			Confidence:    0,
			OriginalImage: v.OriginalImage,
		}, nil
	case IngestionError:
		return types.Response{}, v
	default:
		panic(fmt.Sprintf("pipeline: unknown outcome %T", o))
	}
}
