package types

// RawImage is an uploaded image before any validation
type RawImage struct {
	Data      []byte
	MediaType string
	Length    int64
}

// Size returns the larger of the declared length and the buffer length
func (r RawImage) Size() int64 {
	n := int64(len(r.Data))
	if r.Length > n {
		return r.Length
	}
	return n
}

// BoundingBox is a pixel rectangle in frame coordinates
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the box area in pixels
func (b BoundingBox) Area() int {
	return b.Width * b.Height
}

// Valid reports whether the box is non-empty and lies inside a frame of the given size
func (b BoundingBox) Valid(frameWidth, frameHeight int) bool {
	return b.X >= 0 && b.Y >= 0 && b.Width > 0 && b.Height > 0 &&
		b.X+b.Width <= frameWidth && b.Y+b.Height <= frameHeight
}

// Fragment is one contiguous text span emitted by a recognizer
type Fragment struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// RecognitionResult holds fragments in the order the recognizer emitted them
type RecognitionResult struct {
	Fragments []Fragment `json:"fragments"`
}

// Empty reports whether there is nothing to read
func (r *RecognitionResult) Empty() bool {
	return r == nil || len(r.Fragments) == 0
}

// Text concatenates fragment texts without a separator
func (r *RecognitionResult) Text() string {
	if r.Empty() {
		return ""
	}
	n := 0
	for _, f := range r.Fragments {
		n += len(f.Text)
	}
	buf := make([]byte, 0, n)
	for _, f := range r.Fragments {
		buf = append(buf, f.Text...)
	}
	return string(buf)
}

// Confidence is the arithmetic mean of fragment confidences
func (r *RecognitionResult) Confidence() float64 {
	if r.Empty() {
		return 0
	}
	var sum float64
	for _, f := range r.Fragments {
		sum += f.Confidence
	}
	return sum / float64(len(r.Fragments))
}

// Response is the JSON body returned for a completed run
type Response struct {
	Success       bool         `json:"success"`
	Message       string       `json:"message"`
	PlateText     *string      `json:"plate_text"`
	Confidence    float64      `json:"confidence"`
	OriginalImage string       `json:"original_image,omitempty"`
	PlateImage    *string      `json:"plate_image"`
	BoundingBox   *BoundingBox `json:"bounding_box,omitempty"`
}

// ErrorResponse is the JSON body for request-level failures
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}
