package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/plate-reader/pkg/ingest"
	"github.com/menta2k/plate-reader/pkg/types"
)

// Output formats for encoded result images
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatWebP = "webp"
)

// PlateLabel is drawn above the annotated plate box
const PlateLabel = "License Plate"

// maxDownload caps images fetched by LoadRawFromURL
const maxDownload = 32 << 20

var boxColor = color.NRGBA{0, 255, 0, 255}

// Processor renders and encodes result images
type Processor struct {
	format  string
	quality int
}

// NewProcessor creates a new image processor emitting JPEG data URLs
func NewProcessor() *Processor {
	return &Processor{format: FormatJPEG, quality: 95}
}

// NewProcessorWithFormat creates a processor for the given output format.
// Unknown formats fall back to JPEG.
func NewProcessorWithFormat(format string, quality int) *Processor {
	switch strings.ToLower(format) {
	case "png":
		format = FormatPNG
	case "webp":
		format = FormatWebP
	default:
		format = FormatJPEG
	}
	if quality <= 0 || quality > 100 {
		quality = 95
	}
	return &Processor{format: format, quality: quality}
}

// Format returns the output format name
func (p *Processor) Format() string {
	return p.format
}

// Quality returns the JPEG/WebP quality
func (p *Processor) Quality() int {
	return p.quality
}

// MediaType returns the media type of encoded images
func (p *Processor) MediaType() string {
	return "image/" + p.format
}

// Encode writes img in the processor's format
func (p *Processor) Encode(w io.Writer, img image.Image) error {
	switch p.format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{Quality: float32(p.quality)})
	default:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: p.quality})
	}
}

// EncodeDataURL encodes img as a data:image/...;base64 URL
func (p *Processor) EncodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", p.format, err)
	}
	return "data:" + p.MediaType() + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL decodes a base64 image data URL
func DecodeDataURL(dataURL string) (image.Image, error) {
	data, _, err := DataURLBytes(dataURL)
	if err != nil {
		return nil, err
	}
	return ingest.DecodeBytes(data)
}

// DataURLBytes returns the payload and media type of a base64 data URL
func DataURLBytes(dataURL string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URL")
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, "", fmt.Errorf("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	return data, mediaType, nil
}

// Annotate returns a copy of img with the plate box and label drawn on it
func (p *Processor) Annotate(img image.Image, box types.BoundingBox) *image.NRGBA {
	nrgba := imaging.Clone(img)

	drawBox(nrgba, box, boxColor, 3)
	drawLabel(nrgba, PlateLabel, box, boxColor)

	return nrgba
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Quality: float32(quality)})
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// LoadRaw reads an image from a file path or http(s) URL without decoding it
func (p *Processor) LoadRaw(source string) (types.RawImage, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadRawFromURL(source)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return types.RawImage{}, fmt.Errorf("failed to read %s: %w", source, err)
	}
	return types.RawImage{
		Data:      data,
		MediaType: http.DetectContentType(data),
		Length:    int64(len(data)),
	}, nil
}

// LoadRawFromURL downloads an image. The media type comes from the response
// header when it names an image and from content sniffing otherwise.
func (p *Processor) LoadRawFromURL(imageURL string) (types.RawImage, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return types.RawImage{}, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return types.RawImage{}, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return types.RawImage{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Plate-Reader/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return types.RawImage{}, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.RawImage{}, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload))
	if err != nil {
		return types.RawImage{}, fmt.Errorf("failed to read image data: %w", err)
	}

	mediaType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(data)
	}

	length := resp.ContentLength
	if length < int64(len(data)) {
		length = int64(len(data))
	}
	return types.RawImage{Data: data, MediaType: mediaType, Length: length}, nil
}

func drawBox(img *image.NRGBA, box types.BoundingBox, c color.NRGBA, stroke int) {
	x0, y0 := box.X, box.Y
	x1, y1 := box.X+box.Width, box.Y+box.Height
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

// drawLabel puts the text 10px above the box, or just below it when the box
// touches the top edge
func drawLabel(img *image.NRGBA, text string, box types.BoundingBox, c color.NRGBA) {
	face := basicfont.Face7x13
	baseline := box.Y - 10
	if baseline-face.Ascent < 0 {
		baseline = box.Y + box.Height + face.Ascent + 4
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
	}
	// second pass one pixel right for a heavier stroke
	for dx := 0; dx < 2; dx++ {
		d.Dot = fixed.P(box.X+dx, baseline)
		d.DrawString(text)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
