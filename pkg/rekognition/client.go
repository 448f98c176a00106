package rekognition

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rtypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/disintegration/imaging"

	"github.com/menta2k/plate-reader/pkg/types"
)

// DetectTextAPI is the part of the Rekognition client the recognizer uses
type DetectTextAPI interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// Client reads plates with AWS Rekognition DetectText
type Client struct {
	api DetectTextAPI
}

// NewClient wraps an existing Rekognition client
func NewClient(detectText DetectTextAPI) *Client {
	return &Client{api: detectText}
}

// NewFromRegion loads the default AWS credential chain for region
func NewFromRegion(ctx context.Context, region string) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewClient(rekognition.NewFromConfig(cfg)), nil
}

// Name implements client.Recognizer
func (c *Client) Name() string {
	return "rekognition"
}

// Recognize implements client.Recognizer. Only LINE detections are used so
// words are not counted twice.
func (c *Client) Recognize(ctx context.Context, img image.Image) ([]types.Fragment, error) {
	if c.api == nil {
		return nil, fmt.Errorf("rekognition client not initialized")
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}

	result, err := c.api.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &rtypes.Image{Bytes: buf.Bytes()},
	})
	if err != nil {
		return nil, fmt.Errorf("rekognition DetectText failed: %w", err)
	}

	return lineFragments(result.TextDetections), nil
}

func lineFragments(detections []rtypes.TextDetection) []types.Fragment {
	var fragments []types.Fragment
	for _, d := range detections {
		if d.Type != rtypes.TextTypesLine || d.DetectedText == nil {
			continue
		}
		fragments = append(fragments, types.Fragment{
			Text:       aws.ToString(d.DetectedText),
			Confidence: float64(aws.ToFloat32(d.Confidence)) / 100,
		})
	}
	return fragments
}
