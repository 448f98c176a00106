package vision

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

type xmlStorage struct {
	XMLName xml.Name   `xml:"opencv_storage"`
	Cascade xmlCascade `xml:"cascade"`
}

type xmlCascade struct {
	TypeID      string       `xml:"type_id,attr"`
	StageType   string       `xml:"stageType"`
	FeatureType string       `xml:"featureType"`
	Height      int          `xml:"height"`
	Width       int          `xml:"width"`
	StageNum    int          `xml:"stageNum"`
	Stages      []xmlStage   `xml:"stages>_"`
	Features    []xmlFeature `xml:"features>_"`
}

type xmlStage struct {
	Threshold float64   `xml:"stageThreshold"`
	Weak      []xmlWeak `xml:"weakClassifiers>_"`
}

type xmlWeak struct {
	InternalNodes string `xml:"internalNodes"`
	LeafValues    string `xml:"leafValues"`
}

type xmlFeature struct {
	Rects  []string `xml:"rects>_"`
	Tilted int      `xml:"tilted"`
}

// LoadCascadeFile reads an OpenCV cascade XML file
func LoadCascadeFile(path string) (*Cascade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cascade file: %w", err)
	}
	defer f.Close()

	c, err := LoadCascade(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadCascade parses a cascade in OpenCV's opencv-cascade-classifier layout.
// Only boosted HAAR cascades with upright features are supported.
func LoadCascade(r io.Reader) (*Cascade, error) {
	var doc xmlStorage
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse cascade XML: %w", err)
	}
	xc := doc.Cascade

	if xc.TypeID != "" && xc.TypeID != "opencv-cascade-classifier" {
		return nil, fmt.Errorf("unsupported cascade layout %q", xc.TypeID)
	}
	if xc.StageType != "" && !strings.EqualFold(xc.StageType, "BOOST") {
		return nil, fmt.Errorf("unsupported stage type %q", xc.StageType)
	}
	if !strings.EqualFold(xc.FeatureType, "HAAR") {
		return nil, fmt.Errorf("unsupported feature type %q", xc.FeatureType)
	}
	if xc.StageNum > 0 && xc.StageNum != len(xc.Stages) {
		return nil, fmt.Errorf("cascade declares %d stages but contains %d", xc.StageNum, len(xc.Stages))
	}

	c := &Cascade{
		Width:    xc.Width,
		Height:   xc.Height,
		Stages:   make([]Stage, 0, len(xc.Stages)),
		Features: make([]Feature, 0, len(xc.Features)),
	}

	for fi, xf := range xc.Features {
		if xf.Tilted != 0 {
			return nil, fmt.Errorf("feature %d: tilted features are not supported", fi)
		}
		f := Feature{Rects: make([]Rect, 0, len(xf.Rects))}
		for _, rs := range xf.Rects {
			vals, err := parseFloats(rs)
			if err != nil || len(vals) != 5 {
				return nil, fmt.Errorf("feature %d: malformed rectangle %q", fi, strings.TrimSpace(rs))
			}
			f.Rects = append(f.Rects, Rect{
				X:      int(vals[0]),
				Y:      int(vals[1]),
				Width:  int(vals[2]),
				Height: int(vals[3]),
				Weight: vals[4],
			})
		}
		c.Features = append(c.Features, f)
	}

	for si, xs := range xc.Stages {
		s := Stage{Threshold: xs.Threshold, Weak: make([]WeakClassifier, 0, len(xs.Weak))}
		for wi, xw := range xs.Weak {
			wc, err := parseWeak(xw)
			if err != nil {
				return nil, fmt.Errorf("stage %d classifier %d: %w", si, wi, err)
			}
			s.Weak = append(s.Weak, wc)
		}
		c.Stages = append(c.Stages, s)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// parseWeak reads internal nodes as groups of (left, right, feature, threshold)
func parseWeak(xw xmlWeak) (WeakClassifier, error) {
	nodes, err := parseFloats(xw.InternalNodes)
	if err != nil {
		return WeakClassifier{}, fmt.Errorf("internal nodes: %w", err)
	}
	if len(nodes) == 0 || len(nodes)%4 != 0 {
		return WeakClassifier{}, fmt.Errorf("internal nodes: expected groups of 4 values, got %d", len(nodes))
	}
	leaves, err := parseFloats(xw.LeafValues)
	if err != nil {
		return WeakClassifier{}, fmt.Errorf("leaf values: %w", err)
	}

	wc := WeakClassifier{Nodes: make([]Node, 0, len(nodes)/4), Leaves: leaves}
	for i := 0; i < len(nodes); i += 4 {
		wc.Nodes = append(wc.Nodes, Node{
			Left:      int(nodes[i]),
			Right:     int(nodes[i+1]),
			Feature:   int(nodes[i+2]),
			Threshold: nodes[i+3],
		})
	}
	return wc, nil
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}
