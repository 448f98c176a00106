package client

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/plate-reader/pkg/types"
)

// PlatePrompt asks a vision model to read a cropped licence plate
const PlatePrompt = `You are a licence plate reader. The image is a tight crop of one vehicle licence plate.

Return JSON only:
{
  "fragments": [
    {"text": "string", "confidence": 0.0}
  ]
}

HARD RULES
- One fragment per contiguous group of characters, left to right.
- Copy characters exactly as printed. Do not add spaces, dashes or country codes.
- confidence is your certainty for that fragment in [0,1].
- If no characters are readable, return {"fragments": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInlineComment = regexp.MustCompile(`(?m)//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

type fragmentsPayload struct {
	Fragments []types.Fragment `json:"fragments"`
	// some models answer with a single string instead of fragments
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// ParseFragments parses a model answer to PlatePrompt. An answer with no JSON
// object at all is an error; an object without fragments is an empty read.
func ParseFragments(raw string) ([]types.Fragment, error) {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, fmt.Errorf("model returned non-JSON response: %.80q", raw)
	}

	var payload fragmentsPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	if len(payload.Fragments) == 0 && payload.Text != "" {
		conf := 0.0
		if payload.Confidence != nil {
			conf = *payload.Confidence
		}
		return []types.Fragment{{Text: payload.Text, Confidence: conf}}, nil
	}
	return payload.Fragments, nil
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from a JSON response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
