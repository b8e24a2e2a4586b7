package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Outline is the drafted deck structure the model is asked to produce.
type Outline struct {
	Title  string       `json:"title"`
	Slides []SlideDraft `json:"slides"`
}

type SlideDraft struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
	Notes   string   `json:"notes"`
}

var ErrEmptyOutline = errors.New("model returned an empty outline")

// ParseOutline decodes a model response into an Outline. Models sometimes
// wrap JSON in a markdown code fence even when asked not to, so fences are
// stripped before decoding.
func ParseOutline(raw string) (*Outline, error) {
	cleaned := stripCodeFence(raw)

	var outline Outline
	if err := json.Unmarshal([]byte(cleaned), &outline); err != nil {
		return nil, fmt.Errorf("decode outline: %w", err)
	}

	if outline.Title == "" || len(outline.Slides) == 0 {
		return nil, ErrEmptyOutline
	}
	for i, s := range outline.Slides {
		if s.Title == "" {
			return nil, fmt.Errorf("slide %d has no title", i+1)
		}
	}

	return &outline, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
