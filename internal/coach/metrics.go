package coach

import (
	"strings"
	"time"
	"unicode"
)

// Metrics are the locally computed speech statistics for one practice run.
type Metrics struct {
	WordCount      int            `json:"wordCount"`
	WordsPerMinute float64        `json:"wordsPerMinute"`
	FillerCount    int            `json:"fillerCount"`
	FillerWords    map[string]int `json:"fillerWords"`
}

// fillerWords are counted case-insensitively after stripping punctuation.
var fillerWords = map[string]bool{
	"um":        true,
	"uh":        true,
	"er":        true,
	"like":      true,
	"actually":  true,
	"basically": true,
	"literally": true,
}

// AnalyzeTranscript computes pace and filler-word statistics for a
// transcript spoken over the given duration.
func AnalyzeTranscript(transcript string, duration time.Duration) Metrics {
	m := Metrics{FillerWords: make(map[string]int)}

	words := strings.Fields(transcript)
	m.WordCount = len(words)

	for _, w := range words {
		normalized := strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		}))
		if fillerWords[normalized] {
			m.FillerWords[normalized]++
			m.FillerCount++
		}
	}

	if minutes := duration.Minutes(); minutes > 0 {
		m.WordsPerMinute = float64(m.WordCount) / minutes
	}

	return m
}
