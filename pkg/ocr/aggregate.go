package ocr

import (
	"os"
	"strings"
)

// Aggregator merges results into one transcript. The zero value
// concatenates every non-empty line.
type Aggregator struct {
	// MinConfidence drops lines whose reported confidence is below it.
	// Lines without a reported confidence are always kept.
	MinConfidence float64
}

// Aggregate merges results with the zero-value Aggregator.
func Aggregate(results ...Result) Transcript {
	return Aggregator{}.Aggregate(results...)
}

// Aggregate concatenates results in the order given, one text line per
// recognized line with non-empty trimmed text. Lines from different backends
// are never deduplicated against each other.
func (a Aggregator) Aggregate(results ...Result) Transcript {
	var lines []string
	for _, r := range results {
		for _, l := range r.Lines {
			text := strings.TrimSpace(l.Text)
			if text == "" {
				continue
			}
			if l.Confidence != nil && *l.Confidence < a.MinConfidence {
				continue
			}
			lines = append(lines, text)
		}
	}
	return Transcript{
		Text:    strings.Join(lines, "\n"),
		Results: append([]Result(nil), results...),
	}
}

// HasChanged reports whether next differs from prev once surrounding
// whitespace is ignored.
func HasChanged(prev, next Transcript) bool {
	return strings.TrimSpace(prev.Text) != strings.TrimSpace(next.Text)
}

// Advance decides whether next should be emitted by a continuous-capture loop
// that last emitted prev. It returns the transcript to remember and whether
// to emit. Empty transcripts are never emitted and do not replace prev.
func Advance(prev, next Transcript) (Transcript, bool) {
	if strings.TrimSpace(next.Text) == "" || !HasChanged(prev, next) {
		return prev, false
	}
	return next, true
}

// WriteTranscript stores the transcript text as UTF-8 at path.
func WriteTranscript(path string, t Transcript) error {
	return os.WriteFile(path, []byte(t.Text), 0o644)
}
