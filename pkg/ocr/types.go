package ocr

import (
	"context"
	"image"
	"math"
	"strings"
)

// Point is a polygon vertex in the coordinates of the recognized bitmap.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RecognizedLine is one detection from a backend. A nil Confidence means the
// backend did not report one.
type RecognizedLine struct {
	Polygon    []Point  `json:"polygon"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Backend    string   `json:"backend"`
}

// Bounds returns the integer bounding rectangle of the polygon.
func (l RecognizedLine) Bounds() image.Rectangle {
	if len(l.Polygon) == 0 {
		return image.Rectangle{}
	}
	minX, minY := l.Polygon[0].X, l.Polygon[0].Y
	maxX, maxY := minX, minY
	for _, p := range l.Polygon[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}

// Result is one backend's canonical output for one bitmap, in the order
// the backend emitted it.
type Result struct {
	Backend string           `json:"backend"`
	Lines   []RecognizedLine `json:"lines"`
	// Skipped counts raw records that could not be turned into a line.
	Skipped int         `json:"skipped"`
	Image   image.Image `json:"-"`
}

// BackendFailure records a backend that produced no result.
type BackendFailure struct {
	Backend string `json:"backend"`
	Err     error  `json:"-"`
}

// Transcript is the merged text of one capture together with the results it
// was built from.
type Transcript struct {
	Text     string           `json:"text"`
	Results  []Result         `json:"results"`
	Failures []BackendFailure `json:"failures,omitempty"`
}

// Skipped sums the malformed records over all results.
func (t Transcript) Skipped() int {
	n := 0
	for _, r := range t.Results {
		n += r.Skipped
	}
	return n
}

// Lines returns the transcript text split into its lines.
func (t Transcript) Lines() []string {
	if t.Text == "" {
		return nil
	}
	return strings.Split(t.Text, "\n")
}

// Backend is a recognition engine. The raw output may be any shape the
// adapter understands.
type Backend interface {
	Name() string
	Recognize(ctx context.Context, img image.Image) (any, error)
}

// Func adapts a plain function into a Backend.
type Func struct {
	ID string
	Fn func(ctx context.Context, img image.Image) (any, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Recognize(ctx context.Context, img image.Image) (any, error) {
	return f.Fn(ctx, img)
}

func confidence(v float64) *float64 { return &v }
