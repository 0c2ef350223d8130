// Package tesseract is the local Tesseract recognition backend. It lives
// apart from package ocr because gosseract needs cgo with the tesseract and
// leptonica headers.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/PhanTTKhai/ADO-translate/pkg/ocr"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"
)

// Name is the backend name reported in results.
const Name = "tesseract"

// Backend recognizes text lines with a local Tesseract install.
type Backend struct {
	// Languages defaults to Japanese.
	Languages []string
	// PageSegMode is passed through when non-zero.
	PageSegMode    gosseract.PageSegMode
	TessdataPrefix string
	Variables      map[string]string

	clientFactory func() *gosseract.Client
}

// New returns a backend for the given languages.
func New(languages ...string) *Backend {
	if len(languages) == 0 {
		languages = []string{"jpn"}
	}
	return &Backend{Languages: languages, clientFactory: gosseract.NewClient}
}

func (t *Backend) Name() string { return Name }

// Recognize returns one []ocr.RecognizedLine entry per text line with its
// bounding box and Tesseract's confidence scaled to [0, 1].
func (t *Backend) Recognize(ctx context.Context, img image.Image) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	factory := t.clientFactory
	if factory == nil {
		factory = gosseract.NewClient
	}
	c := factory()
	defer c.Close()

	if t.TessdataPrefix != "" {
		c.SetTessdataPrefix(t.TessdataPrefix)
	}
	if len(t.Languages) > 0 {
		if err := c.SetLanguage(t.Languages...); err != nil {
			return nil, ocrerr.Wrap(ocrerr.BackendUnavailable, Name, err, "set languages %v", t.Languages)
		}
	}
	if t.PageSegMode != 0 {
		if err := c.SetPageSegMode(t.PageSegMode); err != nil {
			return nil, fmt.Errorf("set page seg mode: %w", err)
		}
	}
	for k, v := range t.Variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return nil, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, ocrerr.Wrap(ocrerr.BackendUnavailable, Name, err, "recognize")
	}
	lines := make([]ocr.RecognizedLine, 0, len(boxes))
	for _, b := range boxes {
		r := b.Box
		x0, y0, x1, y1 := float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)
		// Tesseract reports 0-100.
		conf := b.Confidence / 100
		lines = append(lines, ocr.RecognizedLine{
			Polygon:    []ocr.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}},
			Text:       normalizeText(b.Word),
			Confidence: &conf,
		})
	}
	return lines, nil
}

// normalizeText collapses whitespace runs inside one line.
func normalizeText(t string) string {
	return strings.Join(strings.Fields(t), " ")
}
