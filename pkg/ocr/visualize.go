package ocr

import (
	"image"
	"image/color"
	"math"
	"os"
	"unicode"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"
)

const stageVisualize = "visualize"

// Visualizer draws recognized lines over a copy of the captured image.
type Visualizer struct {
	FontSize  float64
	BoxColor  color.Color
	TextColor color.Color

	font *opentype.Font
}

// NewVisualizer loads the font at fontPath (.ttf, .otf or the first face of
// a .ttc). There is no fallback font.
func NewVisualizer(fontPath string) (*Visualizer, error) {
	f, err := LoadFont(fontPath)
	if err != nil {
		return nil, err
	}
	return &Visualizer{
		FontSize:  18,
		BoxColor:  color.NRGBA{255, 0, 0, 255},
		TextColor: color.NRGBA{0, 0, 255, 255},
		font:      f,
	}, nil
}

// LoadFont parses a font file or the first font of a collection.
func LoadFont(path string) (*opentype.Font, error) {
	if path == "" {
		return nil, ocrerr.New(ocrerr.MissingFont, stageVisualize, "no font path given")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ocrerr.Wrap(ocrerr.MissingFont, stageVisualize, err, "read font %s", path)
	}
	if f, err := opentype.Parse(data); err == nil {
		return f, nil
	}
	coll, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, ocrerr.Wrap(ocrerr.MissingFont, stageVisualize, err, "parse font %s", path)
	}
	f, err := coll.Font(0)
	if err != nil {
		return nil, ocrerr.Wrap(ocrerr.MissingFont, stageVisualize, err, "font collection %s", path)
	}
	return f, nil
}

// Render loads the font and draws lines over img in one call.
func Render(img image.Image, lines []RecognizedLine, fontPath string) (*image.NRGBA, error) {
	v, err := NewVisualizer(fontPath)
	if err != nil {
		return nil, err
	}
	return v.Render(img, lines)
}

// Render outlines every polygon and writes its text just above it. It fails
// with MissingFont when the font lacks a glyph for any rune to be drawn.
func (v *Visualizer) Render(img image.Image, lines []RecognizedLine) (*image.NRGBA, error) {
	if err := v.checkCoverage(lines); err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(v.font, &opentype.FaceOptions{
		Size:    v.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, ocrerr.Wrap(ocrerr.MissingFont, stageVisualize, err, "create face")
	}
	defer face.Close()

	canvas := imaging.Clone(img)
	for _, l := range lines {
		n := len(l.Polygon)
		for i := 0; i < n; i++ {
			drawLine(canvas, l.Polygon[i], l.Polygon[(i+1)%n], v.BoxColor)
		}
		if l.Text == "" {
			continue
		}
		r := l.Bounds()
		y := r.Min.Y - 2
		if y-face.Metrics().Ascent.Ceil() < 0 {
			y = r.Max.Y + face.Metrics().Ascent.Ceil()
		}
		d := &font.Drawer{
			Dst:  canvas,
			Src:  image.NewUniform(v.TextColor),
			Face: face,
			Dot:  fixed.P(r.Min.X, y),
		}
		d.DrawString(l.Text)
	}
	return canvas, nil
}

func (v *Visualizer) checkCoverage(lines []RecognizedLine) error {
	var buf sfnt.Buffer
	for _, l := range lines {
		for _, r := range l.Text {
			if unicode.IsSpace(r) || unicode.IsControl(r) {
				continue
			}
			idx, err := v.font.GlyphIndex(&buf, r)
			if err != nil || idx == 0 {
				return ocrerr.New(ocrerr.MissingFont, stageVisualize, "font has no glyph for %q", r).
					With("rune", string(r))
			}
		}
	}
	return nil
}

// drawLine plots a 2px wide segment between a and b.
func drawLine(img *image.NRGBA, a, b Point, c color.Color) {
	dx, dy := b.X-a.X, b.Y-a.Y
	steps := int(math.Ceil(math.Max(math.Abs(dx), math.Abs(dy))))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(math.Round(a.X + dx*t))
		y := int(math.Round(a.Y + dy*t))
		img.Set(x, y, c)
		img.Set(x+1, y, c)
		img.Set(x, y+1, c)
	}
}
