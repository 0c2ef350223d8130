package ocr

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"
)

func writeFont(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Go-Regular.ttf")
	if err := os.WriteFile(path, goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRenderMissingFont(t *testing.T) {
	img := imaging.New(80, 40, color.White)
	lines := []RecognizedLine{line("test", nil, "x")}
	for _, path := range []string{"", filepath.Join(t.TempDir(), "nope.ttf")} {
		if _, err := Render(img, lines, path); !errors.Is(err, ocrerr.MissingFont) {
			t.Fatalf("%q: expected MissingFont, got %v", path, err)
		}
	}

	junk := filepath.Join(t.TempDir(), "junk.ttf")
	_ = os.WriteFile(junk, []byte("definitely not a font"), 0o644)
	if _, err := Render(img, lines, junk); !errors.Is(err, ocrerr.MissingFont) {
		t.Fatalf("junk font: expected MissingFont, got %v", err)
	}
}

func TestRenderRejectsFontWithoutCJK(t *testing.T) {
	img := imaging.New(80, 40, color.White)
	lines := []RecognizedLine{line("こんにちは", nil, "x")}
	if _, err := Render(img, lines, writeFont(t)); !errors.Is(err, ocrerr.MissingFont) {
		t.Fatalf("expected MissingFont for CJK text, got %v", err)
	}
}

func TestRenderDrawsOnCopy(t *testing.T) {
	img := imaging.New(120, 60, color.NRGBA{255, 255, 255, 255})
	l := line("test", confidence(0.9), "x")
	l.Polygon = []Point{{10, 30}, {80, 30}, {80, 50}, {10, 50}}
	out, err := Render(img, []RecognizedLine{l}, writeFont(t))
	if err != nil {
		t.Fatal(err)
	}
	if got := out.NRGBAAt(10, 30); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Fatalf("box corner = %v", got)
	}
	for i := 0; i < len(img.Pix); i++ {
		if img.Pix[i] != 255 {
			t.Fatalf("original image was modified")
		}
	}
	changedAboveBox := false
	for y := 0; y < 28; y++ {
		for x := 10; x < 60; x++ {
			if out.NRGBAAt(x, y) != (color.NRGBA{255, 255, 255, 255}) {
				changedAboveBox = true
			}
		}
	}
	if !changedAboveBox {
		t.Fatalf("label text was not drawn")
	}
}
