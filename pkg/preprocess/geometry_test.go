package preprocess

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/disintegration/imaging"
)

// barImage draws a solid black bar centered on a white canvas.
func barImage(w, h, bw, bh int) *image.NRGBA {
	img := imaging.New(w, h, color.NRGBA{255, 255, 255, 255})
	x0, y0 := (w-bw)/2, (h-bh)/2
	for y := y0; y < y0+bh; y++ {
		for x := x0; x < x0+bw; x++ {
			img.Set(x, y, color.NRGBA{0, 0, 0, 255})
		}
	}
	return img
}

func TestResizeDimensions(t *testing.T) {
	cases := []struct {
		w, h  int
		scale float64
		ew    int
		eh    int
	}{
		{200, 80, 2.0, 400, 160},
		{3, 3, 1.5, 5, 5},
		{10, 7, 1.0, 10, 7},
	}
	for _, c := range cases {
		out := Resize(imaging.New(c.w, c.h, color.NRGBA{10, 20, 30, 255}), c.scale)
		if out.Bounds().Dx() != c.ew || out.Bounds().Dy() != c.eh {
			t.Fatalf("%dx%d*%v: got %v want %dx%d", c.w, c.h, c.scale, out.Bounds(), c.ew, c.eh)
		}
	}
}

func TestNormalizeBlankImage(t *testing.T) {
	img := imaging.New(120, 50, color.NRGBA{200, 200, 200, 255})
	out, info := Normalize(img, 2.0, 15)
	if out.Bounds().Dx() != 240 || out.Bounds().Dy() != 100 {
		t.Fatalf("unexpected size %v", out.Bounds())
	}
	if info.Foreground != 0 || info.Angle != 0 || info.Capped {
		t.Fatalf("blank image should not rotate, got %+v", info)
	}
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 200 {
			t.Fatalf("pixel %d changed: %d", i/4, out.Pix[i])
		}
	}
}

func TestEstimateSkewAxisAligned(t *testing.T) {
	skew, n := EstimateSkew(barImage(300, 120, 180, 30))
	if n != 180*30 {
		t.Fatalf("foreground = %d", n)
	}
	if skew != 0 {
		t.Fatalf("axis aligned bar measured %v", skew)
	}
}

func TestDeskewCorrectsSmallSkew(t *testing.T) {
	skewed := Rotate(barImage(400, 300, 200, 40), 7)
	out, info := Deskew(skewed, 15)
	if info.Capped {
		t.Fatalf("7 degrees should not be capped: %+v", info)
	}
	if math.Abs(info.Angle+7) > 1 {
		t.Fatalf("applied %v, want about -7", info.Angle)
	}
	// A second pass over the corrected image finds almost nothing to fix.
	again, _ := EstimateSkew(out)
	if math.Abs(again) >= 1 {
		t.Fatalf("residual skew %v", again)
	}
}

func TestDeskewClampsLargeSkew(t *testing.T) {
	skewed := Rotate(barImage(400, 300, 200, 40), 40)
	out, info := Deskew(skewed, 15)
	if !info.Capped {
		t.Fatalf("expected capped correction, got %+v", info)
	}
	if info.Angle != -15 {
		t.Fatalf("applied %v, want -15", info.Angle)
	}
	if math.Abs(info.Measured+40) > 1.5 {
		t.Fatalf("measured %v, want about -40", info.Measured)
	}
	residual, _ := EstimateSkew(out)
	if math.Abs(residual+25) > 1.5 {
		t.Fatalf("residual %v, want about -25 (never fully corrected)", residual)
	}
}

func TestRotateReplicatesBorder(t *testing.T) {
	img := imaging.New(60, 40, color.NRGBA{90, 90, 90, 255})
	out := Rotate(img, 30)
	if out.Bounds().Dx() <= 60 || out.Bounds().Dy() <= 40 {
		t.Fatalf("canvas should grow, got %v", out.Bounds())
	}
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 90 || out.Pix[i+3] != 255 {
			t.Fatalf("pixel %d = %v, border must repeat the edge", i/4, out.Pix[i:i+4])
		}
	}
}

func TestRotateZeroIsCopy(t *testing.T) {
	img := barImage(50, 30, 20, 10)
	out := Rotate(img, 0)
	if out == img {
		t.Fatalf("expected a new image")
	}
	if string(out.Pix) != string(img.Pix) {
		t.Fatalf("zero rotation changed pixels")
	}
}
