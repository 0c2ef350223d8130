package preprocess

import (
	"image"

	"github.com/disintegration/imaging"
)

// Grayscale converts img to an 8-bit gray image using imaging's luma weights.
func Grayscale(img image.Image) *image.Gray {
	n := imaging.Grayscale(img)
	out := image.NewGray(n.Rect)
	for i := range out.Pix {
		out.Pix[i] = n.Pix[i*4]
	}
	return out
}

// grayToNRGBA expands a gray image so it can go through Rotate.
func grayToNRGBA(g *image.Gray) *image.NRGBA {
	out := image.NewNRGBA(g.Rect)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := g.Pix[y*g.Stride+x]
			i := y*out.Stride + x*4
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = v, v, v, 255
		}
	}
	return out
}
