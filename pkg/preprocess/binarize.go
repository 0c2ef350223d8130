package preprocess

import (
	"image"
	"math"
)

// Binary images use 0 for foreground (ink) and 255 for background.
const (
	Foreground uint8 = 0
	Background uint8 = 255
)

// Binarize thresholds src against a Gaussian-weighted local mean over a
// blockSize x blockSize window minus constant. Pixels strictly below that
// threshold become Foreground. blockSize must be odd and at least 3.
func Binarize(src *image.Gray, blockSize int, constant float64) (*image.Gray, error) {
	if err := validateBlockSize(blockSize); err != nil {
		return nil, err
	}
	mean := gaussianBlur(src, blockSize)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := Background
			if float64(src.Pix[y*src.Stride+x]) < mean[y*w+x]-constant {
				v = Foreground
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out, nil
}

// gaussianKernel builds a normalized 1-D kernel of odd size, with sigma
// derived from the size the way OpenCV does when sigma is left at zero.
func gaussianKernel(size int) []float64 {
	sigma := 0.3*((float64(size)-1)*0.5-1) + 0.8
	k := make([]float64, size)
	half := size / 2
	sum := 0.0
	for i := range k {
		d := float64(i - half)
		k[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// gaussianBlur returns the separable Gaussian-weighted mean of every pixel
// with edge pixels replicated.
func gaussianBlur(src *image.Gray, size int) []float64 {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	k := gaussianKernel(size)
	half := size / 2
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x++ {
			s := 0.0
			for i, kv := range k {
				xx := clampInt(x+i-half, 0, w-1)
				s += kv * float64(row[xx])
			}
			tmp[y*w+x] = s
		}
	}
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0.0
			for i, kv := range k {
				yy := clampInt(y+i-half, 0, h-1)
				s += kv * tmp[yy*w+x]
			}
			out[y*w+x] = s
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
