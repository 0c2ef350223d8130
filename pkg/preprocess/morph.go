package preprocess

import "image"

// Close performs a morphological closing of the Foreground pixels of a
// binary image: iterations dilations followed by iterations erosions with a
// kernel x kernel square. Pixels outside the image never contribute.
func Close(src *image.Gray, kernel, iterations int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mask[y*w+x] = src.Pix[y*src.Stride+x] < 128
		}
	}
	// Even kernels are anchored at kernel/2; dilation uses the reflected
	// window so a closing never shifts strokes.
	lo, hi := -(kernel / 2), kernel-1-kernel/2
	if kernel > 1 {
		for i := 0; i < iterations; i++ {
			mask = morph(mask, w, h, -hi, -lo, true)
		}
		for i := 0; i < iterations; i++ {
			mask = morph(mask, w, h, lo, hi, false)
		}
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	for i, fg := range mask {
		if fg {
			out.Pix[i] = Foreground
		} else {
			out.Pix[i] = Background
		}
	}
	return out
}

// morph runs one separable square dilation (any) or erosion (all) over the
// offsets [lo, hi] on both axes.
func morph(mask []bool, w, h, lo, hi int, dilate bool) []bool {
	tmp := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tmp[y*w+x] = window(dilate, lo, hi, x, w, func(i int) bool { return mask[y*w+i] })
		}
	}
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = window(dilate, lo, hi, y, h, func(i int) bool { return tmp[i*w+x] })
		}
	}
	return out
}

func window(dilate bool, lo, hi, pos, n int, at func(int) bool) bool {
	for d := lo; d <= hi; d++ {
		i := pos + d
		if i < 0 || i >= n {
			continue
		}
		if at(i) == dilate {
			return dilate
		}
	}
	return !dilate
}
