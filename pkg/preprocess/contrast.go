package preprocess

import (
	"image"
	"math"
)

// Enhance applies contrast-limited adaptive histogram equalization. The image
// is split into a grid x grid set of tiles, each tile's histogram is clipped
// at clipLimit times its mean bin height with the excess spread evenly, and
// every pixel blends the mappings of its four nearest tiles.
func Enhance(src *image.Gray, grid int, clipLimit float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	gx, gy := minInt(maxInt(grid, 1), w), minInt(maxInt(grid, 1), h)

	luts := make([][256]uint8, gx*gy)
	for ty := 0; ty < gy; ty++ {
		y0, y1 := ty*h/gy, (ty+1)*h/gy
		for tx := 0; tx < gx; tx++ {
			x0, x1 := tx*w/gx, (tx+1)*w/gx
			var hist [256]int
			for y := y0; y < y1; y++ {
				for _, v := range src.Pix[y*src.Stride+x0 : y*src.Stride+x1] {
					hist[v]++
				}
			}
			luts[ty*gx+tx] = tileMapping(hist, (x1-x0)*(y1-y0), clipLimit)
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	tw, th := float64(w)/float64(gx), float64(h)/float64(gy)
	for y := 0; y < h; y++ {
		ty0, ty1, ay := tileNeighbors(float64(y), th, gy)
		for x := 0; x < w; x++ {
			tx0, tx1, ax := tileNeighbors(float64(x), tw, gx)
			v := src.Pix[y*src.Stride+x]
			top := float64(luts[ty0*gx+tx0][v])*(1-ax) + float64(luts[ty0*gx+tx1][v])*ax
			bot := float64(luts[ty1*gx+tx0][v])*(1-ax) + float64(luts[ty1*gx+tx1][v])*ax
			out.Pix[y*out.Stride+x] = clampByte(top*(1-ay) + bot*ay)
		}
	}
	return out
}

func tileMapping(hist [256]int, area int, clipLimit float64) [256]uint8 {
	limit := maxInt(int(clipLimit*float64(area)/256), 1)
	excess := 0
	for i, c := range hist {
		if c > limit {
			excess += c - limit
			hist[i] = limit
		}
	}
	add, residual := excess/256, excess%256
	for i := range hist {
		hist[i] += add
	}
	if residual > 0 {
		step := maxInt(256/residual, 1)
		for i := 0; i < 256 && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}
	var lut [256]uint8
	scale := 255 / float64(area)
	sum := 0
	for i, c := range hist {
		sum += c
		lut[i] = clampByte(math.Round(float64(sum) * scale))
	}
	return lut
}

// tileNeighbors finds the two tile indices around pos and the blend weight
// of the second one.
func tileNeighbors(pos, size float64, n int) (int, int, float64) {
	f := (pos+0.5)/size - 0.5
	i0 := int(math.Floor(f))
	a := f - float64(i0)
	if i0 < 0 {
		return 0, 0, 0
	}
	if i0 >= n-1 {
		return n - 1, n - 1, 0
	}
	return i0, i0 + 1, a
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
