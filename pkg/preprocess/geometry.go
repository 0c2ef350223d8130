package preprocess

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// backgroundDelta is how far a gray level must sit from the dominant
// (background) level to count as foreground ink.
const backgroundDelta = 32

// DeskewInfo describes the rotation decided by Deskew.
type DeskewInfo struct {
	// Angle is the applied counter-clockwise rotation in degrees.
	Angle float64 `json:"angle"`
	// Measured is the correction before clamping.
	Measured float64 `json:"measured"`
	Capped   bool    `json:"capped"`
	// Foreground is the number of pixels the estimate was computed from.
	// Zero means the image was left unrotated.
	Foreground int `json:"foreground"`
}

// Resize scales img uniformly with bilinear interpolation to
// round(w*scale) x round(h*scale).
func Resize(img image.Image, scale float64) *image.NRGBA {
	b := img.Bounds()
	w := int(math.Round(float64(b.Dx()) * scale))
	h := int(math.Round(float64(b.Dy()) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	if w == b.Dx() && h == b.Dy() {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.Linear)
}

// Normalize resizes img and then deskews it.
func Normalize(img image.Image, scale, maxAngle float64) (*image.NRGBA, DeskewInfo) {
	return Deskew(Resize(img, scale), maxAngle)
}

// Deskew estimates the text-block skew of img and rotates it upright, never
// by more than maxAngle degrees in either direction. An image without
// foreground is returned unrotated.
func Deskew(img image.Image, maxAngle float64) (*image.NRGBA, DeskewInfo) {
	skew, n := EstimateSkew(img)
	info := DeskewInfo{Measured: skew, Angle: skew, Foreground: n}
	if n == 0 {
		return imaging.Clone(img), info
	}
	if math.Abs(skew) > maxAngle {
		info.Angle = math.Copysign(maxAngle, skew)
		info.Capped = true
	}
	return Rotate(img, info.Angle), info
}

// EstimateSkew returns the counter-clockwise correction in (-45, 45] that
// aligns the minimum-area rectangle around all foreground pixels with the
// image axes, along with the foreground pixel count.
func EstimateSkew(img image.Image) (float64, int) {
	g := Grayscale(img)
	bg := dominantLevel(g)
	w, h := g.Rect.Dx(), g.Rect.Dy()

	// The hull only depends on the outermost ink pixel of each row.
	var pts []point
	n := 0
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		first, last := -1, -1
		for x, v := range row {
			if absInt(int(v)-int(bg)) > backgroundDelta {
				if first < 0 {
					first = x
				}
				last = x
				n++
			}
		}
		if first >= 0 {
			pts = append(pts, point{float64(first), float64(y)})
			if last != first {
				pts = append(pts, point{float64(last), float64(y)})
			}
		}
	}
	if n == 0 {
		return 0, 0
	}
	edge := minAreaRectEdge(convexHull(pts))

	// Edge angle measured from the row axis, reduced to a rectangle angle in
	// [-90, 0) and then folded into (-45, 45].
	a := math.Mod(math.Atan2(edge.x, edge.y)*180/math.Pi, 90)
	if a < 0 {
		a += 90
	}
	if 90-a < 1e-9 {
		a = 0
	}
	rect := a - 90
	var skew float64
	if rect < -45 {
		skew = -(90 + rect)
	} else {
		skew = -rect
	}
	if skew == 0 {
		skew = 0 // drop negative zero
	}
	return skew, n
}

// Rotate turns img counter-clockwise by angle degrees around its center. The
// canvas grows to hold the whole rotated image and uncovered area repeats the
// nearest edge pixel.
func Rotate(img image.Image, angle float64) *image.NRGBA {
	src := imaging.Clone(img)
	if angle == 0 {
		return src
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	rad := angle * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	nw := int(math.Ceil(float64(w)*math.Abs(cos) + float64(h)*math.Abs(sin) - 1e-6))
	nh := int(math.Ceil(float64(w)*math.Abs(sin) + float64(h)*math.Abs(cos) - 1e-6))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	cx, cy := float64(w)/2, float64(h)/2
	ncx, ncy := float64(nw)/2, float64(nh)/2
	for y := 0; y < nh; y++ {
		dy := float64(y) + 0.5 - ncy
		for x := 0; x < nw; x++ {
			dx := float64(x) + 0.5 - ncx
			sx := cx + dx*cos - dy*sin - 0.5
			sy := cy + dx*sin + dy*cos - 0.5
			sampleBilinear(src, sx, sy, dst.Pix[y*dst.Stride+x*4:y*dst.Stride+x*4+4])
		}
	}
	return dst
}

// sampleBilinear writes the interpolated pixel at (sx, sy) into out,
// clamping coordinates to the image so borders replicate.
func sampleBilinear(src *image.NRGBA, sx, sy float64, out []uint8) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	sx = clampF(sx, 0, float64(w-1))
	sy = clampF(sy, 0, float64(h-1))
	x0, y0 := int(sx), int(sy)
	x1, y1 := minInt(x0+1, w-1), minInt(y0+1, h-1)
	fx, fy := sx-float64(x0), sy-float64(y0)
	p00 := src.Pix[y0*src.Stride+x0*4:]
	p10 := src.Pix[y0*src.Stride+x1*4:]
	p01 := src.Pix[y1*src.Stride+x0*4:]
	p11 := src.Pix[y1*src.Stride+x1*4:]
	for c := 0; c < 4; c++ {
		top := float64(p00[c])*(1-fx) + float64(p10[c])*fx
		bot := float64(p01[c])*(1-fx) + float64(p11[c])*fx
		out[c] = clampByte(top*(1-fy) + bot*fy)
	}
}

// dominantLevel returns the most frequent gray level, taken as background.
func dominantLevel(g *image.Gray) uint8 {
	var hist [256]int
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			hist[v]++
		}
	}
	best := 0
	for i := 1; i < 256; i++ {
		if hist[i] > hist[best] {
			best = i
		}
	}
	return uint8(best)
}

type point struct{ x, y float64 }

func cross(o, a, b point) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

// convexHull runs Andrew's monotone chain. pts must be sorted by y then x,
// which the row scan in EstimateSkew already guarantees.
func convexHull(pts []point) []point {
	if len(pts) < 3 {
		return pts
	}
	hull := make([]point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// minAreaRectEdge returns the direction of the hull edge that the
// minimum-area enclosing rectangle is flush with.
func minAreaRectEdge(hull []point) point {
	switch len(hull) {
	case 0, 1:
		return point{1, 0}
	case 2:
		return point{hull[1].x - hull[0].x, hull[1].y - hull[0].y}
	}
	best := point{1, 0}
	bestArea := math.Inf(1)
	for i := range hull {
		j := (i + 1) % len(hull)
		ex, ey := hull[j].x-hull[i].x, hull[j].y-hull[i].y
		l := math.Hypot(ex, ey)
		if l == 0 {
			continue
		}
		ux, uy := ex/l, ey/l
		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			u := p.x*ux + p.y*uy
			v := -p.x*uy + p.y*ux
			minU, maxU = math.Min(minU, u), math.Max(maxU, u)
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
		}
		if area := (maxU - minU) * (maxV - minV); area < bestArea-1e-9 {
			bestArea = area
			best = point{ex, ey}
		}
	}
	return best
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
