package ocr

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"
)

// Adapter turns raw backend output into a Result. It understands:
//
//   - PaddleOCR lists: [polygon, [text, confidence]], optionally grouped per page
//   - EasyOCR lists: [polygon, text, confidence]
//   - objects with a polygon key (polygon, points, box, bbox, quad) and a text key
//   - PaddleX style objects with parallel rec_texts / rec_scores / rec_polys arrays
//   - wrappers such as {"results": [...]} and JSON documents as []byte
//   - already canonical []RecognizedLine
//
// A record that does not fit is skipped and counted; the adapter never fails.
type Adapter struct {
	log logrus.FieldLogger
}

// NewAdapter returns an Adapter logging skipped records to log.
func NewAdapter(log logrus.FieldLogger) *Adapter {
	if log == nil {
		log = discardLogger()
	}
	return &Adapter{log: log}
}

var defaultAdapter = NewAdapter(nil)

// Adapt converts raw with a non-logging Adapter.
func Adapt(raw any, backend string) Result {
	return defaultAdapter.Adapt(raw, backend)
}

// Adapt converts one backend's raw output. Emission order is preserved.
func (a *Adapter) Adapt(raw any, backend string) Result {
	res := Result{Backend: backend, Lines: []RecognizedLine{}}
	st := &adaptState{a: a, res: &res}
	st.collect(raw)
	if res.Skipped > 0 {
		a.log.WithFields(logrus.Fields{
			"backend": backend,
			"kind":    ocrerr.MalformedRecognitionLine,
			"skipped": res.Skipped,
			"lines":   len(res.Lines),
		}).Debug("skipped malformed recognition lines")
	}
	return res
}

var (
	wrapperKeys    = []string{"results", "result", "lines", "data", "text_lines", "predictions"}
	polygonKeys    = []string{"polygon", "points", "box", "quad", "text_region", "bbox"}
	textKeys       = []string{"text", "transcription", "label", "word"}
	confidenceKeys = []string{"confidence", "score", "conf", "rec_score", "probability"}
)

type adaptState struct {
	a     *Adapter
	res   *Result
	index int
}

func (s *adaptState) skip(reason string) {
	s.res.Skipped++
	s.a.log.WithFields(logrus.Fields{
		"backend": s.res.Backend,
		"index":   s.index,
		"reason":  reason,
	}).Debug("malformed recognition line")
	s.index++
}

func (s *adaptState) accept(poly []Point, text string, conf *float64) {
	s.res.Lines = append(s.res.Lines, RecognizedLine{
		Polygon:    poly,
		Text:       text,
		Confidence: conf,
		Backend:    s.res.Backend,
	})
	s.index++
}

func (s *adaptState) collect(v any) {
	switch t := v.(type) {
	case nil:
		// Backends report an empty page as null.
	case []byte:
		s.collectJSON(t)
	case json.RawMessage:
		s.collectJSON(t)
	case []RecognizedLine:
		for _, l := range t {
			if len(l.Polygon) < 3 {
				s.skip("polygon has fewer than 3 points")
				continue
			}
			s.accept(append([]Point(nil), l.Polygon...), l.Text, normalizeConfidencePtr(l.Confidence))
		}
	case Result:
		s.collect(t.Lines)
	case map[string]any:
		s.collectObject(t)
	case []any:
		if looksLikeLine(t) {
			s.line(t)
			return
		}
		if isContainer(t) {
			for _, e := range t {
				s.collect(e)
			}
			return
		}
		s.skip("unrecognized record shape")
	default:
		s.skip("unrecognized record type")
	}
}

func (s *adaptState) collectJSON(data []byte) {
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		s.skip("invalid JSON: " + err.Error())
		return
	}
	if _, err := dec.Token(); err != io.EOF {
		s.skip("trailing data after JSON document")
		return
	}
	s.collect(v)
}

func (s *adaptState) collectObject(m map[string]any) {
	if texts, ok := m["rec_texts"].([]any); ok {
		s.parallel(m, texts)
		return
	}
	if _, hasText := firstKey(m, textKeys); !hasText {
		for _, k := range wrapperKeys {
			if inner, ok := m[k]; ok {
				s.collect(inner)
				return
			}
		}
	}
	polyV, ok := firstKey(m, polygonKeys)
	if !ok {
		if r, found := rectFromFields(m); found {
			polyV, ok = r, true
		}
	}
	if !ok {
		s.skip("missing polygon")
		return
	}
	poly, ok := parsePolygon(polyV)
	if !ok {
		s.skip("invalid polygon")
		return
	}
	textV, ok := firstKey(m, textKeys)
	text, isString := textV.(string)
	if !ok || !isString {
		s.skip("missing text")
		return
	}
	var conf *float64
	if cv, ok := firstKey(m, confidenceKeys); ok {
		conf = parseConfidence(cv)
	}
	s.accept(poly, text, conf)
}

// parallel handles objects that hold texts, scores and polygons in
// same-length arrays.
func (s *adaptState) parallel(m map[string]any, texts []any) {
	var polys, scores []any
	for _, k := range []string{"rec_polys", "dt_polys", "rec_boxes"} {
		if p, ok := m[k].([]any); ok {
			polys = p
			break
		}
	}
	scores, _ = m["rec_scores"].([]any)
	for i, tv := range texts {
		text, ok := tv.(string)
		if !ok {
			s.skip("missing text")
			continue
		}
		if i >= len(polys) {
			s.skip("missing polygon")
			continue
		}
		poly, ok := parsePolygon(polys[i])
		if !ok {
			s.skip("invalid polygon")
			continue
		}
		var conf *float64
		if i < len(scores) {
			conf = parseConfidence(scores[i])
		}
		s.accept(poly, text, conf)
	}
}

// line handles the list forms [polygon, [text, conf]], [polygon, [text]],
// [polygon, text, conf] and [polygon, {"text": ...}].
func (s *adaptState) line(t []any) {
	poly, ok := parsePolygon(t[0])
	if !ok {
		s.skip("invalid polygon")
		return
	}
	if len(t) < 2 {
		s.skip("missing text")
		return
	}
	var (
		text string
		conf *float64
	)
	switch rec := t[1].(type) {
	case []any:
		if len(rec) == 0 {
			s.skip("missing text")
			return
		}
		str, ok := rec[0].(string)
		if !ok {
			s.skip("missing text")
			return
		}
		text = str
		if len(rec) > 1 {
			conf = parseConfidence(rec[1])
		}
	case string:
		text = rec
		if len(t) > 2 {
			conf = parseConfidence(t[2])
		}
	case map[string]any:
		tv, ok := firstKey(rec, textKeys)
		str, isString := tv.(string)
		if !ok || !isString {
			s.skip("missing text")
			return
		}
		text = str
		if cv, ok := firstKey(rec, confidenceKeys); ok {
			conf = parseConfidence(cv)
		}
	default:
		s.skip("missing text")
		return
	}
	s.accept(poly, text, conf)
}

// looksLikeLine reports whether t is a single line rather than a list of
// lines. Either its second element is a text record, or its first element
// is itself a polygon made of numbers or [x, y] points.
func looksLikeLine(t []any) bool {
	if len(t) == 0 {
		return false
	}
	first, ok := t[0].([]any)
	if !ok || len(first) == 0 {
		return false
	}
	if len(t) >= 2 {
		switch rec := t[1].(type) {
		case string:
			return true
		case []any:
			if len(rec) > 0 {
				if _, ok := rec[0].(string); ok {
					return true
				}
			}
		case map[string]any:
			if _, ok := firstKey(rec, textKeys); ok {
				return isPolygonShaped(first)
			}
		}
	}
	return isPolygonShaped(first)
}

// isPolygonShaped reports whether every element of t is a number, or every
// element is a point. Nothing else about the polygon is checked here.
func isPolygonShaped(t []any) bool {
	if _, ok := toFloat(t[0]); ok {
		for _, e := range t {
			if _, ok := toFloat(e); !ok {
				return false
			}
		}
		return len(t) >= 4
	}
	for _, e := range t {
		if !isPoint(e) {
			return false
		}
	}
	return true
}

// isContainer reports whether every element could hold lines.
func isContainer(t []any) bool {
	for _, e := range t {
		switch e.(type) {
		case nil, []any, map[string]any:
		default:
			return false
		}
	}
	return true
}

func isPoint(v any) bool {
	_, ok := parsePoint(v)
	return ok
}

func parsePoint(v any) (Point, bool) {
	switch p := v.(type) {
	case []any:
		if len(p) != 2 {
			return Point{}, false
		}
		x, okx := toFloat(p[0])
		y, oky := toFloat(p[1])
		return Point{x, y}, okx && oky
	case map[string]any:
		x, okx := toFloat(p["x"])
		y, oky := toFloat(p["y"])
		return Point{x, y}, okx && oky
	case Point:
		return p, true
	}
	return Point{}, false
}

// parsePolygon accepts a list of points, a flat coordinate list, or a
// four-number [x0, y0, x1, y1] rectangle. At least 3 points are required.
func parsePolygon(v any) ([]Point, bool) {
	switch t := v.(type) {
	case []Point:
		return append([]Point(nil), t...), len(t) >= 3
	case []any:
		if len(t) == 0 {
			return nil, false
		}
		if _, ok := toFloat(t[0]); ok {
			nums := make([]float64, len(t))
			for i, e := range t {
				f, ok := toFloat(e)
				if !ok {
					return nil, false
				}
				nums[i] = f
			}
			if len(nums) == 4 {
				return rectPolygon(nums[0], nums[1], nums[2], nums[3]), true
			}
			if len(nums)%2 != 0 || len(nums) < 6 {
				return nil, false
			}
			poly := make([]Point, 0, len(nums)/2)
			for i := 0; i < len(nums); i += 2 {
				poly = append(poly, Point{nums[i], nums[i+1]})
			}
			return poly, true
		}
		poly := make([]Point, 0, len(t))
		for _, e := range t {
			p, ok := parsePoint(e)
			if !ok {
				return nil, false
			}
			poly = append(poly, p)
		}
		return poly, len(poly) >= 3
	case map[string]any:
		return rectFromFields(t)
	}
	return nil, false
}

// rectFromFields reads left/top/width/height style boxes.
func rectFromFields(m map[string]any) ([]Point, bool) {
	l, ok1 := toFloat(firstOf(m, "left", "x"))
	t, ok2 := toFloat(firstOf(m, "top", "y"))
	w, ok3 := toFloat(m["width"])
	h, ok4 := toFloat(m["height"])
	if !(ok1 && ok2 && ok3 && ok4) {
		return nil, false
	}
	return rectPolygon(l, t, l+w, t+h), true
}

func rectPolygon(x0, y0, x1, y1 float64) []Point {
	return []Point{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

// parseConfidence maps a reported score into [0, 1]. Scores a little above
// 1 are clamped, larger ones up to 100 are percentages, anything else out
// of range is unknown.
func parseConfidence(v any) *float64 {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return normalizeConfidence(f)
}

const percentFloor = 1.5

func normalizeConfidence(f float64) *float64 {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0) || f < 0:
		return nil
	case f <= 1:
		return confidence(f)
	case f <= percentFloor:
		return confidence(1)
	case f <= 100:
		return confidence(f / 100)
	}
	return nil
}

func normalizeConfidencePtr(c *float64) *float64 {
	if c == nil {
		return nil
	}
	return normalizeConfidence(*c)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func firstKey(m map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func firstOf(m map[string]any, keys ...string) any {
	v, _ := firstKey(m, keys)
	return v
}
