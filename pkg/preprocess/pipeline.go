package preprocess

import (
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"
)

// Stage names used to tag errors and diagnostics.
const (
	StageLoad     = "load"
	StageResize   = "resize"
	StageGray     = "grayscale"
	StageContrast = "contrast"
	StageDeskew   = "deskew"
	StageBinarize = "binarize"
	StageClose    = "close"
)

// Diagnostic is a recoverable condition noticed during a run.
type Diagnostic struct {
	Kind    ocrerr.Kind `json:"kind"`
	Stage   string      `json:"stage"`
	Message string      `json:"message"`
}

// Result keeps every intermediate image of a run. Cleaned is the bitmap
// meant for recognition.
type Result struct {
	Resized      *image.NRGBA
	Gray         *image.Gray
	Enhanced     *image.Gray
	Deskewed     *image.NRGBA
	DeskewedGray *image.Gray
	Binary       *image.Gray
	Cleaned      *image.Gray

	Deskew      DeskewInfo
	Diagnostics []Diagnostic
}

// Pipeline runs the fixed stage sequence under one validated Config.
// It holds no mutable state and is safe for concurrent use.
type Pipeline struct {
	cfg Config
	log logrus.FieldLogger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger routes stage logging to l.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// New validates cfg before any stage can run.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, log: discardLogger()}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Config returns a copy of the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// RunFile decodes the image at path and runs the pipeline on it.
func (p *Pipeline) RunFile(path string) (*Result, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	return p.Run(img)
}

// Run normalizes img: resize, grayscale, contrast enhancement, deskew of the
// resized color image, grayscale of the deskewed image, adaptive threshold and
// closing. Any stage failure aborts the run and no partial result is returned.
func (p *Pipeline) Run(img image.Image) (*Result, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ocrerr.New(ocrerr.ImageLoadFailure, StageLoad, "image has no pixels")
	}
	cfg := p.cfg
	res := &Result{}

	res.Resized = Resize(img, cfg.ScaleFactor)
	p.log.WithFields(logrus.Fields{
		"stage": StageResize,
		"w":     res.Resized.Rect.Dx(),
		"h":     res.Resized.Rect.Dy(),
	}).Debug("resized")

	res.Gray = Grayscale(res.Resized)
	res.Enhanced = Enhance(res.Gray, cfg.ContrastTileGrid, cfg.ContrastClipLimit)
	p.log.WithField("stage", StageContrast).Debug("contrast enhanced")

	res.Deskewed, res.Deskew = Deskew(res.Resized, cfg.MaxDeskewAngleDegrees)
	p.recordDeskew(res)

	res.DeskewedGray = Grayscale(res.Deskewed)
	src := res.DeskewedGray
	if cfg.ThresholdEnhanced {
		src = Grayscale(Rotate(grayToNRGBA(res.Enhanced), res.Deskew.Angle))
	}

	bin, err := Binarize(src, cfg.AdaptiveThresholdBlockSize, cfg.AdaptiveThresholdConstant)
	if err != nil {
		if e, ok := err.(*ocrerr.Error); ok {
			e.Stage = StageBinarize
			return nil, e
		}
		return nil, ocrerr.Wrap(ocrerr.StageFailure, StageBinarize, err, "adaptive threshold")
	}
	res.Binary = bin
	res.Cleaned = Close(bin, cfg.MorphKernelSize, cfg.MorphIterations)
	p.log.WithField("stage", StageClose).Debug("closed")
	return res, nil
}

func (p *Pipeline) recordDeskew(res *Result) {
	d := res.Deskew
	fields := logrus.Fields{
		"stage":    StageDeskew,
		"angle":    d.Angle,
		"measured": d.Measured,
		"capped":   d.Capped,
	}
	switch {
	case d.Foreground == 0:
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Kind:    ocrerr.NoForegroundPixels,
			Stage:   StageDeskew,
			Message: "no foreground pixels, rotation skipped",
		})
		p.log.WithFields(fields).Warn("no foreground pixels")
	case d.Capped:
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Kind:    ocrerr.DeskewAngleCapped,
			Stage:   StageDeskew,
			Message: "deskew correction clamped to configured maximum",
		})
		p.log.WithFields(fields).Info("deskew angle capped")
	default:
		p.log.WithFields(fields).Debug("deskewed")
	}
}

// Load opens and decodes an image file, applying EXIF orientation.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, ocrerr.Wrap(ocrerr.ImageLoadFailure, StageLoad, err, "open %s", path).With("path", path)
	}
	if img.Bounds().Empty() {
		return nil, ocrerr.New(ocrerr.ImageLoadFailure, StageLoad, "%s has no pixels", path).With("path", path)
	}
	return img, nil
}

// Decode reads an image from r.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, ocrerr.Wrap(ocrerr.ImageLoadFailure, StageLoad, err, "decode image")
	}
	if img.Bounds().Empty() {
		return nil, ocrerr.New(ocrerr.ImageLoadFailure, StageLoad, "image has no pixels")
	}
	return img, nil
}

// SaveImage writes img to path; the format follows the file extension.
func SaveImage(path string, img image.Image) error {
	return imaging.Save(img, path)
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}
