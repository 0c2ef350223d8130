package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PhanTTKhai/ADO-translate/pkg/config"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocr"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"
	"github.com/PhanTTKhai/ADO-translate/pkg/preprocess"
	"github.com/PhanTTKhai/ADO-translate/pkg/translate"
)

// Request describes one image to recognize.
type Request struct {
	Image  image.Image
	Source string
	// Profile names the preprocessing parameter set; empty selects the default.
	Profile string
	// Backends restricts recognition to these backend names; empty runs all.
	Backends      []string
	MinConfidence float64
	Translate     bool
	// Target overrides the service's translation target language.
	Target string
}

// Outcome is everything produced for one Request.
type Outcome struct {
	Source      string
	Profile     string
	Preprocess  *preprocess.Result
	Transcript  ocr.Transcript
	Translation string
	// TranslationErr is set when translation was requested but failed; the
	// transcript is still valid.
	TranslationErr error
	Took           time.Duration
}

// Service normalizes images, runs recognition backends and optionally
// translates the transcript. It is safe for concurrent use.
type Service struct {
	profiles   *config.Profile
	backends   []ocr.Backend
	translator translate.Provider
	target     string
	log        logrus.FieldLogger
}

// Option configures a Service.
type Option func(*Service)

// WithTranslator enables translation into target.
func WithTranslator(p translate.Provider, target string) Option {
	return func(s *Service) {
		s.translator = p
		s.target = target
	}
}

// WithLogger sets the service logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService checks every profile up front so a bad parameter set fails at
// startup rather than on the first frame.
func NewService(profiles *config.Profile, backends []ocr.Backend, opts ...Option) (*Service, error) {
	if profiles == nil {
		profiles = config.DefaultProfiles()
	}
	for _, name := range profiles.Names() {
		if err := profiles.Pipelines[name].Validate(); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
	}
	s := &Service{
		profiles: profiles,
		backends: backends,
		target:   "en",
		log:      logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// BackendNames lists the configured backends in invocation order.
func (s *Service) BackendNames() []string {
	names := make([]string, len(s.backends))
	for i, b := range s.backends {
		names[i] = b.Name()
	}
	return names
}

// Profiles returns the available preprocessing parameter set names.
func (s *Service) Profiles() []string { return s.profiles.Names() }

// CanTranslate reports whether a translator is configured.
func (s *Service) CanTranslate() bool { return s.translator != nil }

// ErrNoTranslator is returned by Translate when no provider is configured.
var ErrNoTranslator = errors.New("translation is not configured")

// Translate passes text to the configured provider. An empty target uses
// the service default.
func (s *Service) Translate(ctx context.Context, text, source, target string) (string, error) {
	if s.translator == nil {
		return "", ErrNoTranslator
	}
	if target == "" {
		target = s.target
	}
	if source == "" {
		source = translate.Auto
	}
	return translate.Text(ctx, s.translator, text, source, target)
}

// ProcessFile loads path and processes it.
func (s *Service) ProcessFile(ctx context.Context, path string, req Request) (*Outcome, error) {
	img, err := preprocess.Load(path)
	if err != nil {
		return nil, err
	}
	req.Image = img
	if req.Source == "" {
		req.Source = path
	}
	return s.Process(ctx, req)
}

// Process runs the pipeline and the selected backends. It fails when the
// image is unusable, the profile is unknown, or every backend failed.
func (s *Service) Process(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	log := s.log.WithField("source", req.Source)

	cfg, err := s.profiles.Pipeline(req.Profile)
	if err != nil {
		return nil, ocrerr.Wrap(ocrerr.InvalidConfig, "profile", err, "select profile")
	}
	profile := req.Profile
	if profile == "" {
		profile = config.DefaultProfile
	}
	p, err := preprocess.New(cfg, preprocess.WithLogger(log))
	if err != nil {
		return nil, err
	}
	backends, err := s.selectBackends(req.Backends)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := p.Run(req.Image)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := &ocr.Recognizer{
		Backends:   backends,
		Aggregator: ocr.Aggregator{MinConfidence: req.MinConfidence},
		Log:        log,
	}
	tr, err := r.Recognize(ctx, res.Cleaned)
	out := &Outcome{
		Source:     req.Source,
		Profile:    profile,
		Preprocess: res,
		Transcript: tr,
	}
	if err != nil {
		return out, err
	}

	if req.Translate && s.translator != nil && strings.TrimSpace(tr.Text) != "" {
		target := req.Target
		if target == "" {
			target = s.target
		}
		out.Translation, out.TranslationErr = translate.Text(ctx, s.translator, tr.Text, translate.Auto, target)
		if out.TranslationErr != nil {
			log.WithError(out.TranslationErr).Warn("translation failed")
		}
	}
	out.Took = time.Since(start)
	log.WithFields(logrus.Fields{
		"profile":  profile,
		"lines":    len(tr.Lines()),
		"failures": len(tr.Failures),
		"took":     out.Took.String(),
	}).Info("capture processed")
	return out, nil
}

func (s *Service) selectBackends(names []string) ([]ocr.Backend, error) {
	if len(names) == 0 {
		if len(s.backends) == 0 {
			return nil, ocrerr.New(ocrerr.BackendUnavailable, "recognize", "no recognition backend configured")
		}
		return s.backends, nil
	}
	var out []ocr.Backend
	for _, n := range names {
		found := false
		for _, b := range s.backends {
			if strings.EqualFold(b.Name(), strings.TrimSpace(n)) {
				out = append(out, b)
				found = true
				break
			}
		}
		if !found {
			return nil, ocrerr.New(ocrerr.InvalidConfig, "recognize", "unknown backend %q", n).
				With("available", s.BackendNames())
		}
	}
	return out, nil
}
