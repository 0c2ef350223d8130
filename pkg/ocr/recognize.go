package ocr

import (
	"context"
	"image"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"
)

// Recognizer runs a set of backends over one normalized bitmap and merges
// their output.
type Recognizer struct {
	Backends   []Backend
	Aggregator Aggregator
	// Timeout bounds each backend call when positive.
	Timeout time.Duration
	Log     logrus.FieldLogger
}

// RecognizeAll runs backends with default settings.
func RecognizeAll(ctx context.Context, img image.Image, backends ...Backend) (Transcript, error) {
	r := &Recognizer{Backends: backends}
	return r.Recognize(ctx, img)
}

// Recognize calls every backend concurrently. Results keep the backend
// order. A failing backend is listed in Transcript.Failures and the others
// still contribute; the call fails only when every backend failed.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image) (Transcript, error) {
	log := r.Log
	if log == nil {
		log = discardLogger()
	}
	adapter := NewAdapter(log)

	results := make([]*Result, len(r.Backends))
	errs := make([]error, len(r.Backends))
	var g errgroup.Group
	for i, b := range r.Backends {
		g.Go(func() error {
			cctx := ctx
			if r.Timeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, r.Timeout)
				defer cancel()
			}
			start := time.Now()
			raw, err := b.Recognize(cctx, img)
			if err == nil {
				err = cctx.Err()
			}
			if err != nil {
				errs[i] = unavailable(b.Name(), err)
				log.WithFields(logrus.Fields{"backend": b.Name(), "err": err}).Warn("backend failed")
				return nil
			}
			res := adapter.Adapt(raw, b.Name())
			res.Image = img
			results[i] = &res
			log.WithFields(logrus.Fields{
				"backend": b.Name(),
				"lines":   len(res.Lines),
				"skipped": res.Skipped,
				"took":    time.Since(start).String(),
			}).Debug("backend done")
			return nil
		})
	}
	_ = g.Wait()

	var (
		ok       []Result
		failures []BackendFailure
	)
	for i, b := range r.Backends {
		if errs[i] != nil {
			failures = append(failures, BackendFailure{Backend: b.Name(), Err: errs[i]})
			continue
		}
		ok = append(ok, *results[i])
	}
	t := r.Aggregator.Aggregate(ok...)
	t.Failures = failures
	if len(r.Backends) > 0 && len(ok) == 0 {
		return t, ocrerr.Wrap(ocrerr.BackendUnavailable, "recognize", failures[0].Err,
			"all %d backends failed", len(r.Backends))
	}
	if t.Text != "" {
		log.WithField("text", snippet(t.Text, 40)).Debug("transcript")
	}
	return t, nil
}

func unavailable(backend string, err error) error {
	if ocrerr.KindOf(err) == ocrerr.BackendUnavailable {
		return err
	}
	return ocrerr.Wrap(ocrerr.BackendUnavailable, "recognize", err, "backend %s", backend).With("backend", backend)
}

type timeoutBackend struct {
	Backend
	timeout time.Duration
}

// WithTimeout bounds every call to b by d. A non-positive d returns b.
func WithTimeout(b Backend, d time.Duration) Backend {
	if d <= 0 {
		return b
	}
	return timeoutBackend{Backend: b, timeout: d}
}

func (t timeoutBackend) Recognize(ctx context.Context, img image.Image) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Backend.Recognize(ctx, img)
}
