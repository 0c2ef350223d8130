// Package frames turns a directory of screen captures into a stream of
// changed transcripts.
package frames

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/PhanTTKhai/ADO-translate/pkg/capture"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocr"
)

const (
	defaultTick   = 250 * time.Millisecond
	defaultSettle = 300 * time.Millisecond
)

// Recognizer processes one image file.
type Recognizer interface {
	ProcessFile(ctx context.Context, path string, req capture.Request) (*capture.Outcome, error)
}

// Frame is one processed capture handed to sinks.
type Frame struct {
	Seq     int
	Name    string
	Path    string
	Outcome *capture.Outcome
}

// Options controls a Processor.
type Options struct {
	Dir     string
	Workers int
	// Request is the template applied to every frame.
	Request capture.Request
	// ProcessedDir receives frames after recognition; empty leaves them.
	ProcessedDir string
	// Settle is how long a new file must stay quiet before it is read.
	Settle time.Duration
	Log    logrus.FieldLogger
}

// Stats counts what a run did.
type Stats struct {
	Processed int
	Emitted   int
	Failed    int
}

// Processor recognizes frames concurrently and emits them in arrival order,
// suppressing frames whose text did not change.
type Processor struct {
	svc   Recognizer
	opts  Options
	sinks []Sink
	log   logrus.FieldLogger

	mu    sync.Mutex
	stats Stats
}

func New(svc Recognizer, opts Options, sinks ...Sink) *Processor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Settle <= 0 {
		opts.Settle = defaultSettle
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Processor{svc: svc, opts: opts, sinks: sinks, log: log}
}

// Stats returns counters for the frames handled so far.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Pending lists frames already in the directory.
func (p *Processor) Pending() []string { return listImageFiles(p.opts.Dir) }

type job struct {
	seq  int
	name string
	done chan *capture.Outcome
}

// Run processes names until the channel closes or ctx ends. Frames are
// recognized by the worker pool and reach the sinks in the order they
// were received.
func (p *Processor) Run(ctx context.Context, names <-chan string) error {
	jobs := make(chan *job, p.opts.Workers)
	order := make(chan *job, 1024)

	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				j.done <- p.recognize(ctx, j.name)
			}
		}()
	}

	go func() {
		defer close(order)
		defer close(jobs)
		seq := 0
		for {
			select {
			case <-ctx.Done():
				return
			case name, ok := <-names:
				if !ok {
					return
				}
				seq++
				j := &job{seq: seq, name: name, done: make(chan *capture.Outcome, 1)}
				select {
				case order <- j:
				case <-ctx.Done():
					return
				}
				select {
				case jobs <- j:
				case <-ctx.Done():
					j.done <- nil
					return
				}
			}
		}
	}()

	var last ocr.Transcript
	for j := range order {
		out := <-j.done
		if out == nil {
			continue
		}
		next, emit := ocr.Advance(last, out.Transcript)
		if !emit {
			p.log.WithField("frame", j.name).Debug("transcript unchanged")
			continue
		}
		last = next
		p.emit(ctx, Frame{Seq: j.seq, Name: j.name, Path: p.path(j.name), Outcome: out})
	}
	wg.Wait()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Watch processes frames already in the directory, then new ones as they
// appear, until ctx ends.
func (p *Processor) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(p.opts.Dir); err != nil {
		return err
	}
	p.log.WithField("dir", p.opts.Dir).Info("watching for frames")

	names := make(chan string, 256)
	go func() {
		defer close(names)
		// sent remembers the file each name had when it was queued, so
		// events for a frame already read, or already moved away, are
		// dropped.
		sent := map[string]fileStamp{}
		send := func(name string) bool {
			if st, ok := stampOf(p.path(name)); ok {
				sent[name] = st
			}
			select {
			case names <- name:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, n := range p.Pending() {
			if !send(n) {
				return
			}
		}
		pending := map[string]time.Time{}
		ticker := time.NewTicker(defaultTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				name := filepath.Base(ev.Name)
				if !isSupportedExt(name) {
					continue
				}
				pending[name] = time.Now()
			case <-ticker.C:
				now := time.Now()
				var ready []string
				for name, t := range pending {
					if now.Sub(t) > p.opts.Settle {
						ready = append(ready, name)
						delete(pending, name)
					}
				}
				sort.Strings(ready)
				for _, name := range ready {
					st, ok := stampOf(p.path(name))
					if !ok {
						delete(sent, name)
						continue
					}
					if prev, seen := sent[name]; seen && prev.same(st) {
						p.log.WithField("frame", name).Debug("frame already queued")
						continue
					}
					if !send(name) {
						return
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				p.log.WithError(err).Warn("watch error")
			}
		}
	}()
	return p.Run(ctx, names)
}

func (p *Processor) recognize(ctx context.Context, name string) *capture.Outcome {
	if ctx.Err() != nil {
		return nil
	}
	path := p.path(name)
	req := p.opts.Request
	req.Source = name
	out, err := p.svc.ProcessFile(ctx, path, req)

	p.mu.Lock()
	if err != nil {
		p.stats.Failed++
	} else {
		p.stats.Processed++
	}
	p.mu.Unlock()

	if err != nil {
		p.log.WithError(err).WithField("frame", name).Warn("frame failed")
	}
	if p.opts.ProcessedDir != "" {
		if merr := moveToProcessed(path, p.opts.ProcessedDir); merr != nil {
			p.log.WithError(merr).WithField("frame", name).Warn("move to processed failed")
		}
	}
	if err != nil {
		return nil
	}
	return out
}

func (p *Processor) emit(ctx context.Context, f Frame) {
	p.mu.Lock()
	p.stats.Emitted++
	p.mu.Unlock()
	for _, s := range p.sinks {
		if err := s.Emit(ctx, f); err != nil {
			p.log.WithError(err).WithField("frame", f.Name).Warn("sink failed")
		}
	}
}

func (p *Processor) path(name string) string {
	return filepath.Join(p.opts.Dir, name)
}
