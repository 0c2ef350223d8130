package frames

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/PhanTTKhai/ADO-translate/models"
	"github.com/PhanTTKhai/ADO-translate/pkg/capture"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocr"
)

// Sink receives frames whose transcript changed.
type Sink interface {
	Emit(ctx context.Context, f Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, f Frame) error

func (fn SinkFunc) Emit(ctx context.Context, f Frame) error { return fn(ctx, f) }

type writerSink struct {
	mu sync.Mutex
	w  io.Writer
}

// WriterSink prints each transcript, followed by its translation when there is one.
func WriterSink(w io.Writer) Sink { return &writerSink{w: w} }

func (s *writerSink) Emit(_ context.Context, f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "[%s]\n%s\n", f.Name, f.Outcome.Transcript.Text); err != nil {
		return err
	}
	if f.Outcome.Translation != "" {
		if _, err := fmt.Fprintf(s.w, "-> %s\n", f.Outcome.Translation); err != nil {
			return err
		}
	}
	return nil
}

// FileSink overwrites path with the latest transcript.
func FileSink(path string) Sink {
	return SinkFunc(func(_ context.Context, f Frame) error {
		return ocr.WriteTranscript(path, f.Outcome.Transcript)
	})
}

// Saver persists outcomes; *capture.Store satisfies it.
type Saver interface {
	Save(ctx context.Context, out *capture.Outcome, userID *uint) (*models.Capture, error)
}

// StoreSink saves each emitted frame as a capture owned by userID.
func StoreSink(s Saver, userID *uint) Sink {
	return SinkFunc(func(ctx context.Context, f Frame) error {
		_, err := s.Save(ctx, f.Outcome, userID)
		return err
	})
}
