// Package jobs runs recognition asynchronously on a Redis backed asynq queue.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/PhanTTKhai/ADO-translate/models"
	"github.com/PhanTTKhai/ADO-translate/pkg/capture"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"
)

// TypeRecognize is the task type for single image recognition.
const TypeRecognize = "ocr:recognize"

// Queue is the asynq queue recognition tasks are sent to.
const Queue = "ocr"

// RecognizePayload is the task body.
type RecognizePayload struct {
	ImagePath     string   `json:"image_path"`
	Profile       string   `json:"profile,omitempty"`
	Backends      []string `json:"backends,omitempty"`
	MinConfidence float64  `json:"min_confidence,omitempty"`
	Translate     bool     `json:"translate,omitempty"`
	Target        string   `json:"target,omitempty"`
	UserID        *uint    `json:"user_id,omitempty"`
}

// NewRecognizeTask builds a task for p. Extra options override the defaults.
func NewRecognizeTask(p RecognizePayload, opts ...asynq.Option) (*asynq.Task, error) {
	if p.ImagePath == "" {
		return nil, errors.New("image_path is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	defaults := []asynq.Option{
		asynq.Queue(Queue),
		asynq.MaxRetry(3),
		asynq.Timeout(2 * time.Minute),
		asynq.Retention(24 * time.Hour),
	}
	return asynq.NewTask(TypeRecognize, data, append(defaults, opts...)...), nil
}

// Processor recognizes an image file.
type Processor interface {
	ProcessFile(ctx context.Context, path string, req capture.Request) (*capture.Outcome, error)
}

// Recorder persists outcomes.
type Recorder interface {
	Save(ctx context.Context, out *capture.Outcome, userID *uint) (*models.Capture, error)
	SaveFailure(ctx context.Context, source, profile string, cause error, userID *uint) (*models.Capture, error)
}

// Handler processes TypeRecognize tasks. Store may be nil.
type Handler struct {
	Service Processor
	Store   Recorder
	Log     logrus.FieldLogger
}

// ProcessTask implements asynq.Handler.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	log := h.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	var p RecognizePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	log = log.WithFields(logrus.Fields{"task": t.Type(), "image": p.ImagePath})
	start := time.Now()

	out, err := h.Service.ProcessFile(ctx, p.ImagePath, capture.Request{
		Source:        p.ImagePath,
		Profile:       p.Profile,
		Backends:      p.Backends,
		MinConfidence: p.MinConfidence,
		Translate:     p.Translate,
		Target:        p.Target,
	})
	if err != nil {
		switch ocrerr.KindOf(err) {
		case ocrerr.ImageLoadFailure, ocrerr.InvalidConfig:
			log.WithError(err).Warn("recognition rejected")
			h.recordFailure(ctx, p, err, log)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		log.WithError(err).Warn("recognition failed, will retry")
		return err
	}

	result := map[string]any{"text": out.Transcript.Text}
	if out.Translation != "" {
		result["translation"] = out.Translation
	}
	if h.Store != nil {
		c, err := h.Store.Save(ctx, out, p.UserID)
		if err != nil {
			return fmt.Errorf("save capture: %w", err)
		}
		result["capture_id"] = c.ID
	}
	if w := t.ResultWriter(); w != nil {
		if data, err := json.Marshal(result); err == nil {
			if _, err := w.Write(data); err != nil {
				log.WithError(err).Warn("write task result")
			}
		}
	}
	log.WithField("took", time.Since(start).String()).Info("recognition task done")
	return nil
}

func (h *Handler) recordFailure(ctx context.Context, p RecognizePayload, cause error, log logrus.FieldLogger) {
	if h.Store == nil {
		return
	}
	if _, err := h.Store.SaveFailure(ctx, p.ImagePath, p.Profile, cause, p.UserID); err != nil {
		log.WithError(err).Warn("record failed capture")
	}
}

// NewServeMux routes recognition tasks to h.
func NewServeMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeRecognize, h)
	return mux
}

// NewServer creates an asynq server consuming the recognition queue.
func NewServer(redisAddr string, concurrency int, log logrus.FieldLogger) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{Queue: 10, "default": 1},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > time.Minute {
					delay = time.Minute
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.WithError(err).WithField("task", task.Type()).Error("task failed")
			}),
		},
	)
}
