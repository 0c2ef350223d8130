package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhanTTKhai/ADO-translate/models"
	"github.com/PhanTTKhai/ADO-translate/pkg/capture"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocr"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"
)

type fakeProcessor struct {
	got capture.Request
	out *capture.Outcome
	err error
}

func (f *fakeProcessor) ProcessFile(_ context.Context, path string, req capture.Request) (*capture.Outcome, error) {
	f.got = req
	return f.out, f.err
}

type fakeRecorder struct {
	saved    int
	failures []string
}

func (f *fakeRecorder) Save(_ context.Context, out *capture.Outcome, _ *uint) (*models.Capture, error) {
	f.saved++
	return &models.Capture{ID: "c-1", Text: out.Transcript.Text}, nil
}

func (f *fakeRecorder) SaveFailure(_ context.Context, source, _ string, cause error, _ *uint) (*models.Capture, error) {
	f.failures = append(f.failures, source+": "+cause.Error())
	return &models.Capture{ID: "c-2", Failed: true}, nil
}

func TestNewRecognizeTask(t *testing.T) {
	_, err := NewRecognizeTask(RecognizePayload{})
	assert.Error(t, err)

	task, err := NewRecognizeTask(RecognizePayload{ImagePath: "/tmp/a.png", Backends: []string{"paddle"}})
	require.NoError(t, err)
	assert.Equal(t, TypeRecognize, task.Type())

	var p RecognizePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, "/tmp/a.png", p.ImagePath)
	assert.Equal(t, []string{"paddle"}, p.Backends)
}

func TestProcessTaskSavesOutcome(t *testing.T) {
	proc := &fakeProcessor{out: &capture.Outcome{Transcript: ocr.Transcript{Text: "こんにちは"}}}
	rec := &fakeRecorder{}
	h := &Handler{Service: proc, Store: rec}

	task, err := NewRecognizeTask(RecognizePayload{ImagePath: "a.png", Profile: "photo", Translate: true})
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, 1, rec.saved)
	assert.Equal(t, "photo", proc.got.Profile)
	assert.True(t, proc.got.Translate)
}

func TestProcessTaskSkipsRetryForBadInput(t *testing.T) {
	h := &Handler{Service: &fakeProcessor{}}
	err := h.ProcessTask(context.Background(), asynq.NewTask(TypeRecognize, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	rec := &fakeRecorder{}
	h = &Handler{
		Service: &fakeProcessor{err: ocrerr.New(ocrerr.ImageLoadFailure, "load", "cannot decode")},
		Store:   rec,
	}
	task, _ := NewRecognizeTask(RecognizePayload{ImagePath: "broken.png"})
	err = h.ProcessTask(context.Background(), task)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Len(t, rec.failures, 1)
}

func TestProcessTaskRetriesUnavailableBackends(t *testing.T) {
	rec := &fakeRecorder{}
	h := &Handler{
		Service: &fakeProcessor{err: ocrerr.New(ocrerr.BackendUnavailable, "recognize", "all backends failed")},
		Store:   rec,
	}
	task, _ := NewRecognizeTask(RecognizePayload{ImagePath: "a.png"})
	err := h.ProcessTask(context.Background(), task)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	assert.Empty(t, rec.failures)
	assert.Zero(t, rec.saved)
}

func TestNewServeMuxRoutesRecognize(t *testing.T) {
	proc := &fakeProcessor{out: &capture.Outcome{}}
	mux := NewServeMux(&Handler{Service: proc})
	task, _ := NewRecognizeTask(RecognizePayload{ImagePath: "x.png"})
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	assert.Equal(t, "x.png", proc.got.Source)
}
