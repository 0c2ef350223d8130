package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhanTTKhai/ADO-translate/pkg/config"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocr"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"
	"github.com/PhanTTKhai/ADO-translate/pkg/translate"
)

func quad() []any {
	return []any{[]any{0.0, 0.0}, []any{10.0, 0.0}, []any{10.0, 10.0}, []any{0.0, 10.0}}
}

func backend(name, text string, conf float64) ocr.Backend {
	return ocr.Func{ID: name, Fn: func(context.Context, image.Image) (any, error) {
		return []any{[]any{quad(), []any{text, conf}}}, nil
	}}
}

func frame() image.Image {
	img := imaging.New(60, 30, color.White)
	for y := 10; y < 20; y++ {
		for x := 10; x < 50; x++ {
			img.Set(x, y, color.Black)
		}
	}
	return img
}

func TestProcessRecognizesAndTranslates(t *testing.T) {
	var gotTarget string
	tr := translate.ProviderFunc(func(_ context.Context, text, source, target string) (string, error) {
		gotTarget = target
		return "hello", nil
	})
	svc, err := NewService(nil, []ocr.Backend{backend("paddle", "こんにちは", 0.9)}, WithTranslator(tr, "en"))
	require.NoError(t, err)

	out, err := svc.Process(context.Background(), Request{Image: frame(), Source: "frame", Translate: true})
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", out.Transcript.Text)
	assert.Equal(t, "hello", out.Translation)
	assert.Equal(t, "en", gotTarget)
	assert.Equal(t, config.DefaultProfile, out.Profile)
	assert.NotNil(t, out.Preprocess.Cleaned)
	assert.NoError(t, out.TranslationErr)
}

func TestProcessTranslationFailureKeepsTranscript(t *testing.T) {
	tr := translate.ProviderFunc(func(context.Context, string, string, string) (string, error) {
		return "", errors.New("quota exceeded")
	})
	svc, err := NewService(nil, []ocr.Backend{backend("paddle", "テスト", 0.9)}, WithTranslator(tr, "en"))
	require.NoError(t, err)

	out, err := svc.Process(context.Background(), Request{Image: frame(), Translate: true, Target: "de"})
	require.NoError(t, err)
	assert.Equal(t, "テスト", out.Transcript.Text)
	assert.Empty(t, out.Translation)
	assert.Error(t, out.TranslationErr)
}

func TestProcessBackendSelection(t *testing.T) {
	svc, err := NewService(nil, []ocr.Backend{
		backend("tesseract", "one", 0.8),
		backend("paddle", "two", 0.8),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tesseract", "paddle"}, svc.BackendNames())

	out, err := svc.Process(context.Background(), Request{Image: frame(), Backends: []string{"Paddle"}})
	require.NoError(t, err)
	assert.Equal(t, "two", out.Transcript.Text)

	_, err = svc.Process(context.Background(), Request{Image: frame(), Backends: []string{"easyocr"}})
	assert.True(t, errors.Is(err, ocrerr.InvalidConfig))
}

func TestProcessErrors(t *testing.T) {
	empty, err := NewService(nil, nil)
	require.NoError(t, err)
	_, err = empty.Process(context.Background(), Request{Image: frame()})
	assert.True(t, errors.Is(err, ocrerr.BackendUnavailable))

	svc, err := NewService(nil, []ocr.Backend{backend("paddle", "x", 0.9)})
	require.NoError(t, err)
	_, err = svc.Process(context.Background(), Request{Image: frame(), Profile: "nope"})
	assert.True(t, errors.Is(err, ocrerr.InvalidConfig))

	down := ocr.Func{ID: "down", Fn: func(context.Context, image.Image) (any, error) {
		return nil, errors.New("refused")
	}}
	svc, err = NewService(nil, []ocr.Backend{down})
	require.NoError(t, err)
	out, err := svc.Process(context.Background(), Request{Image: frame()})
	assert.True(t, errors.Is(err, ocrerr.BackendUnavailable))
	require.NotNil(t, out)
	assert.Len(t, out.Transcript.Failures, 1)

	_, err = svc.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing.png"), Request{})
	assert.True(t, errors.Is(err, ocrerr.ImageLoadFailure))
}

func TestNewServiceRejectsBadProfile(t *testing.T) {
	p := config.DefaultProfiles()
	cfg := p.Pipelines["screen"]
	cfg.AdaptiveThresholdBlockSize = 10
	p.Pipelines["screen"] = cfg
	_, err := NewService(p, nil)
	assert.True(t, errors.Is(err, ocrerr.InvalidConfig))
}

func TestProcessFileUsesPathAsSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, imaging.Save(frame(), path))
	svc, err := NewService(nil, []ocr.Backend{backend("paddle", "ok", 0.9)})
	require.NoError(t, err)
	out, err := svc.ProcessFile(context.Background(), path, Request{})
	require.NoError(t, err)
	assert.Equal(t, path, out.Source)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestRecord(t *testing.T) {
	svc, err := NewService(nil, []ocr.Backend{backend("paddle", "一行", 0.5)})
	require.NoError(t, err)
	out, err := svc.Process(context.Background(), Request{Image: frame(), Source: "s"})
	require.NoError(t, err)

	c, err := Record(out)
	require.NoError(t, err)
	assert.Equal(t, "paddle", c.Backends)
	assert.Equal(t, "一行", c.Text)
	assert.Equal(t, 1, c.LineCount)
	assert.Contains(t, c.Lines, "一行")
	assert.False(t, c.Failed)
}
