package frames

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhanTTKhai/ADO-translate/pkg/capture"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocr"
)

// scripted returns a fixed transcript per frame name; later frames finish
// first so ordering is exercised.
type scripted struct {
	texts map[string]string
	delay map[string]time.Duration
}

func (s *scripted) ProcessFile(ctx context.Context, path string, req capture.Request) (*capture.Outcome, error) {
	name := filepath.Base(path)
	time.Sleep(s.delay[name])
	text, ok := s.texts[name]
	if !ok {
		return nil, errors.New("unreadable")
	}
	return &capture.Outcome{Source: req.Source, Transcript: ocr.Transcript{Text: text}}, nil
}

func feed(names ...string) <-chan string {
	ch := make(chan string, len(names))
	for _, n := range names {
		ch <- n
	}
	close(ch)
	return ch
}

type collect struct {
	mu     sync.Mutex
	frames []Frame
}

func (c *collect) Emit(_ context.Context, f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *collect) texts() []string {
	var out []string
	for _, f := range c.frames {
		out = append(out, f.Outcome.Transcript.Text)
	}
	return out
}

func TestRunEmitsChangedFramesInOrder(t *testing.T) {
	svc := &scripted{
		texts: map[string]string{
			"001.png": "こんにちは",
			"002.png": "こんにちは ",
			"003.png": "",
			"004.png": "さようなら",
			"005.png": "こんにちは",
		},
		delay: map[string]time.Duration{"001.png": 30 * time.Millisecond, "002.png": 20 * time.Millisecond},
	}
	sink := &collect{}
	p := New(svc, Options{Dir: t.TempDir(), Workers: 4}, sink)

	require.NoError(t, p.Run(context.Background(), feed("001.png", "002.png", "003.png", "004.png", "005.png")))
	assert.Equal(t, []string{"こんにちは", "さようなら", "こんにちは"}, sink.texts())
	assert.Equal(t, 1, sink.frames[0].Seq)
	assert.Equal(t, "004.png", sink.frames[1].Name)
	assert.Equal(t, Stats{Processed: 5, Emitted: 3}, p.Stats())
}

func TestRunSkipsFailedFrames(t *testing.T) {
	svc := &scripted{texts: map[string]string{"a.png": "one", "c.png": "two"}}
	sink := &collect{}
	p := New(svc, Options{Dir: t.TempDir(), Workers: 2}, sink)

	require.NoError(t, p.Run(context.Background(), feed("a.png", "b.png", "c.png")))
	assert.Equal(t, []string{"one", "two"}, sink.texts())
	assert.Equal(t, 1, p.Stats().Failed)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	names := make(chan string)
	done := make(chan error, 1)
	p := New(&scripted{}, Options{Dir: t.TempDir()})
	go func() { done <- p.Run(ctx, names) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunMovesProcessedFrames(t *testing.T) {
	dir := t.TempDir()
	processed := filepath.Join(dir, "processed")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.png"), []byte("x"), 0o644))

	svc := &scripted{texts: map[string]string{"f.png": "text"}}
	p := New(svc, Options{Dir: dir, ProcessedDir: processed})
	require.NoError(t, p.Run(context.Background(), feed("f.png")))

	_, err := os.Stat(filepath.Join(processed, "f.png"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "f.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestPendingListsSupportedImages(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.png", "a.JPG", "notes.txt", "a.ocr.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))
	p := New(nil, Options{Dir: dir})
	assert.Equal(t, []string{"a.JPG", "b.png"}, p.Pending())
}

func TestSinks(t *testing.T) {
	f := Frame{Name: "x.png", Outcome: &capture.Outcome{
		Transcript:  ocr.Transcript{Text: "テスト"},
		Translation: "test",
	}}

	var buf bytes.Buffer
	require.NoError(t, WriterSink(&buf).Emit(context.Background(), f))
	assert.Equal(t, "[x.png]\nテスト\n-> test\n", buf.String())

	path := filepath.Join(t.TempDir(), "latest.txt")
	require.NoError(t, FileSink(path).Emit(context.Background(), f))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "テスト", string(data))
}

func TestWatchPicksUpNewFrames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001.png"), []byte("x"), 0o644))

	svc := &scripted{texts: map[string]string{"001.png": "first", "002.png": "second"}}
	sink := &collect{}
	p := New(svc, Options{Dir: dir, Settle: 50 * time.Millisecond}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002.png"), []byte("x"), 0o644))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if p.Stats().Emitted == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	require.NoError(t, <-done)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, sink.texts())
}

func TestWatchSkipsFramesAlreadyQueued(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "001.png")
	require.NoError(t, os.WriteFile(first, []byte("x"), 0o644))
	fi, err := os.Stat(first)
	require.NoError(t, err)

	svc := &scripted{texts: map[string]string{"001.png": "first", "002.png": "second"}}
	sink := &collect{}
	p := New(svc, Options{Dir: dir, Settle: 50 * time.Millisecond}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && p.Stats().Processed < 1 {
		time.Sleep(20 * time.Millisecond)
	}
	require.Equal(t, 1, p.Stats().Processed)

	// Same content and time: a late event for the frame read at startup.
	require.NoError(t, os.WriteFile(first, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(first, fi.ModTime(), fi.ModTime()))
	time.Sleep(400 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002.png"), []byte("x"), 0o644))

	deadline = time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && p.Stats().Emitted < 2 {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, Stats{Processed: 2, Emitted: 2}, p.Stats())
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, sink.texts())
}

