package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"
)

func stub(name string, out any, err error) Func {
	return Func{ID: name, Fn: func(context.Context, image.Image) (any, error) { return out, err }}
}

func paddleLine(text string, conf float64) []any {
	return []any{quad(), []any{text, conf}}
}

func TestRecognizeAllKeepsBackendOrder(t *testing.T) {
	img := imaging.New(10, 10, color.White)
	slow := Func{ID: "slow", Fn: func(ctx context.Context, _ image.Image) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return []any{paddleLine("first", 0.9)}, nil
	}}
	fast := stub("fast", []any{paddleLine("second", 0.9)}, nil)
	tr, err := RecognizeAll(context.Background(), img, slow, fast)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Text != "first\nsecond" {
		t.Fatalf("text = %q", tr.Text)
	}
	if tr.Results[0].Backend != "slow" || tr.Results[0].Image != img {
		t.Fatalf("result metadata %+v", tr.Results[0])
	}
}

func TestRecognizeAllPartialFailure(t *testing.T) {
	img := imaging.New(10, 10, color.White)
	tr, err := RecognizeAll(context.Background(), img,
		stub("down", nil, errors.New("connection refused")),
		stub("up", []any{paddleLine("ok", 0.9)}, nil),
	)
	if err != nil {
		t.Fatalf("one healthy backend must be enough: %v", err)
	}
	if tr.Text != "ok" || len(tr.Failures) != 1 || tr.Failures[0].Backend != "down" {
		t.Fatalf("transcript %+v", tr)
	}
	if !errors.Is(tr.Failures[0].Err, ocrerr.BackendUnavailable) {
		t.Fatalf("failure kind %v", tr.Failures[0].Err)
	}
}

func TestRecognizeAllEveryBackendFails(t *testing.T) {
	img := imaging.New(10, 10, color.White)
	_, err := RecognizeAll(context.Background(), img,
		stub("a", nil, errors.New("boom")),
		stub("b", nil, context.DeadlineExceeded),
	)
	if !errors.Is(err, ocrerr.BackendUnavailable) {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
}

func TestRecognizerTimeout(t *testing.T) {
	hang := Func{ID: "hang", Fn: func(ctx context.Context, _ image.Image) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r := &Recognizer{Backends: []Backend{hang}, Timeout: 10 * time.Millisecond}
	if _, err := r.Recognize(context.Background(), imaging.New(4, 4, color.White)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestRemoteBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f, _, err := r.FormFile("image")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		if _, _, err := image.Decode(f); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[[[[0,0],[9,0],[9,9],[0,9]],["リモート",0.91]]]`))
	}))
	defer srv.Close()

	rb, err := NewRemote(srv.URL, WithToken("secret"), WithName("paddle"))
	if err != nil {
		t.Fatal(err)
	}
	tr, err := RecognizeAll(context.Background(), imaging.New(12, 12, color.White), rb)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Text != "リモート" || tr.Results[0].Backend != "paddle" {
		t.Fatalf("transcript %+v", tr)
	}

	bad, _ := NewRemote(srv.URL)
	_, err = bad.Recognize(context.Background(), imaging.New(2, 2, color.White))
	if !errors.Is(err, ocrerr.BackendUnavailable) || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected unavailable 401, got %v", err)
	}
}
