package translate

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/time/rate"
)

// Auto asks the provider to detect the source language.
const Auto = "auto"

var (
	ErrEmptyText   = errors.New("nothing to translate")
	ErrUnsupported = errors.New("unsupported language")
)

// Provider maps text from one language to another.
type Provider interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, text, source, target string) (string, error)

func (f ProviderFunc) Translate(ctx context.Context, text, source, target string) (string, error) {
	return f(ctx, text, source, target)
}

type limited struct {
	limiter  *rate.Limiter
	provider Provider
}

// Limited throttles p to perSecond calls with the given burst. A
// non-positive rate disables throttling.
func Limited(p Provider, perSecond float64, burst int) Provider {
	if perSecond <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &limited{limiter: rate.NewLimiter(rate.Limit(perSecond), burst), provider: p}
}

func (l *limited) Translate(ctx context.Context, text, source, target string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.provider.Translate(ctx, text, source, target)
}

// Text translates trimmed text, skipping the call when nothing is left.
func Text(ctx context.Context, p Provider, text, source, target string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if source == "" {
		source = Auto
	}
	return p.Translate(ctx, text, source, target)
}
