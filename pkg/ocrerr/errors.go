package ocrerr

import (
	"errors"
	"fmt"
)

// Kind classifies failures and diagnostics raised by the preprocessing and
// recognition pipeline. A Kind is itself an error so callers can match with
// errors.Is(err, ocrerr.InvalidConfig).
type Kind string

const (
	// Fatal to the invocation.
	ImageLoadFailure Kind = "IMAGE_LOAD_FAILURE"
	InvalidConfig    Kind = "INVALID_CONFIG"
	StageFailure     Kind = "STAGE_FAILURE"

	// Recoverable, surfaced as diagnostics.
	NoForegroundPixels       Kind = "NO_FOREGROUND_PIXELS"
	DeskewAngleCapped        Kind = "DESKEW_ANGLE_CAPPED"
	MalformedRecognitionLine Kind = "MALFORMED_RECOGNITION_LINE"

	// Fatal for one backend's contribution, or for the whole call when every backend failed.
	BackendUnavailable Kind = "BACKEND_UNAVAILABLE"

	// Fatal only for the visualizer path.
	MissingFont Kind = "MISSING_FONT"
)

func (k Kind) Error() string { return string(k) }

// Error is a stage-tagged failure.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Stage != "" {
		prefix = e.Stage + ": " + prefix
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches a bare Kind target, so errors.Is works through wrapping.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New builds an Error without a cause.
func New(kind Kind, stage, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around cause.
func Wrap(kind Kind, stage string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// With attaches a detail key and returns e for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// KindOf returns the Kind carried by err, or "" when err is not tagged.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}

// ToMap flattens the error for JSON responses and persisted rows.
func (e *Error) ToMap() map[string]any {
	out := map[string]any{
		"error_code": string(e.Kind),
		"message":    e.Message,
	}
	if e.Stage != "" {
		out["stage"] = e.Stage
	}
	for k, v := range e.Details {
		out[k] = v
	}
	if e.Cause != nil {
		out["cause"] = e.Cause.Error()
	}
	return out
}
