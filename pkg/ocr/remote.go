package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/disintegration/imaging"

	"github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"
)

var _ Backend = (*Remote)(nil)

// Remote posts the bitmap to an HTTP recognition service (for example a
// PaddleOCR server) and hands the JSON response to the adapter untouched.
type Remote struct {
	client *http.Client

	name  string
	url   string
	token string
	field string
}

// RemoteOption configures a Remote backend.
type RemoteOption func(*Remote)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// WithToken sends a bearer token.
func WithToken(token string) RemoteOption {
	return func(r *Remote) { r.token = token }
}

// WithName overrides the backend name reported in results.
func WithName(name string) RemoteOption {
	return func(r *Remote) { r.name = name }
}

// WithFileField sets the multipart field carrying the image, "image" by default.
func WithFileField(field string) RemoteOption {
	return func(r *Remote) { r.field = field }
}

func NewRemote(url string, options ...RemoteOption) (*Remote, error) {
	if url == "" {
		return nil, ocrerr.New(ocrerr.InvalidConfig, "remote", "url is required")
	}
	r := &Remote{
		client: http.DefaultClient,

		name:  "remote",
		url:   url,
		field: "image",
	}
	for _, option := range options {
		option(r)
	}
	return r, nil
}

func (r *Remote) Name() string { return r.name }

func (r *Remote) Recognize(ctx context.Context, img image.Image) (any, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(r.field, "frame.png")
	if err != nil {
		return nil, err
	}
	if err := imaging.Encode(fw, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, &body)
	if err != nil {
		return nil, ocrerr.Wrap(ocrerr.InvalidConfig, "remote", err, "build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, ocrerr.Wrap(ocrerr.BackendUnavailable, "remote", err, "call %s", r.url)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, ocrerr.Wrap(ocrerr.BackendUnavailable, "remote", err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ocrerr.New(ocrerr.BackendUnavailable, "remote", "%s returned %s: %s",
			r.url, resp.Status, snippet(string(bytes.TrimSpace(data)), 200)).With("status", resp.StatusCode)
	}
	return json.RawMessage(data), nil
}
