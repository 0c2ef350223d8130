package config

import (
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/PhanTTKhai/ADO-translate/pkg/ocr"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocr/tesseract"
)

// BuildBackends instantiates backends from profile entries.
func BuildBackends(specs []BackendSpec) ([]ocr.Backend, error) {
	out := make([]ocr.Backend, 0, len(specs))
	for _, s := range specs {
		var b ocr.Backend
		switch s.Type {
		case "tesseract":
			t := tesseract.New(s.Languages...)
			t.PageSegMode = gosseract.PageSegMode(s.PSM)
			t.TessdataPrefix = s.TessdataPrefix
			b = t
		case "remote":
			opts := []ocr.RemoteOption{ocr.WithToken(s.Token)}
			if s.Name != "" {
				opts = append(opts, ocr.WithName(s.Name))
			}
			r, err := ocr.NewRemote(s.URL, opts...)
			if err != nil {
				return nil, err
			}
			b = r
		default:
			return nil, fmt.Errorf("unknown backend type %q", s.Type)
		}
		out = append(out, ocr.WithTimeout(b, s.Timeout))
	}
	return out, nil
}

// EnvBackends returns the backends configured through the environment:
// Tesseract when enabled, then the remote service when OCR_REMOTE_URL is set.
func (c *Config) EnvBackends() []BackendSpec {
	var specs []BackendSpec
	if c.TesseractEnabled {
		specs = append(specs, BackendSpec{Name: "tesseract", Type: "tesseract", Languages: c.TesseractLangs, Timeout: c.BackendTimeout, TessdataPrefix: c.TessdataPrefix})
	}
	if c.RemoteOCRURL != "" {
		specs = append(specs, BackendSpec{Name: "remote", Type: "remote", URL: c.RemoteOCRURL, Token: c.RemoteOCRToken, Timeout: c.BackendTimeout})
	}
	return specs
}

// SelectBackends filters specs by a comma separated list of names. An empty
// selection keeps every spec.
func SelectBackends(specs []BackendSpec, selection string) ([]BackendSpec, error) {
	names := splitList(selection)
	if len(names) == 0 {
		return specs, nil
	}
	var out []BackendSpec
	for _, n := range names {
		found := false
		for _, s := range specs {
			if strings.EqualFold(s.Name, n) {
				out = append(out, s)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown backend %q", n)
		}
	}
	return out, nil
}
