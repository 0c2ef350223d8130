package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PhanTTKhai/ADO-translate/pkg/preprocess"
)

// DefaultProfile is the preprocessing parameter set used when none is named.
const DefaultProfile = "screen"

// Profile is a set of named preprocessing configurations plus the
// recognition backends to run.
type Profile struct {
	Pipelines map[string]preprocess.Config
	Backends  []BackendSpec
}

// BackendSpec describes one recognition backend in a profile file.
type BackendSpec struct {
	Name      string        `yaml:"name"`
	Type      string        `yaml:"type"` // tesseract | remote
	URL       string        `yaml:"url"`
	Token     string        `yaml:"token"`
	Languages []string      `yaml:"languages"`
	PSM       int           `yaml:"psm"`
	Timeout   time.Duration `yaml:"timeout"`

	TessdataPrefix string `yaml:"tessdata_prefix"`
}

type profileFile struct {
	Profiles map[string]preprocess.Config `yaml:"profiles"`
	Backends []BackendSpec                `yaml:"backends"`
}

type profileOverlay struct {
	Profiles map[string]yaml.Node `yaml:"profiles"`
}

// DefaultProfiles returns the built-in parameter sets.
func DefaultProfiles() *Profile {
	photo := preprocess.DefaultConfig()
	photo.ScaleFactor = 1.5
	photo.MaxDeskewAngleDegrees = 30
	photo.AdaptiveThresholdBlockSize = 31
	photo.AdaptiveThresholdConstant = 10
	photo.MorphKernelSize = 3
	photo.ThresholdEnhanced = true

	return &Profile{
		Pipelines: map[string]preprocess.Config{
			DefaultProfile: preprocess.DefaultConfig(),
			"photo":        photo,
		},
	}
}

// LoadProfile parses a YAML profile file. Environment variables are expanded,
// unknown keys are rejected and fields missing from a parameter set keep
// their default value. Built-in sets stay available unless overridden.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseProfile(data)
}

// ParseProfile is LoadProfile on an in-memory document.
func ParseProfile(data []byte) (*Profile, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var strict profileFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&strict); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	var overlay profileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	p := DefaultProfiles()
	for name, node := range overlay.Profiles {
		cfg := preprocess.DefaultConfig()
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		p.Pipelines[name] = cfg
	}

	for i, b := range strict.Backends {
		if err := b.validate(); err != nil {
			return nil, fmt.Errorf("backend %d: %w", i, err)
		}
	}
	p.Backends = strict.Backends
	return p, nil
}

// Pipeline returns the named parameter set; an empty name selects DefaultProfile.
func (p *Profile) Pipeline(name string) (preprocess.Config, error) {
	if name == "" {
		name = DefaultProfile
	}
	cfg, ok := p.Pipelines[name]
	if !ok {
		return preprocess.Config{}, fmt.Errorf("unknown profile %q (have %v)", name, p.Names())
	}
	return cfg, nil
}

// Names lists the available parameter sets in sorted order.
func (p *Profile) Names() []string {
	names := make([]string, 0, len(p.Pipelines))
	for n := range p.Pipelines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (b BackendSpec) validate() error {
	switch b.Type {
	case "tesseract":
	case "remote":
		if b.URL == "" {
			return fmt.Errorf("remote backend %q needs a url", b.Name)
		}
	default:
		return fmt.Errorf("unknown backend type %q", b.Type)
	}
	if b.Timeout < 0 {
		return fmt.Errorf("backend %q: negative timeout", b.Name)
	}
	return nil
}
