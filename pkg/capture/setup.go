package capture

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/PhanTTKhai/ADO-translate/pkg/config"
	"github.com/PhanTTKhai/ADO-translate/pkg/translate"
)

// FromConfig builds a Service from environment settings. Backends come from
// the profile file when it defines any, otherwise from the environment;
// selection narrows them by name.
func FromConfig(cfg *config.Config, selection string, log logrus.FieldLogger) (*Service, error) {
	profiles := config.DefaultProfiles()
	if cfg.ProfilePath != "" {
		p, err := config.LoadProfile(cfg.ProfilePath)
		if err != nil {
			return nil, err
		}
		profiles = p
	}

	specs := profiles.Backends
	if len(specs) == 0 {
		specs = cfg.EnvBackends()
	}
	specs, err := config.SelectBackends(specs, selection)
	if err != nil {
		return nil, err
	}
	for i := range specs {
		if specs[i].Type == "tesseract" && specs[i].TessdataPrefix == "" {
			specs[i].TessdataPrefix = cfg.TessdataPrefix
		}
	}
	backends, err := config.BuildBackends(specs)
	if err != nil {
		return nil, fmt.Errorf("build backends: %w", err)
	}

	opts := []Option{WithLogger(log)}
	if cfg.TranslationEnabled() {
		d, err := translate.NewDeepL(cfg.DeepLURL, translate.WithToken(cfg.DeepLToken))
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithTranslator(translate.Limited(d, cfg.TranslateRate, 1), cfg.TranslateTarget))
	}
	return NewService(profiles, backends, opts...)
}
