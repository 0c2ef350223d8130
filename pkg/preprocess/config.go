package preprocess

import "github.com/PhanTTKhai/ADO-translate/pkg/ocrerr"

// Config holds the tunable parameters of one pipeline run. It is passed by
// value and never mutated by any stage.
type Config struct {
	ScaleFactor                float64 `yaml:"scale_factor" json:"scale_factor"`
	MaxDeskewAngleDegrees      float64 `yaml:"max_deskew_angle_degrees" json:"max_deskew_angle_degrees"`
	AdaptiveThresholdBlockSize int     `yaml:"adaptive_threshold_block_size" json:"adaptive_threshold_block_size"`
	AdaptiveThresholdConstant  float64 `yaml:"adaptive_threshold_constant" json:"adaptive_threshold_constant"`
	MorphKernelSize            int     `yaml:"morph_kernel_size" json:"morph_kernel_size"`
	MorphIterations            int     `yaml:"morph_iterations" json:"morph_iterations"`
	ContrastTileGrid           int     `yaml:"contrast_tile_grid" json:"contrast_tile_grid"`
	ContrastClipLimit          float64 `yaml:"contrast_clip_limit" json:"contrast_clip_limit"`
	// ThresholdEnhanced binarizes the contrast-enhanced image (rotated by the
	// same angle) instead of the plain grayscale of the deskewed color image.
	ThresholdEnhanced bool `yaml:"threshold_enhanced" json:"threshold_enhanced"`
}

// DefaultConfig returns the parameters tuned for screen captures of CJK text.
func DefaultConfig() Config {
	return Config{
		ScaleFactor:                2.0,
		MaxDeskewAngleDegrees:      15,
		AdaptiveThresholdBlockSize: 11,
		AdaptiveThresholdConstant:  12,
		MorphKernelSize:            2,
		MorphIterations:            1,
		ContrastTileGrid:           8,
		ContrastClipLimit:          2.0,
	}
}

// Validate reports the first out-of-range parameter as an InvalidConfig error.
func (c Config) Validate() error {
	if c.ScaleFactor < 1 {
		return invalid("scale_factor", c.ScaleFactor, "must be >= 1.0")
	}
	if c.MaxDeskewAngleDegrees < 0 || c.MaxDeskewAngleDegrees > 45 {
		return invalid("max_deskew_angle_degrees", c.MaxDeskewAngleDegrees, "must be within [0, 45]")
	}
	if err := validateBlockSize(c.AdaptiveThresholdBlockSize); err != nil {
		return err
	}
	if c.MorphKernelSize < 1 {
		return invalid("morph_kernel_size", c.MorphKernelSize, "must be >= 1")
	}
	if c.MorphIterations < 0 {
		return invalid("morph_iterations", c.MorphIterations, "must be >= 0")
	}
	if c.ContrastTileGrid < 1 {
		return invalid("contrast_tile_grid", c.ContrastTileGrid, "must be >= 1")
	}
	if !(c.ContrastClipLimit > 0) {
		return invalid("contrast_clip_limit", c.ContrastClipLimit, "must be > 0")
	}
	return nil
}

func validateBlockSize(n int) error {
	if n < 3 || n%2 == 0 {
		return invalid("adaptive_threshold_block_size", n, "must be odd and >= 3")
	}
	return nil
}

func invalid(field string, value any, rule string) error {
	return ocrerr.New(ocrerr.InvalidConfig, "config", "%s=%v %s", field, value, rule).
		With("field", field)
}
