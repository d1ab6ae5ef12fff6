// Package config loads and validates mto configuration files.
//
// A missing file is not an error: LoadConfig falls back to DefaultConfig,
// and fields absent from a file keep their default values.
package config

import (
	"math"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/mtobjects/internal/background"
	"github.com/ironsheep/mtobjects/internal/logger"
	"github.com/ironsheep/mtobjects/internal/maxtree"
	"github.com/ironsheep/mtobjects/internal/significance"
)

// ErrInvalidConfig reports a configuration value out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the application configuration.
type Config struct {
	Detection struct {
		// Direction is "bright" (max-tree) or "dark" (min-tree).
		Direction string `yaml:"direction"`

		// Precision is "single" or "double".
		Precision string `yaml:"precision"`

		// Connectivity is 4 or 8.
		Connectivity int `yaml:"connectivity"`

		// MaxPixels bounds the image size; 0 means no limit beyond int32
		// indexing.
		MaxPixels int `yaml:"max_pixels"`
	} `yaml:"detection"`

	Significance struct {
		// Test is "area-scaled" or "chi-squared".
		Test string `yaml:"test"`

		SigmaMultiplier float64 `yaml:"sigma_multiplier"`
		AreaExponent    float64 `yaml:"area_exponent"`
		Alpha           float64 `yaml:"alpha"`
		MinArea         int     `yaml:"min_area"`

		// Floor is the level, in background sigmas beyond the sky, a node
		// must pass to be significant. Zero disables it.
		Floor float64 `yaml:"floor"`
		MoveFactor      float64 `yaml:"move_factor"`
		Deblend         bool    `yaml:"deblend"`
	} `yaml:"significance"`

	Background struct {
		// Estimate measures the background with kappa-sigma clipping.
		// When false, Mean and Sigma are used as given.
		Estimate bool `yaml:"estimate"`

		Mean  float64 `yaml:"mean"`
		Sigma float64 `yaml:"sigma"`

		ClipKappa      float64 `yaml:"clip_kappa"`
		ClipIterations int     `yaml:"clip_iterations"`
		Tolerance      float64 `yaml:"tolerance"`
	} `yaml:"background"`

	Preprocess struct {
		SubtractBackground bool `yaml:"subtract_background"`

		// SmoothSigma is the Gaussian smoothing width in pixels; 0 disables
		// smoothing.
		SmoothSigma float64 `yaml:"smooth_sigma"`
	} `yaml:"preprocess"`

	Output struct {
		// LogLevel is debug, info, warn, error or disabled.
		LogLevel string `yaml:"log_level"`

		// Format is "table" or "json".
		Format string `yaml:"format"`
	} `yaml:"output"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Detection.Direction = maxtree.Bright.String()
	cfg.Detection.Precision = maxtree.Double.String()
	cfg.Detection.Connectivity = int(maxtree.Four)

	p := significance.DefaultParams()
	cfg.Significance.Test = p.Method.String()
	cfg.Significance.SigmaMultiplier = p.SigmaMultiplier
	cfg.Significance.AreaExponent = p.AreaExponent
	cfg.Significance.Alpha = p.Alpha
	cfg.Significance.MinArea = p.MinArea
	cfg.Significance.Floor = 1
	cfg.Significance.MoveFactor = p.MoveFactor
	cfg.Significance.Deblend = p.Deblend

	clip := background.DefaultOptions()
	cfg.Background.Estimate = true
	cfg.Background.ClipKappa = clip.Kappa
	cfg.Background.ClipIterations = clip.MaxIterations
	cfg.Background.Tolerance = clip.Tolerance

	cfg.Preprocess.SubtractBackground = true

	cfg.Output.LogLevel = "info"
	cfg.Output.Format = "table"

	return cfg
}

// LoadConfig reads a YAML file over the defaults. A missing file yields the
// defaults; an unreadable or malformed one is an error. The result is
// validated.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "error parsing config file %s", configPath)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML, creating parent directories.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}
	return nil
}

// CreateDefaultConfigFile writes the default configuration to configPath.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate checks every value and returns the first problem, wrapped in
// ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(err error) error { return errors.Mark(err, ErrInvalidConfig) }

	if _, err := c.Options(); err != nil {
		return invalid(err)
	}
	if _, err := maxtree.ParsePrecision(c.Detection.Precision); err != nil {
		return invalid(err)
	}
	if c.Detection.MaxPixels < 0 {
		return invalid(errors.Newf("max_pixels must be non-negative, got %d", c.Detection.MaxPixels))
	}
	if _, err := c.Params(background.Estimate{Sigma: 1}); err != nil {
		return invalid(err)
	}
	if err := c.ClipOptions().Validate(); err != nil && c.Background.Estimate {
		return invalid(err)
	}
	if !c.Background.Estimate && (c.Background.Sigma < 0 || math.IsNaN(c.Background.Sigma)) {
		return invalid(errors.Newf("background sigma must be non-negative, got %v", c.Background.Sigma))
	}
	if s := c.Preprocess.SmoothSigma; s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return invalid(errors.Newf("smooth_sigma must be finite and non-negative, got %v", s))
	}
	if _, err := logger.ParseLevel(c.Output.LogLevel); err != nil {
		return invalid(err)
	}
	switch c.Output.Format {
	case "table", "json":
	default:
		return invalid(errors.Newf("unknown output format %q", c.Output.Format))
	}
	return nil
}

// Options returns the tree-construction options.
func (c *Config) Options() (maxtree.Options, error) {
	dir, err := maxtree.ParseDirection(c.Detection.Direction)
	if err != nil {
		return maxtree.Options{}, err
	}
	conn, err := maxtree.ParseConnectivity(c.Detection.Connectivity)
	if err != nil {
		return maxtree.Options{}, err
	}
	return maxtree.Options{Direction: dir, Connectivity: conn, MaxPixels: c.Detection.MaxPixels}, nil
}

// Precision returns the configured floating-point width.
func (c *Config) Precision() (maxtree.Precision, error) {
	return maxtree.ParsePrecision(c.Detection.Precision)
}

// Params returns the significance parameters for the measured background.
// The floor is measured from the background mean unless the background is
// subtracted first.
func (c *Config) Params(est background.Estimate) (significance.Params, error) {
	method, err := significance.ParseMethod(c.Significance.Test)
	if err != nil {
		return significance.Params{}, err
	}
	p := significance.Params{
		Method:          method,
		Sigma:           est.Sigma,
		SigmaMultiplier: c.Significance.SigmaMultiplier,
		AreaExponent:    c.Significance.AreaExponent,
		Alpha:           c.Significance.Alpha,
		MinArea:         c.Significance.MinArea,
		Floor:           c.Significance.Floor,
		MoveFactor:      c.Significance.MoveFactor,
		Deblend:         c.Significance.Deblend,
	}
	if !c.Preprocess.SubtractBackground {
		p.Sky = est.Mean
	}
	return p, p.Validate()
}

// ClipOptions returns the background clipping options.
func (c *Config) ClipOptions() background.Options {
	return background.Options{
		Kappa:         c.Background.ClipKappa,
		MaxIterations: c.Background.ClipIterations,
		Tolerance:     c.Background.Tolerance,
	}
}
