package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the runtime knobs for the engine and its demos.
type Config struct {
	ModelURL        string        `env:"MATHLAB_MODEL_URL" envDefault:"models/digits_mlp.json"`
	FetchTimeout    time.Duration `env:"MATHLAB_FETCH_TIMEOUT" envDefault:"10s"`
	GridSide        int           `env:"MATHLAB_GRID_SIDE" envDefault:"28"`
	SamplesPerAxis  int           `env:"MATHLAB_SAMPLES_PER_AXIS" envDefault:"4"`
	SignalThreshold float64       `env:"MATHLAB_SIGNAL_THRESHOLD" envDefault:"0.05"`
	Debounce        time.Duration `env:"MATHLAB_DEBOUNCE" envDefault:"150ms"`
	CanvasSize      int           `env:"MATHLAB_CANVAS_SIZE" envDefault:"280"`
	BrushRadius     float64       `env:"MATHLAB_BRUSH_RADIUS" envDefault:"10"`
	LogEvery        int           `env:"MATHLAB_LOG_EVERY" envDefault:"10"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	ModelURL        string
	FetchTimeout    time.Duration
	GridSide        int
	SamplesPerAxis  int
	SignalThreshold float64
	Debounce        time.Duration
	CanvasSize      int
	BrushRadius     float64
	LogEvery        int
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads a Config from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.ModelURL != "" {
		c.ModelURL = o.ModelURL
	}
	if o.FetchTimeout != 0 {
		c.FetchTimeout = o.FetchTimeout
	}
	if o.GridSide > 0 {
		c.GridSide = o.GridSide
	}
	if o.SamplesPerAxis > 0 {
		c.SamplesPerAxis = o.SamplesPerAxis
	}
	if o.SignalThreshold > 0 {
		c.SignalThreshold = o.SignalThreshold
	}
	if o.Debounce > 0 {
		c.Debounce = o.Debounce
	}
	if o.CanvasSize > 0 {
		c.CanvasSize = o.CanvasSize
	}
	if o.BrushRadius > 0 {
		c.BrushRadius = o.BrushRadius
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.ModelURL == "" {
		return errors.New("model url must be set")
	}
	if c.GridSide <= 0 {
		return fmt.Errorf("grid_side must be > 0 (got %d)", c.GridSide)
	}
	if c.SamplesPerAxis <= 0 {
		return fmt.Errorf("samples_per_axis must be > 0 (got %d)", c.SamplesPerAxis)
	}
	if c.CanvasSize < c.GridSide {
		return fmt.Errorf("canvas_size must be >= grid_side (got %d < %d)", c.CanvasSize, c.GridSide)
	}
	if c.SignalThreshold <= 0 || c.SignalThreshold >= 1 {
		return fmt.Errorf("signal_threshold must be in (0,1) (got %g)", c.SignalThreshold)
	}
	if c.BrushRadius <= 0 {
		return fmt.Errorf("brush_radius must be > 0 (got %g)", c.BrushRadius)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must be >= 0 (got %s)", c.Debounce)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 10
	}
	return nil
}
