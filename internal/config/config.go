// Package config provides campaign descriptor loading for tmrsim.
// It supports loading from YAML files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tmr-array/tmrsim/internal/frontend"
	"github.com/tmr-array/tmrsim/internal/montecarlo"
)

// Campaign contains everything needed to set up a Monte Carlo campaign.
type Campaign struct {
	// Rings lists the array geometries to evaluate.
	Rings []montecarlo.RingSpec `yaml:"rings" json:"rings"`

	// Faults lists the failure scenarios to evaluate per ring.
	Faults []montecarlo.FaultScenario `yaml:"faults" json:"faults"`

	// NumRuns is the number of Monte Carlo draws per (ring, fault) pair.
	NumRuns int `yaml:"num_runs" json:"num_runs"`

	// Steps is the number of angle samples per full-rotation sweep.
	Steps int `yaml:"steps" json:"steps"`

	// Workers caps the worker pool; 0 uses every CPU.
	Workers int `yaml:"workers" json:"workers"`

	// Seed is the campaign master seed.
	Seed uint64 `yaml:"seed" json:"seed"`

	// RPM is the shaft speed; 0 disables speed effects.
	RPM float64 `yaml:"rpm" json:"rpm"`

	// Tolerances configures the per-parameter spread of each draw.
	Tolerances montecarlo.ToleranceSet `yaml:"tolerances" json:"tolerances"`

	// Conditioning enables the analog front-end and ADC stage.
	Conditioning bool `yaml:"conditioning" json:"conditioning"`

	// Frontend holds the front-end characteristics used when Conditioning
	// is on.
	Frontend frontend.Config `yaml:"frontend" json:"frontend"`

	// Thresholds are the acceptance criteria scenarios are validated
	// against; nil disables validation.
	Thresholds *montecarlo.Thresholds `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`

	// Timeout bounds the whole campaign; 0 means no limit.
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// Logging configures operational output.
	Logging Logging `yaml:"logging" json:"logging"`
}

// Duration wraps time.Duration so YAML files can use strings like "30s" or
// "5m" instead of nanosecond counts.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Logging configures tmrsim's logging behavior.
type Logging struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables per-run tracing to <output dir>/runs.jsonl.
	Level string `yaml:"level" json:"level"`
}

// Default returns a Campaign with the reference configurations and fault
// scenarios of the sensor array study.
func Default() *Campaign {
	return &Campaign{
		Rings: []montecarlo.RingSpec{
			{Name: "standard", Sensors: 8, PolePairs: 7, PositionToleranceDeg: 0.2},
			{Name: "medium", Sensors: 12, PolePairs: 11, PositionToleranceDeg: 0.2},
			{Name: "high", Sensors: 16, PolePairs: 17, PositionToleranceDeg: 0.2},
			{Name: "fault-tolerant", Sensors: 16, PolePairs: 13, PositionToleranceDeg: 0.2},
		},
		Faults: []montecarlo.FaultScenario{
			{Name: "no-failures", Failures: 0},
			{Name: "one-failure", Failures: 1},
			{Name: "two-failures", Failures: 2},
			{Name: "three-failures", Failures: 3},
		},
		NumRuns:    50,
		Steps:      360,
		Seed:       1,
		Tolerances: montecarlo.DefaultTolerances(),
		Frontend:   frontend.DefaultConfig(),
		Logging:    Logging{Level: "info"},
	}
}

// Load loads the campaign descriptor: defaults, overridden by the YAML file
// at path when non-empty, overridden by environment variables.
func Load(path string) (*Campaign, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading campaign file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parsing campaign file: %w", err)
		}
	}

	applyEnvOverrides(c)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that the descriptor is internally consistent.
func (c *Campaign) Validate() error {
	if len(c.Rings) == 0 {
		return fmt.Errorf("config: no rings defined")
	}
	for _, r := range c.Rings {
		if r.Name == "" {
			return fmt.Errorf("config: ring with %d sensors has no name", r.Sensors)
		}
		if r.Sensors < 2 {
			return fmt.Errorf("config: ring %q needs at least 2 sensors, got %d", r.Name, r.Sensors)
		}
		if r.PolePairs < 1 {
			return fmt.Errorf("config: ring %q needs at least 1 pole pair, got %d", r.Name, r.PolePairs)
		}
		if r.PositionToleranceDeg < 0 {
			return fmt.Errorf("config: ring %q has negative position tolerance", r.Name)
		}
	}
	for _, f := range c.Faults {
		if f.Failures < 0 {
			return fmt.Errorf("config: fault scenario %q has negative failure count", f.Name)
		}
	}
	if c.NumRuns < 1 {
		return fmt.Errorf("config: num_runs must be at least 1, got %d", c.NumRuns)
	}
	if c.Steps < 1 {
		return fmt.Errorf("config: steps must be at least 1, got %d", c.Steps)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be non-negative, got %d", c.Workers)
	}
	if c.RPM < 0 {
		return fmt.Errorf("config: rpm must be non-negative, got %v", c.RPM)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must be non-negative, got %v", c.Timeout)
	}
	validLevels := map[string]bool{"": true, "info": true, "debug": true, "trace": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("config: invalid log level %q (valid: info, debug, trace)", c.Logging.Level)
	}
	return nil
}

// Options converts the descriptor into campaign options.
func (c *Campaign) Options() montecarlo.Options {
	opts := montecarlo.Options{
		Rings:      c.Rings,
		Faults:     c.Faults,
		NumRuns:    c.NumRuns,
		Steps:      c.Steps,
		Workers:    c.Workers,
		Seed:       c.Seed,
		RPM:        c.RPM,
		Tolerances: c.Tolerances,
		Thresholds: c.Thresholds,
		Timeout:    time.Duration(c.Timeout),
	}
	if c.Conditioning {
		fe := c.Frontend
		opts.Frontend = &fe
	}
	return opts
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(c *Campaign) {
	if v := os.Getenv("TMRSIM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TMRSIM_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Seed = seed
		}
	}
	if v := os.Getenv("TMRSIM_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil && workers >= 0 {
			c.Workers = workers
		}
	}
}
