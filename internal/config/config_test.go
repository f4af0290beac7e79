package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tmr-array/tmrsim/internal/montecarlo"
)

func TestDefault(t *testing.T) {
	c := Default()

	if len(c.Rings) != 4 {
		t.Fatalf("expected 4 reference rings, got %d", len(c.Rings))
	}
	if c.Rings[0].Name != "standard" || c.Rings[0].Sensors != 8 || c.Rings[0].PolePairs != 7 {
		t.Errorf("unexpected standard ring: %+v", c.Rings[0])
	}
	if len(c.Faults) != 4 {
		t.Errorf("expected 4 fault scenarios, got %d", len(c.Faults))
	}
	if c.Faults[0].Failures != 0 || c.Faults[3].Failures != 3 {
		t.Errorf("unexpected fault scenarios: %+v", c.Faults)
	}
	if c.Conditioning {
		t.Error("conditioning should be off by default")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/campaign.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaign.yaml")
	data := `
rings:
  - name: tiny
    sensors: 5
    pole_pairs: 3
faults:
  - name: none
    failures: 0
num_runs: 7
steps: 90
seed: 42
rpm: 3000
conditioning: true
timeout: 30s
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(c.Rings) != 1 || c.Rings[0].Name != "tiny" {
		t.Errorf("rings not overridden: %+v", c.Rings)
	}
	if c.NumRuns != 7 || c.Steps != 90 || c.Seed != 42 || c.RPM != 3000 {
		t.Errorf("scalar fields not loaded: %+v", c)
	}
	if !c.Conditioning {
		t.Error("conditioning not loaded")
	}
	if time.Duration(c.Timeout) != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", time.Duration(c.Timeout))
	}
	if c.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", c.Logging.Level)
	}
	// Fields absent from the file keep their defaults.
	if c.Tolerances.FundamentalAmp.Fraction == 0 {
		t.Error("tolerances should keep defaults when absent from file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaign.yaml")
	if err := os.WriteFile(path, []byte("rings: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Campaign)
		wantErr bool
	}{
		{"defaults", func(c *Campaign) {}, false},
		{"no rings", func(c *Campaign) { c.Rings = nil }, true},
		{"unnamed ring", func(c *Campaign) { c.Rings[0].Name = "" }, true},
		{"one sensor", func(c *Campaign) { c.Rings[0].Sensors = 1 }, true},
		{"zero pole pairs", func(c *Campaign) { c.Rings[0].PolePairs = 0 }, true},
		{"negative position tolerance", func(c *Campaign) { c.Rings[0].PositionToleranceDeg = -0.1 }, true},
		{"negative failures", func(c *Campaign) { c.Faults[0].Failures = -1 }, true},
		{"zero runs", func(c *Campaign) { c.NumRuns = 0 }, true},
		{"zero steps", func(c *Campaign) { c.Steps = 0 }, true},
		{"negative workers", func(c *Campaign) { c.Workers = -1 }, true},
		{"negative rpm", func(c *Campaign) { c.RPM = -100 }, true},
		{"negative timeout", func(c *Campaign) { c.Timeout = Duration(-time.Second) }, true},
		{"bad log level", func(c *Campaign) { c.Logging.Level = "verbose" }, true},
		{"trace log level", func(c *Campaign) { c.Logging.Level = "trace" }, false},
		{"no faults", func(c *Campaign) { c.Faults = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TMRSIM_LOG_LEVEL", "trace")
	t.Setenv("TMRSIM_SEED", "99")
	t.Setenv("TMRSIM_WORKERS", "2")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Logging.Level != "trace" {
		t.Errorf("log level = %q, want trace", c.Logging.Level)
	}
	if c.Seed != 99 {
		t.Errorf("seed = %d, want 99", c.Seed)
	}
	if c.Workers != 2 {
		t.Errorf("workers = %d, want 2", c.Workers)
	}
}

func TestEnvOverridesInvalidIgnored(t *testing.T) {
	t.Setenv("TMRSIM_SEED", "not-a-number")
	t.Setenv("TMRSIM_WORKERS", "-3")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Seed != Default().Seed {
		t.Errorf("invalid seed override should be ignored, got %d", c.Seed)
	}
	if c.Workers != Default().Workers {
		t.Errorf("invalid workers override should be ignored, got %d", c.Workers)
	}
}

func TestOptions(t *testing.T) {
	c := Default()
	c.Workers = 3
	c.RPM = 6000
	c.Thresholds = &montecarlo.Thresholds{MinHealthyBits: 17, MinDegradedBits: 14}

	opts := c.Options()
	if len(opts.Rings) != len(c.Rings) {
		t.Errorf("rings not carried over")
	}
	if opts.Workers != 3 || opts.RPM != 6000 {
		t.Errorf("scalar options not carried over: %+v", opts)
	}
	if opts.Frontend != nil {
		t.Error("frontend should be nil when conditioning is off")
	}
	if opts.Thresholds == nil || opts.Thresholds.MinHealthyBits != 17 {
		t.Errorf("thresholds not carried over: %+v", opts.Thresholds)
	}

	c.Conditioning = true
	opts = c.Options()
	if opts.Frontend == nil {
		t.Fatal("frontend should be set when conditioning is on")
	}
	if opts.Frontend.Gain != c.Frontend.Gain {
		t.Errorf("frontend gain = %v, want %v", opts.Frontend.Gain, c.Frontend.Gain)
	}
}
