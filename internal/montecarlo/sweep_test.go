package montecarlo

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/tmr-array/tmrsim/internal/array"
	"github.com/tmr-array/tmrsim/internal/demod"
	"github.com/tmr-array/tmrsim/internal/signal"
)

func TestSweepNoiseless(t *testing.T) {
	ring, err := array.New(8, 7)
	if err != nil {
		t.Fatal(err)
	}
	params := signal.DefaultParameters()
	params.NoiseLevel = 0

	rng := rand.New(rand.NewPCG(1, 1))
	summary, err := Sweep(ring, params, SweepOptions{Steps: 360}, rng)
	if err != nil {
		t.Fatal(err)
	}

	if summary.ErrorMax > 1e-9 {
		t.Errorf("noiseless ErrorMax = %v, want below 1e-9", summary.ErrorMax)
	}
	if summary.ResolutionBitsMax != demod.MaxResolutionBits && summary.ResolutionBitsMax < 30 {
		t.Errorf("noiseless ResolutionBitsMax = %v, want near ceiling", summary.ResolutionBitsMax)
	}
	if summary.Latency != nil {
		t.Error("Latency set for a zero-RPM sweep")
	}
}

func TestSweepNoisy(t *testing.T) {
	ring, err := array.New(8, 7)
	if err != nil {
		t.Fatal(err)
	}
	params := signal.DefaultParameters()

	rng := rand.New(rand.NewPCG(2, 2))
	summary, err := Sweep(ring, params, SweepOptions{Steps: 360}, rng)
	if err != nil {
		t.Fatal(err)
	}

	if summary.ErrorMax <= 0 {
		t.Errorf("noisy ErrorMax = %v, want positive", summary.ErrorMax)
	}
	if summary.ErrorP99 > summary.ErrorMax {
		t.Errorf("ErrorP99 %v exceeds ErrorMax %v", summary.ErrorP99, summary.ErrorMax)
	}
	if summary.ResolutionBitsP99 < summary.ResolutionBitsMax {
		t.Errorf("p99 resolution %v below max-error resolution %v",
			summary.ResolutionBitsP99, summary.ResolutionBitsMax)
	}
	if math.IsNaN(summary.ErrorStd) || math.IsInf(summary.ErrorStd, 0) {
		t.Errorf("ErrorStd = %v", summary.ErrorStd)
	}
}

func TestSweepLatencyMetrics(t *testing.T) {
	ring, err := array.New(8, 7)
	if err != nil {
		t.Fatal(err)
	}
	params := signal.DefaultParameters()
	params.NoiseLevel = 0

	rng := rand.New(rand.NewPCG(3, 3))
	summary, err := Sweep(ring, params, SweepOptions{Steps: 90, RPM: 10000}, rng)
	if err != nil {
		t.Fatal(err)
	}

	if summary.Latency == nil {
		t.Fatal("Latency missing for RPM > 0")
	}
	// 10000 RPM = 60000 deg/s; 100us processing delay = 6 deg of lag.
	if math.Abs(summary.Latency.ProcessingDelayDeg-6) > 1e-9 {
		t.Errorf("ProcessingDelayDeg = %v, want 6", summary.Latency.ProcessingDelayDeg)
	}
	// Half a 10 kHz sampling period at 60000 deg/s = 3 deg.
	if math.Abs(summary.Latency.SamplingDelayDeg-3) > 1e-9 {
		t.Errorf("SamplingDelayDeg = %v, want 3", summary.Latency.SamplingDelayDeg)
	}
	if math.Abs(summary.Latency.TotalDeg-9) > 1e-9 {
		t.Errorf("TotalDeg = %v, want 9", summary.Latency.TotalDeg)
	}
}

func TestSweepInvalidSteps(t *testing.T) {
	ring, err := array.New(8, 7)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Sweep(ring, signal.DefaultParameters(), SweepOptions{Steps: 0}, rand.New(rand.NewPCG(1, 1))); err == nil {
		t.Error("Sweep with 0 steps should fail")
	}
}

func TestSweepDeterministic(t *testing.T) {
	ring, err := array.New(8, 7)
	if err != nil {
		t.Fatal(err)
	}
	params := signal.DefaultParameters()

	a, err := Sweep(ring, params, SweepOptions{Steps: 120}, rand.New(rand.NewPCG(7, 3)))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Sweep(ring, params, SweepOptions{Steps: 120}, rand.New(rand.NewPCG(7, 3)))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("identical seeds produced different summaries:\n%+v\n%+v", a, b)
	}
}
