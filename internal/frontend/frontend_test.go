package frontend

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/tmr-array/tmrsim/internal/array"
	"github.com/tmr-array/tmrsim/internal/signal"
)

func newPipeline(t *testing.T, failures ...int) (*Pipeline, *array.Config) {
	t.Helper()
	ring, err := array.New(8, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) > 0 {
		if err := ring.MarkFailed(failures...); err != nil {
			t.Fatal(err)
		}
	}
	return NewPipeline(ring, DefaultConfig()), ring
}

func TestConditionAppliesGainAndOffset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoiseDensity = 0
	cfg.Nonlinearity = 0
	ring, err := array.New(8, 7)
	if err != nil {
		t.Fatal(err)
	}
	p := NewPipeline(ring, cfg)

	params := signal.DefaultParameters()
	raw := make(signal.Vector, 8)
	for i := range raw {
		raw[i] = 0.1
	}

	rng := rand.New(rand.NewPCG(1, 1))
	out := p.Condition(raw, params, rng)

	wantOffset := cfg.OffsetVoltage / params.SupplyVoltage
	for i, v := range out {
		want := 0.1*cfg.Gain + wantOffset
		if math.Abs(v-want) > 1e-12 {
			t.Errorf("channel %d: got %.9f, want %.9f", i, v, want)
		}
	}
}

func TestConditionSkipsFailedChannels(t *testing.T) {
	p, _ := newPipeline(t, 2, 5)

	raw := make(signal.Vector, 8)
	for i := range raw {
		raw[i] = 0.5
	}
	out := p.Condition(raw, signal.DefaultParameters(), rand.New(rand.NewPCG(1, 1)))

	if out[2] != 0 || out[5] != 0 {
		t.Errorf("failed channels read %v and %v after conditioning, want 0", out[2], out[5])
	}
	if out[0] == 0 {
		t.Error("active channel 0 reads 0 after conditioning")
	}
}

func TestDigitizeQuantizesToLSB(t *testing.T) {
	p, _ := newPipeline(t)

	in := signal.Vector{1.23456789, 2.5, 0.000001, 3.999999, 1, 1, 1, 1}
	out := p.Digitize(in, 12, 5.0)

	lsb := 5.0 / math.Pow(2, 12)
	for i, v := range out {
		// Every output must sit on a quantization level.
		levels := v / lsb
		if math.Abs(levels-math.Round(levels)) > 1e-9 {
			t.Errorf("channel %d: %.9f is not a multiple of lsb %.9f", i, v, lsb)
		}
		if math.Abs(v-in[i]) > lsb/2+1e-12 {
			t.Errorf("channel %d: quantization moved %.9f to %.9f, more than lsb/2", i, in[i], v)
		}
	}
}

func TestDigitizeClamps(t *testing.T) {
	p, _ := newPipeline(t)

	in := signal.Vector{-3, 99, 2.5, 0, 0, 0, 0, 0.1}
	out := p.Digitize(in, 16, 5.0)

	if out[0] != 0 {
		t.Errorf("negative input digitized to %v, want clamp to 0", out[0])
	}
	if out[1] != 5.0 {
		t.Errorf("over-range input digitized to %v, want clamp to full scale 5.0", out[1])
	}
}

func TestDigitizeIdempotent(t *testing.T) {
	p, _ := newPipeline(t)

	in := signal.Vector{0.1, 1.7, 2.33, 3.14159, 4.9, 0.5, 1.1, 2.2}
	once := p.Digitize(in, 14, 5.0)
	twice := p.Digitize(once, 14, 5.0)

	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("channel %d: re-digitizing changed %.12f to %.12f", i, once[i], twice[i])
		}
	}
}
