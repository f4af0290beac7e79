// Package frontend models the analog signal conditioning chain between the
// TMR elements and the demodulator: amplification, offset, bandwidth-limited
// noise, a small polynomial nonlinearity, and ADC quantization.
package frontend

import (
	"math"
	"math/rand/v2"

	"github.com/tmr-array/tmrsim/internal/array"
	"github.com/tmr-array/tmrsim/internal/signal"
)

// Config holds the analog front-end characteristics shared by every channel.
type Config struct {
	// Gain is the amplifier gain applied to each sensor output.
	Gain float64 `yaml:"gain" json:"gain"`

	// FilterCutoff is the low-pass filter cutoff frequency in Hz.
	FilterCutoff float64 `yaml:"filter_cutoff" json:"filter_cutoff"`

	// OffsetVoltage is the op-amp input offset in volts.
	OffsetVoltage float64 `yaml:"offset_voltage" json:"offset_voltage"`

	// NoiseDensity is the input-referred noise density in V/sqrt(Hz).
	NoiseDensity float64 `yaml:"noise_density" json:"noise_density"`

	// Nonlinearity is the quadratic distortion coefficient.
	Nonlinearity float64 `yaml:"nonlinearity" json:"nonlinearity"`
}

// DefaultConfig returns the reference front-end characteristics.
func DefaultConfig() Config {
	return Config{
		Gain:          10.0,
		FilterCutoff:  20e3,
		OffsetVoltage: 1.0e-3,
		NoiseDensity:  10.0e-9,
		Nonlinearity:  0.01,
	}
}

// Pipeline applies the analog front end and ADC model to raw sensor vectors.
// Failed channels stay at exactly zero through every stage.
type Pipeline struct {
	ring   *array.Config
	config Config
}

// NewPipeline creates a conditioning pipeline for the given sensor ring.
func NewPipeline(ring *array.Config, config Config) *Pipeline {
	return &Pipeline{ring: ring, config: config}
}

// Condition applies gain, offset, bandwidth-limited Gaussian noise, and the
// quadratic nonlinearity to each active channel.
func (p *Pipeline) Condition(raw signal.Vector, params signal.RunParameters, rng *rand.Rand) signal.Vector {
	// Noise bandwidth is set by whichever rolls off first, the filter or
	// the op-amp itself.
	bw := math.Min(p.config.FilterCutoff, params.OpAmpBandwidth)
	noiseRMS := p.config.NoiseDensity * math.Sqrt(bw)
	offset := p.config.OffsetVoltage / params.SupplyVoltage

	out := make(signal.Vector, len(raw))
	for i, v := range raw {
		if p.ring.Failed(i) {
			continue
		}
		amplified := v*p.config.Gain + offset
		amplified += noiseRMS * rng.NormFloat64()
		amplified += p.config.Nonlinearity * amplified * amplified
		out[i] = amplified
	}
	return out
}

// Digitize models ADC conversion: each active channel is clamped to
// [0, fullScale], quantized to 2^resolutionBits levels, and rescaled to
// volts. Re-digitizing an already digitized vector at the same resolution
// returns identical values.
func (p *Pipeline) Digitize(conditioned signal.Vector, resolutionBits int, fullScale float64) signal.Vector {
	steps := math.Pow(2, float64(resolutionBits))
	lsb := fullScale / steps

	out := make(signal.Vector, len(conditioned))
	for i, v := range conditioned {
		if p.ring.Failed(i) {
			continue
		}
		clamped := math.Max(0, math.Min(v, fullScale))
		out[i] = math.Round(clamped/lsb) * lsb
	}
	return out
}
