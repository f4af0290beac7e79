package montecarlo

import (
	"math/rand/v2"

	"github.com/tmr-array/tmrsim/internal/signal"
)

// Distribution names for tolerance draws.
const (
	DistUniform = "uniform"
	DistNormal  = "normal"
)

// Tolerance describes the spread of one run parameter around its nominal
// value: a relative fraction and the distribution the deviation is drawn
// from.
type Tolerance struct {
	Fraction     float64 `yaml:"fraction" json:"fraction"`
	Distribution string  `yaml:"distribution" json:"distribution"`
}

// Sample applies the tolerance to a nominal value using rng. A uniform
// tolerance draws from nominal*(1 ± U(-f, f)); a normal tolerance treats
// the fraction as one relative standard deviation. A zero tolerance returns
// the nominal value unchanged.
func (t Tolerance) Sample(nominal float64, rng *rand.Rand) float64 {
	if t.Fraction == 0 {
		return nominal
	}
	var deviation float64
	switch t.Distribution {
	case DistNormal:
		deviation = rng.NormFloat64() * t.Fraction
	default:
		deviation = (rng.Float64()*2 - 1) * t.Fraction
	}
	return nominal * (1 + deviation)
}

// ToleranceSet groups the per-parameter tolerances of one campaign. The
// defaults mirror typical component data: amplitude tolerances uniform,
// noise-level tolerance normal.
type ToleranceSet struct {
	FundamentalAmp Tolerance `yaml:"fundamental_amp" json:"fundamental_amp"`
	HarmonicAmp    Tolerance `yaml:"harmonic_amp" json:"harmonic_amp"`
	NoiseLevel     Tolerance `yaml:"noise_level" json:"noise_level"`
	Temperature    Tolerance `yaml:"temperature" json:"temperature"`
	SupplyVoltage  Tolerance `yaml:"supply_voltage" json:"supply_voltage"`
	AirGap         Tolerance `yaml:"air_gap" json:"air_gap"`
}

// DefaultTolerances returns the reference tolerance set: 10% uniform on the
// amplitudes, 20% normal on the noise level, everything else held nominal.
func DefaultTolerances() ToleranceSet {
	return ToleranceSet{
		FundamentalAmp: Tolerance{Fraction: 0.1, Distribution: DistUniform},
		HarmonicAmp:    Tolerance{Fraction: 0.1, Distribution: DistUniform},
		NoiseLevel:     Tolerance{Fraction: 0.2, Distribution: DistNormal},
	}
}

// Draw builds a fresh RunParameters instance by applying every tolerance to
// the nominal parameters. The nominal value object is never mutated.
func (ts ToleranceSet) Draw(nominal signal.RunParameters, rng *rand.Rand) signal.RunParameters {
	p := nominal
	p.FundamentalAmp = ts.FundamentalAmp.Sample(nominal.FundamentalAmp, rng)
	p.HarmonicAmp = ts.HarmonicAmp.Sample(nominal.HarmonicAmp, rng)
	p.NoiseLevel = ts.NoiseLevel.Sample(nominal.NoiseLevel, rng)
	p.Temperature = ts.Temperature.Sample(nominal.Temperature, rng)
	p.SupplyVoltage = ts.SupplyVoltage.Sample(nominal.SupplyVoltage, rng)
	p.AirGap = ts.AirGap.Sample(nominal.AirGap, rng)
	return p
}
