// Package signal produces the analog output of each TMR element for a given
// mechanical angle and run parameters. Each sensor sees the fundamental plus
// the Pth harmonic of the rotating field, shifted by its own angular
// position, with air-gap, temperature, supply, and noise effects applied.
package signal

import (
	"math"
	"math/rand/v2"

	"github.com/tmr-array/tmrsim/internal/array"
)

// Vector maps sensor index to its instantaneous output. Failed sensors
// always read exactly zero.
type Vector []float64

// Synthesizer generates sensor outputs for one ring configuration. It is
// stateless apart from the read-only configuration; the random source is
// threaded through Generate so callers control determinism per run.
type Synthesizer struct {
	ring *array.Config
}

// NewSynthesizer creates a synthesizer for the given sensor ring.
func NewSynthesizer(ring *array.Config) *Synthesizer {
	return &Synthesizer{ring: ring}
}

// Generate computes the output vector at mechanical angle theta (degrees)
// for the given run parameters and shaft speed in RPM.
//
// For active sensor i at position phi:
//
//	s = A1*sin(theta+phi) + AP*sin(P*(theta+phi)) + electrical + speed noise
//
// scaled by the inverse-square air-gap factor, the linear temperature
// coefficient around 25 °C, and the supply voltage normalized to 5 V.
//
// The same (theta, params, rng state) always reproduces the same vector.
func (s *Synthesizer) Generate(theta float64, params RunParameters, rpm float64, rng *rand.Rand) Vector {
	gapFactor := 1.0
	if params.AirGap > 0 {
		// Field strength falls with the square of the distance.
		gapFactor = (NominalAirGap / params.AirGap) * (NominalAirGap / params.AirGap)
	}
	tempScale := 1.0 + (params.Temperature-NominalTemperature)*TempCoefficient
	supplyScale := params.SupplyVoltage / NominalSupplyVoltage
	speedFactor := rpm / 10000

	p := float64(s.ring.PolePairs)
	out := make(Vector, s.ring.NumSensors)
	for i := 0; i < s.ring.NumSensors; i++ {
		if s.ring.Failed(i) {
			out[i] = 0
			continue
		}
		phi := s.ring.Positions[i]

		fundamental := params.FundamentalAmp * math.Sin(radians(theta+phi))
		harmonic := params.HarmonicAmp * math.Sin(radians(p*(theta+phi)))

		v := (fundamental + harmonic) * gapFactor

		if params.NoiseLevel > 0 {
			v += params.NoiseLevel * rng.NormFloat64()
			if rpm > 0 {
				// Mechanical vibration noise grows with shaft speed.
				v += speedFactor * params.NoiseLevel * rng.NormFloat64()
			}
		}

		out[i] = v * tempScale * supplyScale
	}
	return out
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
