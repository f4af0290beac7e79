// Package demod recovers absolute mechanical angle from the combined sensor
// outputs. Synchronous demodulation at the fundamental and the Pth harmonic
// uses the sensors' phase diversity as a discrete transform basis: the
// fundamental yields a coarse angle, and the P-times-finer harmonic phase is
// placed inside the coarse cycle it selects (a vernier construction).
package demod

import (
	"errors"
	"fmt"
	"math"

	"github.com/tmr-array/tmrsim/internal/array"
	"github.com/tmr-array/tmrsim/internal/signal"
)

// ErrInsufficientSensors indicates that no active sensors remain for
// demodulation. The setup-time failure guard should make this unreachable,
// but it still fails loudly if triggered.
var ErrInsufficientSensors = errors.New("demod: no active sensors")

// Result holds everything the demodulator recovers from one sensor vector.
// It is ephemeral: computed per angle sample and never persisted beyond one
// evaluation.
type Result struct {
	// FundamentalPhase is the coarse angle from the base frequency, [0, 360).
	FundamentalPhase float64

	// HarmonicPhase is the fine phase from the Pth harmonic, [0, 360).
	HarmonicPhase float64

	// Sector is the coarse angular slot of width 360/P identified from the
	// fundamental phase.
	Sector int

	// Unwrapped is the reconstructed absolute angle in [0, 360).
	Unwrapped float64

	// Error is the signed reconstruction error in (-180, 180].
	Error float64
}

// Demodulator extracts angle from sensor vectors for one ring configuration.
type Demodulator struct {
	ring *array.Config
}

// NewDemodulator creates a demodulator for the given sensor ring.
func NewDemodulator(ring *array.Config) *Demodulator {
	return &Demodulator{ring: ring}
}

// Demodulate recovers the absolute angle from vec and computes the signed
// error against the true angle thetaTrue (degrees). Only the given active
// sensor indices contribute, so a reduced ring degrades gracefully instead
// of failing.
//
// The sensor model is linear in the four quadrature components:
//
//	s_i = A1·sin(theta)·cos(phi_i) + A1·cos(theta)·sin(phi_i)
//	    + AP·sin(P·theta)·cos(P·phi_i) + AP·cos(P·theta)·sin(P·phi_i)
//
// With four or more active sensors the components are recovered by solving
// the normal equations of this basis, which corrects for the residual
// correlation between basis columns at golden-angle positions. Below four
// sensors the system is underdetermined and the estimate falls back to the
// plain correlation sums renormalized by the active count.
//
// The fundamental phase selects the harmonic cycle; the harmonic phase
// divided by P positions the angle within it.
func (d *Demodulator) Demodulate(vec signal.Vector, active []int, thetaTrue float64) (Result, error) {
	k := len(active)
	if k < 1 {
		return Result{}, ErrInsufficientSensors
	}

	p := float64(d.ring.PolePairs)

	// Accumulate the normal equations of the quadrature basis.
	var ata [4][4]float64
	var atb [4]float64
	for _, i := range active {
		if i < 0 || i >= len(vec) {
			return Result{}, fmt.Errorf("demod: active index %d out of range for %d-sensor vector", i, len(vec))
		}
		phi := d.ring.Positions[i] * math.Pi / 180
		row := [4]float64{math.Cos(phi), math.Sin(phi), math.Cos(p * phi), math.Sin(p * phi)}
		for a := 0; a < 4; a++ {
			for b := a; b < 4; b++ {
				ata[a][b] += row[a] * row[b]
			}
			atb[a] += row[a] * vec[i]
		}
	}
	for a := 1; a < 4; a++ {
		for b := 0; b < a; b++ {
			ata[a][b] = ata[b][a]
		}
	}

	var comp [4]float64
	solved := false
	if k >= 4 {
		comp, solved = solve4(ata, atb)
	}
	if !solved {
		// Correlation estimate: the projection without orthogonality
		// correction. Exact recovery is impossible here, but the phase
		// information that survives still yields a usable coarse angle.
		kf := float64(k)
		for a := 0; a < 4; a++ {
			comp[a] = atb[a] / kf
		}
	}

	// comp = (A1·sin θ, A1·cos θ, AP·sin Pθ, AP·cos Pθ).
	fundPhase := Fold360(math.Atan2(comp[0], comp[1]) * 180 / math.Pi)
	harmPhase := Fold360(math.Atan2(comp[2], comp[3]) * 180 / math.Pi)

	sectorWidth := 360 / p
	sector := int(math.Floor(fundPhase / sectorWidth))

	// Vernier unwrap: the harmonic phase repeats P times per revolution;
	// the fundamental picks which cycle applies. Rounding against the
	// coarse angle tolerates fundamental-phase noise up to half a sector.
	cycle := math.Round((fundPhase - harmPhase/p) / sectorWidth)
	cycle = math.Mod(cycle+p, p)
	unwrapped := Fold360(cycle*sectorWidth + harmPhase/p)

	return Result{
		FundamentalPhase: fundPhase,
		HarmonicPhase:    harmPhase,
		Sector:           sector,
		Unwrapped:        unwrapped,
		Error:            WrapSigned180(thetaTrue - unwrapped),
	}, nil
}

// DemodulateActive runs Demodulate over the ring's current non-failed
// sensor set. This is the fault-tolerance path: renormalization by the
// active count is the only adaptation a degraded ring needs.
func (d *Demodulator) DemodulateActive(vec signal.Vector, thetaTrue float64) (Result, error) {
	return d.Demodulate(vec, d.ring.ActiveIndices(), thetaTrue)
}

// solve4 solves the 4x4 system ata·x = atb by Gaussian elimination with
// partial pivoting. ok is false when the system is singular, which happens
// when the active positions make the quadrature basis rank-deficient.
func solve4(ata [4][4]float64, atb [4]float64) (x [4]float64, ok bool) {
	var m [4][5]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m[i][j] = ata[i][j]
		}
		m[i][4] = atb[i]
	}

	for col := 0; col < 4; col++ {
		pivot := col
		for r := col + 1; r < 4; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return x, false
		}
		m[col], m[pivot] = m[pivot], m[col]

		for r := 0; r < 4; r++ {
			if r == col {
				continue
			}
			f := m[r][col] / m[col][col]
			for c := col; c < 5; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}

	for i := 0; i < 4; i++ {
		x[i] = m[i][4] / m[i][i]
	}
	return x, true
}
