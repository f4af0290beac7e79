// Package array models the geometry and health state of a TMR sensor ring.
// Sensors are placed around the shaft at golden-angle spacing so that their
// phases are maximally decorrelated; no two sensors ever see the same phase
// of the rotating field.
package array

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// GoldenAngle is the nominal angular spacing between consecutive sensors,
// in degrees.
const GoldenAngle = 137.5

// ErrConfiguration indicates an invalid array configuration. It is raised
// at setup time, before any simulation run is scheduled.
var ErrConfiguration = errors.New("array: invalid configuration")

// Config describes a sensor ring: sensor count, harmonic order of the pole
// ring, per-sensor angular positions, and the set of failed sensors.
//
// Positions are fixed once constructed (optionally perturbed once by
// ApplyPositionTolerance); only the failed-set changes between runs.
type Config struct {
	// NumSensors is the number of sensing elements N around the ring.
	NumSensors int

	// PolePairs is the harmonic order P of the magnet ring.
	PolePairs int

	// Positions holds each sensor's angular position in degrees, in [0, 360).
	Positions []float64

	failed map[int]bool
}

// New creates a sensor ring with numSensors elements reading a polePairs
// magnet ring. Nominal positions follow golden-angle spacing:
// position[i] = (i * 137.5°) mod 360.
func New(numSensors, polePairs int) (*Config, error) {
	if numSensors < 2 {
		return nil, fmt.Errorf("%w: need at least 2 sensors, got %d", ErrConfiguration, numSensors)
	}
	if polePairs < 1 {
		return nil, fmt.Errorf("%w: need at least 1 pole pair, got %d", ErrConfiguration, polePairs)
	}

	positions := make([]float64, numSensors)
	for i := range positions {
		positions[i] = math.Mod(float64(i)*GoldenAngle, 360)
	}

	return &Config{
		NumSensors: numSensors,
		PolePairs:  polePairs,
		Positions:  positions,
		failed:     make(map[int]bool),
	}, nil
}

// ApplyPositionTolerance perturbs every sensor position by an independent
// draw from Uniform(-toleranceDeg, toleranceDeg), wrapped into [0, 360).
// This models manufacturing placement error and is applied at most once,
// at construction time.
func (c *Config) ApplyPositionTolerance(toleranceDeg float64, rng *rand.Rand) {
	if toleranceDeg <= 0 {
		return
	}
	for i := range c.Positions {
		err := (rng.Float64()*2 - 1) * toleranceDeg
		c.Positions[i] = math.Mod(c.Positions[i]+err+360, 360)
	}
}

// MarkFailed marks the given sensor indices as failed. At least one sensor
// must remain active.
func (c *Config) MarkFailed(indices ...int) error {
	next := make(map[int]bool, len(c.failed)+len(indices))
	for i := range c.failed {
		next[i] = true
	}
	for _, i := range indices {
		if i < 0 || i >= c.NumSensors {
			return fmt.Errorf("%w: sensor index %d out of range [0,%d)", ErrConfiguration, i, c.NumSensors)
		}
		next[i] = true
	}
	if len(next) >= c.NumSensors {
		return fmt.Errorf("%w: %d failures would leave no active sensor", ErrConfiguration, len(next))
	}
	c.failed = next
	return nil
}

// MarkRandomFailures marks count distinct randomly chosen sensors as failed,
// replacing any previous failed-set.
func (c *Config) MarkRandomFailures(count int, rng *rand.Rand) error {
	if count >= c.NumSensors {
		return fmt.Errorf("%w: %d failures with only %d sensors", ErrConfiguration, count, c.NumSensors)
	}
	c.failed = make(map[int]bool)
	if count <= 0 {
		return nil
	}
	perm := rng.Perm(c.NumSensors)
	for _, i := range perm[:count] {
		c.failed[i] = true
	}
	return nil
}

// ClearFailures resets the failed-set, returning every sensor to service.
func (c *Config) ClearFailures() {
	c.failed = make(map[int]bool)
}

// Failed reports whether sensor i is marked failed.
func (c *Config) Failed(i int) bool {
	return c.failed[i]
}

// ActiveIndices returns the indices of all non-failed sensors, ascending.
func (c *Config) ActiveIndices() []int {
	active := make([]int, 0, c.NumSensors-len(c.failed))
	for i := 0; i < c.NumSensors; i++ {
		if !c.failed[i] {
			active = append(active, i)
		}
	}
	return active
}

// FailureCount returns the number of sensors currently marked failed.
func (c *Config) FailureCount() int {
	return len(c.failed)
}

// Clone returns a deep copy of the configuration, including the failed-set.
// Campaign workers clone the shared configuration so that per-run failure
// injection never races.
func (c *Config) Clone() *Config {
	positions := make([]float64, len(c.Positions))
	copy(positions, c.Positions)
	failed := make(map[int]bool, len(c.failed))
	for i := range c.failed {
		failed[i] = true
	}
	return &Config{
		NumSensors: c.NumSensors,
		PolePairs:  c.PolePairs,
		Positions:  positions,
		failed:     failed,
	}
}
