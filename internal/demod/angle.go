package demod

import "math"

// MaxResolutionBits caps the resolution metric when the measured error is
// exactly zero, where log2(360/(2*err)) is undefined. 32 bits sits well
// above anything the array can achieve and stays finite in aggregates.
const MaxResolutionBits = 32.0

// WrapSigned180 folds an angle difference into (-180, 180].
func WrapSigned180(deg float64) float64 {
	w := math.Mod(deg+180, 360)
	if w < 0 {
		w += 360
	}
	w -= 180
	if w == -180 {
		return 180
	}
	return w
}

// Fold360 folds an angle into [0, 360).
func Fold360(deg float64) float64 {
	w := math.Mod(deg, 360)
	if w < 0 {
		w += 360
	}
	return w
}

// ResolutionBits converts an absolute angular error in degrees into the
// log-scale accuracy metric log2(360/(2*err)). Zero error is clamped to
// MaxResolutionBits rather than producing +Inf.
func ResolutionBits(absErr float64) float64 {
	if absErr <= 0 {
		return MaxResolutionBits
	}
	bits := math.Log2(360 / (2 * absErr))
	if bits > MaxResolutionBits {
		return MaxResolutionBits
	}
	return bits
}
