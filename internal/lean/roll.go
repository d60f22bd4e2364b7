package lean

import (
	"errors"
	"math"
)

// ErrBadSample marks an orientation sample with a non-finite axis component.
var ErrBadSample = errors.New("orientation sample has non-finite component")

// RollDegrees derives the roll angle from a three-axis acceleration vector
// (gravity included), rotation about the device's long axis:
//
//	roll = atan2(x, sqrt(y² + z²))
//
// Any NaN or infinite component rejects the sample.
func RollDegrees(x, y, z float64) (float64, error) {
	if !finite(x) || !finite(y) || !finite(z) {
		return 0, ErrBadSample
	}
	rad := math.Atan2(x, math.Sqrt(y*y+z*z))
	return rad * 180 / math.Pi, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
