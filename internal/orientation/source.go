// Package orientation adapts the device's orientation hardware into a single
// stream of raw acceleration samples. Two feeds exist, a native accelerometer
// and a device-motion event source; exactly one is selected when a recording
// subscribes and they are never mixed mid-session.
package orientation

import "errors"

// Sample is one three-axis acceleration reading in m/s², gravity included.
type Sample struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}

// Source is anything that can provide raw orientation samples over time.
type Source interface {
	Samples() <-chan Sample
	Close()
}

// Kind names the hardware feed backing a Source.
type Kind string

const (
	KindAccelerometer Kind = "accelerometer"
	KindDeviceMotion  Kind = "devicemotion"
)

var ErrUnknownKind = errors.New("unknown orientation source kind")

// NewSource builds the feed for the platform the client advertised.
func NewSource(kind Kind, requiresPermission bool) (Source, error) {
	switch kind {
	case KindAccelerometer:
		return NewAccelerometerFeed(), nil
	case KindDeviceMotion:
		return NewDeviceMotionFeed(requiresPermission), nil
	default:
		return nil, ErrUnknownKind
	}
}
