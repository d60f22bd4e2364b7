package location

import "time"

// Status is the device-reported state of the position capability.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
)

const (
	// RequestTimeout bounds how long a permission prompt waits for the
	// device to report back.
	RequestTimeout = 30 * time.Second

	// MaxFixAge is the oldest cached fix still accepted into a recording.
	MaxFixAge = 5 * time.Second
)

// WatchOptions mirror the position-watch settings pushed to the device.
type WatchOptions struct {
	HighAccuracy bool          `json:"high_accuracy"`
	Timeout      time.Duration `json:"timeout"`
	MaximumAge   time.Duration `json:"maximum_age"`
}

func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		HighAccuracy: true,
		Timeout:      RequestTimeout,
		MaximumAge:   MaxFixAge,
	}
}

// Fix is one accepted position sample. Speed is nil when the fix carried no
// speed estimate.
type Fix struct {
	Lng       float64  `json:"lng"`
	Lat       float64  `json:"lat"`
	Timestamp int64    `json:"timestamp"` // unix milliseconds
	SpeedMps  *float64 `json:"speed_mps,omitempty"`
}
