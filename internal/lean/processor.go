package lean

import (
	"math"
	"sync"
)

const (
	// SmoothingAlpha weights the newest calibrated reading in the
	// exponential smoother.
	SmoothingAlpha = 0.15

	// MaxAngleDeg caps implausible spikes from momentary bad readings.
	MaxAngleDeg = 70.0

	// MotionLockSpeedMps is 10 km/h. Below it the output is forced to zero
	// so handling noise while stationary never registers as lean.
	MotionLockSpeedMps = 10.0 / 3.6
)

// Processor turns raw roll readings into a calibrated, smoothed, clamped lean
// magnitude and tracks per-side peaks. It is stateful across calls and safe
// for concurrent use: the orientation sampler feeds Process while calibrate
// requests arrive on handler goroutines.
type Processor struct {
	mu           sync.Mutex
	offset       float64
	prevSmoothed float64
	maxLeft      float64
	maxRight     float64
}

func NewProcessor(offset float64) *Processor {
	return &Processor{offset: offset}
}

// SetOffset replaces the calibration offset, the raw roll treated as upright.
func (p *Processor) SetOffset(offset float64) {
	p.mu.Lock()
	p.offset = offset
	p.mu.Unlock()
}

func (p *Processor) Offset() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// Process applies the pipeline to one raw roll sample, in order: calibration
// subtraction, motion lock, exponential smoothing, reality clamp. The motion
// lock runs before smoothing so a stop zeroes the output instantly instead of
// decaying. Returns the lean magnitude, always in [0, MaxAngleDeg].
func (p *Processor) Process(rawDeg, speedMps float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	calibrated := rawDeg - p.offset

	if speedMps < MotionLockSpeedMps {
		p.prevSmoothed = 0
		return 0
	}

	smoothed := SmoothingAlpha*calibrated + (1-SmoothingAlpha)*p.prevSmoothed
	p.prevSmoothed = smoothed

	final := math.Min(math.Abs(smoothed), MaxAngleDeg)

	if final > 0 {
		if calibrated < 0 {
			if final > p.maxLeft {
				p.maxLeft = final
			}
		} else if final > p.maxRight {
			p.maxRight = final
		}
	}
	return final
}

// Peaks returns the per-side maxima recorded since the last ResetPeaks.
func (p *Processor) Peaks() (left, right float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxLeft, p.maxRight
}

// ResetPeaks clears peak and smoothing state for a new ride.
func (p *Processor) ResetPeaks() {
	p.mu.Lock()
	p.maxLeft = 0
	p.maxRight = 0
	p.prevSmoothed = 0
	p.mu.Unlock()
}
