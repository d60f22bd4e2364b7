package orientation

import "sync"

type feed struct {
	mu     sync.Mutex
	ch     chan Sample
	closed bool
}

func newFeed() feed {
	return feed{ch: make(chan Sample, 64)}
}

func (f *feed) push(s Sample) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.ch <- s:
		return true
	default:
		return false
	}
}

func (f *feed) Samples() <-chan Sample {
	return f.ch
}

func (f *feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
}

// AccelerometerFeed is the native accelerometer source: the client pushes
// plain [x, y, z] readings at UI-rate cadence.
type AccelerometerFeed struct {
	feed
}

func NewAccelerometerFeed() *AccelerometerFeed {
	return &AccelerometerFeed{feed: newFeed()}
}

func (a *AccelerometerFeed) Push(s Sample) bool {
	return a.push(s)
}

// DeviceMotionFeed is the device-motion event source. It delivers
// accelerationIncludingGravity and on some platforms needs an explicit
// runtime permission grant before samples are accepted.
type DeviceMotionFeed struct {
	feed
	mu                 sync.Mutex
	requiresPermission bool
	granted            bool
}

func NewDeviceMotionFeed(requiresPermission bool) *DeviceMotionFeed {
	return &DeviceMotionFeed{feed: newFeed(), requiresPermission: requiresPermission}
}

// Grant records the runtime permission the platform asked for.
func (d *DeviceMotionFeed) Grant() {
	d.mu.Lock()
	d.granted = true
	d.mu.Unlock()
}

func (d *DeviceMotionFeed) permitted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.requiresPermission || d.granted
}

// DeviceMotionEvent is the wire shape of one device-motion callback.
type DeviceMotionEvent struct {
	AccelerationIncludingGravity struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	} `json:"acceleration_including_gravity"`
	Timestamp int64 `json:"timestamp"`
}

func (d *DeviceMotionFeed) PushEvent(ev DeviceMotionEvent) bool {
	if !d.permitted() {
		return false
	}
	return d.push(Sample{
		X:         ev.AccelerationIncludingGravity.X,
		Y:         ev.AccelerationIncludingGravity.Y,
		Z:         ev.AccelerationIncludingGravity.Z,
		Timestamp: ev.Timestamp,
	})
}
