package location

import (
	"sync"
	"time"
)

// Watcher is the position stream the recording engine consumes. Fixes pushes
// accepted samples; Close releases the stream and is safe on every exit path.
type Watcher interface {
	Fixes() <-chan Fix
	Close()
}

// PushWatcher adapts client-pushed position samples into a Watcher. Stale
// cached fixes (older than MaximumAge) and pushes arriving faster than the
// consumer drains are dropped rather than blocking the ingestion handler.
type PushWatcher struct {
	opts WatchOptions
	now  func() time.Time

	mu     sync.Mutex
	ch     chan Fix
	closed bool
}

func NewPushWatcher(opts WatchOptions) *PushWatcher {
	if opts.MaximumAge <= 0 {
		opts = DefaultWatchOptions()
	}
	return &PushWatcher{
		opts: opts,
		now:  time.Now,
		ch:   make(chan Fix, 64),
	}
}

// Push offers one fix to the stream; it reports whether the fix was accepted.
func (w *PushWatcher) Push(f Fix) bool {
	age := w.now().Sub(time.UnixMilli(f.Timestamp))
	if age > w.opts.MaximumAge {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.ch <- f:
		return true
	default:
		return false
	}
}

func (w *PushWatcher) Fixes() <-chan Fix {
	return w.ch
}

func (w *PushWatcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.ch)
}
