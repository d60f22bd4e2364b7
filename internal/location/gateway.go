package location

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRequestTimeout means the device never reported a grant or deny for a
// permission prompt.
var ErrRequestTimeout = errors.New("location permission request timed out")

// Capability exposes grant/deny/check for the device's position permission.
// Denial is an answer, not an error: callers degrade instead of crashing.
type Capability interface {
	Check() Status
	Request(ctx context.Context) (Status, error)
}

// Gateway is the device-reported Capability: the client app owns the real
// platform permission and reports its state back over the API. Request
// prompts the client (fire-and-forget) and waits for the next report.
type Gateway struct {
	mu      sync.Mutex
	status  Status
	waiters []chan Status

	prompt  func()
	timeout time.Duration
}

func NewGateway(prompt func()) *Gateway {
	return &Gateway{
		status:  StatusUnknown,
		prompt:  prompt,
		timeout: RequestTimeout,
	}
}

func (g *Gateway) Check() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Report records the device's answer and releases any pending Request.
func (g *Gateway) Report(s Status) {
	g.mu.Lock()
	g.status = s
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()

	for _, w := range waiters {
		w <- s
	}
}

// Request returns the known status immediately, or prompts the device and
// blocks until it reports, the context ends, or RequestTimeout passes.
func (g *Gateway) Request(ctx context.Context) (Status, error) {
	g.mu.Lock()
	if g.status != StatusUnknown {
		s := g.status
		g.mu.Unlock()
		return s, nil
	}
	wait := make(chan Status, 1)
	g.waiters = append(g.waiters, wait)
	prompt := g.prompt
	g.mu.Unlock()

	if prompt != nil {
		prompt()
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case s := <-wait:
		return s, nil
	case <-ctx.Done():
		g.drop(wait)
		return StatusUnknown, ctx.Err()
	case <-timer.C:
		g.drop(wait)
		return StatusUnknown, ErrRequestTimeout
	}
}

func (g *Gateway) drop(wait chan Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, w := range g.waiters {
		if w == wait {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return
		}
	}
}
