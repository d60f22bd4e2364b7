// Package session owns the process-wide mirror of the in-progress ride. The
// engine and the API surface both read through it, and its copy wins whenever
// a rebuilt client re-attaches mid-ride.
package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const stateKey = "apex:ride:session"

// Coordinate is one accepted position sample, immutable once appended.
type Coordinate struct {
	Lng       float64  `json:"lng"`
	Lat       float64  `json:"lat"`
	Timestamp int64    `json:"timestamp"` // unix milliseconds
	SpeedMps  *float64 `json:"speed_mps,omitempty"`
}

// State is the mutable aggregate for one in-progress or just-finished ride.
// IsPaused implies IsRecording.
type State struct {
	IsRecording     bool         `json:"is_recording"`
	IsPaused        bool         `json:"is_paused"`
	UserID          string       `json:"user_id,omitempty"`
	BikeID          string       `json:"bike_id,omitempty"`
	OrientationKind string       `json:"orientation_kind,omitempty"`
	Coords          []Coordinate `json:"coords"`
	CurrentLean     float64      `json:"current_lean"`
	MaxLeanLeft     float64      `json:"max_lean_left"`
	MaxLeanRight    float64      `json:"max_lean_right"`
	StartTime       *time.Time   `json:"start_time,omitempty"`
	DistanceKm      float64      `json:"distance_km"`
}

// Store is the singly-instantiated session mirror. Mutations are serialized
// by the mutex and mirrored to Redis best-effort so the session survives a
// process restart; a nil Redis client degrades to in-memory only.
type Store struct {
	mu    sync.Mutex
	state State
	redis *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

// Load hydrates the store from the Redis mirror at process start. A missing
// key or unreachable Redis leaves the zero state in place.
func (s *Store) Load(ctx context.Context) {
	if s.redis == nil {
		return
	}
	raw, err := s.redis.Get(ctx, stateKey).Bytes()
	if err != nil {
		return
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		log.Printf("session mirror corrupt, starting fresh: %v", err)
		return
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state; the coordinate slice is
// cloned so callers cannot mutate the live sequence.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() State {
	out := s.state
	if s.state.Coords != nil {
		out.Coords = make([]Coordinate, len(s.state.Coords))
		copy(out.Coords, s.state.Coords)
	}
	if s.state.StartTime != nil {
		t := *s.state.StartTime
		out.StartTime = &t
	}
	return out
}

// Begin resets every session field for a new ride and marks it recording.
func (s *Store) Begin(ctx context.Context, userID, bikeID, orientationKind string, at time.Time) {
	s.mu.Lock()
	s.state = State{
		IsRecording:     true,
		UserID:          userID,
		BikeID:          bikeID,
		OrientationKind: orientationKind,
		StartTime:       &at,
	}
	s.mirrorLocked(ctx)
	s.mu.Unlock()
}

// Reset clears the session after a save or discard.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.state = State{}
	s.mirrorLocked(ctx)
	s.mu.Unlock()
}

// SetPaused toggles pause; it is a no-op when not recording so the
// paused-implies-recording invariant holds.
func (s *Store) SetPaused(ctx context.Context, paused bool) {
	s.mu.Lock()
	if s.state.IsRecording {
		s.state.IsPaused = paused
		s.mirrorLocked(ctx)
	}
	s.mu.Unlock()
}

// AppendCoord appends one coordinate and adds its pairwise distance delta.
func (s *Store) AppendCoord(ctx context.Context, c Coordinate, deltaKm float64) {
	s.mu.Lock()
	s.state.Coords = append(s.state.Coords, c)
	s.state.DistanceKm += deltaKm
	s.mirrorLocked(ctx)
	s.mu.Unlock()
}

// SetLean records the latest smoothed magnitude and the per-side peaks.
func (s *Store) SetLean(ctx context.Context, current, maxLeft, maxRight float64) {
	s.mu.Lock()
	s.state.CurrentLean = current
	if maxLeft > s.state.MaxLeanLeft {
		s.state.MaxLeanLeft = maxLeft
	}
	if maxRight > s.state.MaxLeanRight {
		s.state.MaxLeanRight = maxRight
	}
	s.mirrorLocked(ctx)
	s.mu.Unlock()
}

// ClearRecordingFlags drops the recording/paused flags but keeps any
// captured coordinates, for mount-time recovery after a permission denial.
func (s *Store) ClearRecordingFlags(ctx context.Context) {
	s.mu.Lock()
	s.state.IsRecording = false
	s.state.IsPaused = false
	s.mirrorLocked(ctx)
	s.mu.Unlock()
}

func (s *Store) mirrorLocked(ctx context.Context) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(s.state)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, stateKey, payload, 0).Err(); err != nil {
		log.Printf("session mirror write failed: %v", err)
	}
}
