// Package recording owns the ride recording state machine: Idle, Active,
// Paused. It wires the position and orientation samplers into the lean
// pipeline and the distance accumulator, mirrors everything through the
// session store, and hands finished rides to the persistence adapter.
package recording

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"backend-apex/internal/lean"
	"backend-apex/internal/location"
	"backend-apex/internal/motion"
	"backend-apex/internal/orientation"
	"backend-apex/internal/ride"
	"backend-apex/internal/session"
	"backend-apex/internal/shared/geo"
)

var (
	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrLocationDenied   = errors.New("location permission denied")
)

// Saver is the storage collaborator a finished session is handed to.
type Saver interface {
	Save(ctx context.Context, state session.State, endTime time.Time) (ride.Ride, error)
}

// Publisher carries live telemetry and fire-and-forget notices to the client.
type Publisher interface {
	Broadcast(riderID string, payload []byte)
	Notify(riderID, kind, message string)
}

type Config struct {
	Store       *session.Store
	Calibration *session.Calibration
	Saver       Saver
	Capability  location.Capability
	Publisher   Publisher

	// AutoPauseAfter defaults to motion.DefaultStillThreshold.
	AutoPauseAfter time.Duration
}

// Engine is the single process-wide recording engine. Position and
// orientation callbacks arrive on independent goroutines but mutate disjoint
// session fields; the engine mutex only guards its own sampler lifecycle and
// the shared speed/roll scratch values.
type Engine struct {
	store       *session.Store
	calibration *session.Calibration
	saver       Saver
	capability  location.Capability
	publisher   Publisher

	processor *lean.Processor
	autopause *motion.Detector
	now       func() time.Time

	// opMu serializes the state-machine transitions (Init, Start,
	// TogglePause, Stop) so two concurrent stops cannot both observe an
	// active recording and save the ride twice.
	opMu sync.Mutex

	mu          sync.Mutex
	watcher     *location.PushWatcher
	source      orientation.Source
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastSpeed   float64
	speedValid  bool
	lastRawRoll float64
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		store:       cfg.Store,
		calibration: cfg.Calibration,
		saver:       cfg.Saver,
		capability:  cfg.Capability,
		publisher:   cfg.Publisher,
		processor:   lean.NewProcessor(0),
		now:         time.Now,
	}
	e.autopause = motion.NewDetector(cfg.AutoPauseAfter, e.onAutoPause)
	return e
}

// Init loads the calibration offset and the mirrored session, then runs
// mount-time recovery: a session that was recording when the process died
// must re-establish the location capability or fall back to Idle with its
// coordinates preserved for a manual save.
func (e *Engine) Init(ctx context.Context) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.processor.SetOffset(e.calibration.Load(ctx))
	e.store.Load(ctx)

	state := e.store.Snapshot()
	if !state.IsRecording {
		return
	}

	if e.capability.Check() != location.StatusGranted {
		status, err := e.capability.Request(ctx)
		if err != nil || status != location.StatusGranted {
			e.store.ClearRecordingFlags(ctx)
			e.notify(state.UserID, "permission_denied", "location permission lost; recording stopped, captured route kept")
			return
		}
	}

	kind := orientation.Kind(state.OrientationKind)
	if kind == "" {
		kind = orientation.KindAccelerometer
	}
	if err := e.resumeSampling(kind, false); err != nil {
		log.Printf("recording recovery failed: %v", err)
		e.store.ClearRecordingFlags(ctx)
	}
}

// Start begins a new ride. Only reachable from Idle; requires the location
// capability, requesting it when unknown. On denial the engine stays Idle.
func (e *Engine) Start(ctx context.Context, userID, bikeID string, kind orientation.Kind) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.store.Snapshot().IsRecording {
		return ErrAlreadyRecording
	}

	status := e.capability.Check()
	if status != location.StatusGranted {
		var err error
		status, err = e.capability.Request(ctx)
		if err != nil || status != location.StatusGranted {
			e.notify(userID, "permission_denied", "location permission is required to record a ride")
			return ErrLocationDenied
		}
	}

	if kind == "" {
		kind = orientation.KindAccelerometer
	}
	if err := e.resumeSampling(kind, true); err != nil {
		return err
	}

	e.store.Begin(ctx, userID, bikeID, string(kind), e.now())
	e.broadcastState()
	return nil
}

// resumeSampling builds fresh sampler resources and starts the consumer
// goroutines. resetPipeline clears lean peaks and smoothing for a new ride;
// recovery keeps them untouched apart from the smoother, which restarts
// anyway under the motion lock.
func (e *Engine) resumeSampling(kind orientation.Kind, resetPipeline bool) error {
	source, err := orientation.NewSource(kind, kind == orientation.KindDeviceMotion)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if resetPipeline {
		e.processor.ResetPeaks()
	}
	e.autopause.Reset()
	e.lastSpeed = 0
	e.speedValid = false

	e.watcher = location.NewPushWatcher(location.DefaultWatchOptions())
	e.source = source

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(2)
	go e.consumeFixes(ctx, e.watcher)
	go e.consumeOrientation(ctx, e.source)
	return nil
}

// TogglePause flips Active and Paused. Either direction clears the pending
// auto-pause deadline so the stillness clock restarts.
func (e *Engine) TogglePause(ctx context.Context) (bool, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	state := e.store.Snapshot()
	if !state.IsRecording {
		return false, ErrNotRecording
	}

	paused := !state.IsPaused
	e.store.SetPaused(ctx, paused)
	e.autopause.Reset()
	e.broadcastState()
	return paused, nil
}

// Stop ends the recording. Sampler subscriptions are released on every path.
// With save set, the session is handed to the persistence adapter and the
// call blocks on its result; a failure keeps coordinates and start time so
// the caller can retry Stop(true). Without save the session is discarded.
func (e *Engine) Stop(ctx context.Context, save bool) (*ride.Ride, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	state := e.store.Snapshot()
	if !state.IsRecording {
		return nil, ErrNotRecording
	}

	e.teardownSamplers()

	if !save || len(state.Coords) == 0 || state.StartTime == nil {
		e.store.Reset(ctx)
		e.broadcastTo(state.UserID)
		return nil, nil
	}

	saved, err := e.saver.Save(ctx, state, e.now())
	if err != nil {
		e.notify(state.UserID, "save_failed", "ride could not be saved; it is kept for retry")
		return nil, err
	}

	e.store.Reset(ctx)
	e.broadcastTo(state.UserID)
	return &saved, nil
}

// Calibrate persists the most recent raw roll reading as the new upright
// reference and applies it immediately.
func (e *Engine) Calibrate(ctx context.Context) (float64, error) {
	e.mu.Lock()
	offset := e.lastRawRoll
	e.mu.Unlock()

	if err := e.calibration.Save(ctx, offset); err != nil {
		return 0, err
	}
	e.processor.SetOffset(offset)
	return offset, nil
}

func (e *Engine) State() session.State {
	return e.store.Snapshot()
}

// PushFix feeds one client-reported position sample into the active watch.
func (e *Engine) PushFix(f location.Fix) bool {
	e.mu.Lock()
	watcher := e.watcher
	e.mu.Unlock()
	if watcher == nil {
		return false
	}
	return watcher.Push(f)
}

// PushAccel feeds a native accelerometer sample. Rejected unless the
// accelerometer source was selected at start; sources are never mixed
// mid-session.
func (e *Engine) PushAccel(s orientation.Sample) bool {
	e.mu.Lock()
	feed, ok := e.source.(*orientation.AccelerometerFeed)
	e.mu.Unlock()
	if !ok {
		return false
	}
	return feed.Push(s)
}

// PushDeviceMotion feeds a device-motion event, if that source is selected.
func (e *Engine) PushDeviceMotion(ev orientation.DeviceMotionEvent) bool {
	e.mu.Lock()
	feed, ok := e.source.(*orientation.DeviceMotionFeed)
	e.mu.Unlock()
	if !ok {
		return false
	}
	return feed.PushEvent(ev)
}

// GrantMotionPermission records the device-motion runtime grant.
func (e *Engine) GrantMotionPermission() {
	e.mu.Lock()
	feed, ok := e.source.(*orientation.DeviceMotionFeed)
	e.mu.Unlock()
	if ok {
		feed.Grant()
	}
}

func (e *Engine) consumeFixes(ctx context.Context, watcher *location.PushWatcher) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-watcher.Fixes():
			if !ok {
				return
			}
			e.handleFix(ctx, fix)
		}
	}
}

func (e *Engine) handleFix(ctx context.Context, fix location.Fix) {
	speed := 0.0
	valid := fix.SpeedMps != nil
	if valid {
		speed = *fix.SpeedMps
	}

	e.mu.Lock()
	e.lastSpeed = speed
	e.speedValid = valid
	e.mu.Unlock()

	e.autopause.Observe(speed, valid)

	state := e.store.Snapshot()
	if !state.IsRecording || state.IsPaused {
		return
	}

	delta := 0.0
	if n := len(state.Coords); n > 0 {
		last := state.Coords[n-1]
		delta = geo.HaversineKm(last.Lat, last.Lng, fix.Lat, fix.Lng)
	}
	e.store.AppendCoord(ctx, session.Coordinate{
		Lng:       fix.Lng,
		Lat:       fix.Lat,
		Timestamp: fix.Timestamp,
		SpeedMps:  fix.SpeedMps,
	}, delta)
	e.broadcastState()
}

func (e *Engine) consumeOrientation(ctx context.Context, source orientation.Source) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-source.Samples():
			if !ok {
				return
			}
			e.handleOrientation(ctx, sample)
		}
	}
}

func (e *Engine) handleOrientation(ctx context.Context, sample orientation.Sample) {
	roll, err := lean.RollDegrees(sample.X, sample.Y, sample.Z)
	if err != nil {
		// Transient bad reading: dropped, no state touched.
		return
	}

	e.mu.Lock()
	e.lastRawRoll = roll
	speed := e.lastSpeed
	e.mu.Unlock()

	current := e.processor.Process(roll, speed)
	left, right := e.processor.Peaks()

	if !e.store.Snapshot().IsRecording {
		return
	}
	e.store.SetLean(ctx, current, left, right)
	e.broadcastState()
}

func (e *Engine) onAutoPause() {
	ctx := context.Background()
	state := e.store.Snapshot()
	if !state.IsRecording || state.IsPaused {
		return
	}
	e.store.SetPaused(ctx, true)
	e.notify(state.UserID, "auto_pause", "recording paused after 5 minutes without movement")
	e.broadcastState()
}

// teardownSamplers releases the position watch and the orientation listener.
// Safe to call repeatedly and on every exit path.
func (e *Engine) teardownSamplers() {
	e.mu.Lock()
	cancel := e.cancel
	watcher := e.watcher
	source := e.source
	e.cancel = nil
	e.watcher = nil
	e.source = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if watcher != nil {
		watcher.Close()
	}
	if source != nil {
		source.Close()
	}
	e.wg.Wait()
}

type telemetry struct {
	Type         string  `json:"type"`
	IsRecording  bool    `json:"is_recording"`
	IsPaused     bool    `json:"is_paused"`
	DistanceKm   float64 `json:"distance_km"`
	CurrentLean  float64 `json:"current_lean"`
	MaxLeanLeft  float64 `json:"max_lean_left"`
	MaxLeanRight float64 `json:"max_lean_right"`
	CoordCount   int     `json:"coord_count"`
}

func (e *Engine) broadcastState() {
	state := e.store.Snapshot()
	e.broadcast(state.UserID, state)
}

// broadcastTo publishes the current (possibly just reset) state to a known
// rider, for transitions that clear the session's own user id.
func (e *Engine) broadcastTo(riderID string) {
	e.broadcast(riderID, e.store.Snapshot())
}

func (e *Engine) broadcast(riderID string, state session.State) {
	if e.publisher == nil {
		return
	}
	payload, _ := json.Marshal(telemetry{
		Type:         "telemetry",
		IsRecording:  state.IsRecording,
		IsPaused:     state.IsPaused,
		DistanceKm:   state.DistanceKm,
		CurrentLean:  state.CurrentLean,
		MaxLeanLeft:  state.MaxLeanLeft,
		MaxLeanRight: state.MaxLeanRight,
		CoordCount:   len(state.Coords),
	})
	e.publisher.Broadcast(riderID, payload)
}

func (e *Engine) notify(riderID, kind, message string) {
	if e.publisher != nil {
		e.publisher.Notify(riderID, kind, message)
	}
}
