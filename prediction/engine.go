package prediction

import (
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"

	"github.com/automoto/netcode/shared/gamemath"
)

// Phase is the per-entity prediction state machine.
type Phase uint8

const (
	// Idle: the entity is not locally owned; authoritative state is
	// applied verbatim.
	Idle Phase = iota
	Predicting
	Reconciling
)

// Outcome reports what an authoritative update did.
type Outcome uint8

const (
	// Ignored: stale (non-monotonic) tick.
	Ignored Outcome = iota
	// Accepted: authoritative state taken as ground truth (idle entity
	// or empty input buffer).
	Accepted
	// NoHistory: no buffered snapshot for that tick; reconciliation
	// skipped best-effort.
	NoHistory
	// InThreshold: error small enough that no correction was needed.
	InThreshold
	// Smoothed: small error, blending toward the corrected state.
	Smoothed
	// RolledBack: error above threshold; state reset and inputs
	// replayed.
	RolledBack
	// Diverged: error above the hard cap; the caller must request a
	// full-state resync for this entity.
	Diverged
)

// StepFunc re-simulates one tick of local movement. It must be the same
// function used for the immediate optimistic step, or replay drifts.
type StepFunc func(st State, input []byte, dt float64) State

// Config tunes one entity's prediction.
type Config struct {
	RingCapacity int
	// RollbackThreshold is the position error that forces a hard
	// rollback; smaller errors blend over SmoothDuration instead.
	RollbackThreshold float64
	RotationThreshold float64 // radians
	// DivergenceCap is the hard cap beyond which incremental correction
	// gives up and a full resync is requested.
	DivergenceCap float64
	// RetentionTicks bounds input history behind the last server tick,
	// which in turn bounds replay cost.
	RetentionTicks uint32
	SmoothDuration float64 // seconds
	// DeadZone is the error below which no correction happens at all.
	DeadZone float64
}

// DefaultConfig returns the tuning used by the sample client.
func DefaultConfig() Config {
	return Config{
		RingCapacity:      256,
		RollbackThreshold: 0.5,
		RotationThreshold: 0.35,
		DivergenceCap:     64,
		RetentionTicks:    60,
		SmoothDuration:    0.15,
		DeadZone:          1e-4,
	}
}

// Engine predicts one locally owned entity.
type Engine struct {
	cfg  Config
	step StepFunc

	phase  Phase
	live   State
	inputs *inputRing
	snaps  *snapshotRing

	lastServerTick uint32
	haveServerTick bool

	// Smoothing correction: a world-space offset eased out over
	// SmoothDuration so small errors never pop.
	smoothTween *gween.Tween
	smoothPos   gamemath.Vec2
	smoothRot   float64
}

// NewEngine creates an engine in the Idle phase.
func NewEngine(cfg Config, step StepFunc) *Engine {
	def := DefaultConfig()
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = def.RingCapacity
	}
	if cfg.RollbackThreshold <= 0 {
		cfg.RollbackThreshold = def.RollbackThreshold
	}
	if cfg.RotationThreshold <= 0 {
		cfg.RotationThreshold = def.RotationThreshold
	}
	if cfg.DivergenceCap <= 0 {
		cfg.DivergenceCap = def.DivergenceCap
	}
	if cfg.RetentionTicks == 0 {
		cfg.RetentionTicks = def.RetentionTicks
	}
	if cfg.SmoothDuration <= 0 {
		cfg.SmoothDuration = def.SmoothDuration
	}
	return &Engine{
		cfg:    cfg,
		step:   step,
		inputs: newInputRing(cfg.RingCapacity),
		snaps:  newSnapshotRing(cfg.RingCapacity),
	}
}

// Phase returns the current state-machine phase.
func (e *Engine) Phase() Phase { return e.phase }

// Live returns the current predicted state.
func (e *Engine) Live() State { return e.live }

// Enable starts predicting from the given state, typically on gaining
// ownership.
func (e *Engine) Enable(initial State) {
	e.live = initial
	e.phase = Predicting
}

// Disable stops prediction and clears all history, on ownership loss.
func (e *Engine) Disable() {
	e.phase = Idle
	e.inputs.clear()
	e.snaps.clear()
	e.smoothTween = nil
}

// ApplyInput optimistically executes one sampled input at the local tick
// and records both the input and the resulting snapshot for later
// reconciliation.
func (e *Engine) ApplyInput(tick uint32, timestamp float64, input []byte, dt float64) State {
	if e.phase == Idle {
		return e.live
	}
	e.phase = Predicting
	e.live = e.step(e.live, input, dt)
	e.live.Tick = tick
	e.inputs.store(InputRecord{Tick: tick, Timestamp: timestamp, Data: input})
	e.snaps.store(e.live)
	return e.live
}

// Authoritative processes a server snapshot for the given tick and returns
// what was done. dt is the fixed simulation step used for replay.
func (e *Engine) Authoritative(tick uint32, auth State, dt float64) Outcome {
	if e.phase == Idle {
		auth.Tick = tick
		e.live = auth
		return Accepted
	}

	// Monotonic tick invariant: only the highest authoritative tick seen
	// so far reconciles.
	if e.haveServerTick && tick <= e.lastServerTick {
		return Ignored
	}
	e.lastServerTick = tick
	e.haveServerTick = true

	// Bound memory and replay cost.
	if tick > e.cfg.RetentionTicks {
		e.inputs.evictBefore(tick - e.cfg.RetentionTicks)
	}

	if e.inputs.empty() {
		// Not actually predicting: authoritative value is ground truth.
		auth.Tick = tick
		e.live = auth
		e.snaps.store(e.live)
		return Accepted
	}

	predicted, ok := e.snaps.get(tick)
	if !ok {
		// History too short (very high latency); skip this snapshot.
		return NoHistory
	}

	auth.Tick = tick
	posErr := predicted.PosError(auth)
	rotErr := predicted.RotError(auth)

	if posErr > e.cfg.DivergenceCap {
		return Diverged
	}
	if posErr <= e.cfg.DeadZone && rotErr <= e.cfg.DeadZone {
		e.snaps.store(auth)
		return InThreshold
	}

	e.phase = Reconciling
	before := e.live
	corrected := e.replayFrom(auth, dt)
	e.phase = Predicting

	if posErr > e.cfg.RollbackThreshold || rotErr > e.cfg.RotationThreshold {
		// Hard rollback: snap to the corrected trajectory.
		e.live = corrected
		e.smoothTween = nil
		return RolledBack
	}

	// Small error: take the corrected trajectory but ease the visible
	// offset out over a few frames to avoid popping.
	e.live = corrected
	e.smoothPos = before.Transform.Pos().Sub(corrected.Transform.Pos())
	e.smoothRot = gamemath.AngleDiff(corrected.Transform.Rotation, before.Transform.Rotation)
	e.smoothTween = gween.New(1, 0, float32(e.cfg.SmoothDuration), ease.OutQuad)
	return Smoothed
}

// replayFrom resets state to the authoritative snapshot and re-simulates
// every buffered input after its tick, overwriting the snapshot ring.
// Replaying zero inputs leaves the state exactly equal to auth.
func (e *Engine) replayFrom(auth State, dt float64) State {
	st := auth
	e.snaps.store(st)

	currentTick := e.live.Tick
	for t := auth.Tick + 1; t <= currentTick; t++ {
		rec, ok := e.inputs.get(t)
		if !ok {
			continue
		}
		st = e.step(st, rec.Data, dt)
		st.Tick = t
		e.snaps.store(st)
	}
	st.Tick = currentTick
	return st
}

// RenderState returns the pose to draw this frame: the live state plus any
// decaying smoothing offset. dt is the render frame delta.
func (e *Engine) RenderState(dt float64) State {
	st := e.live
	if e.smoothTween == nil {
		return st
	}
	v, done := e.smoothTween.Update(float32(dt))
	f := float64(v)
	st.Transform.X += e.smoothPos.X * f
	st.Transform.Y += e.smoothPos.Y * f
	st.Transform.Rotation = gamemath.WrapAngle(st.Transform.Rotation + e.smoothRot*f)
	if done {
		e.smoothTween = nil
	}
	return st
}

// LastServerTick returns the newest authoritative tick processed.
func (e *Engine) LastServerTick() uint32 { return e.lastServerTick }
