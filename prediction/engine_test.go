package prediction

import (
	"math"
	"testing"
)

const testDt = 1.0 / 60.0

// stepX moves along X by the signed byte in the input, scaled by dt.
func stepX(st State, input []byte, dt float64) State {
	if len(input) > 0 {
		st.Transform.X += float64(int8(input[0])) * dt * 60
	}
	return st
}

func newTestEngine() *Engine {
	cfg := DefaultConfig()
	cfg.RollbackThreshold = 0.5
	return NewEngine(cfg, stepX)
}

func drive(e *Engine, from, to uint32, dir int8) {
	for t := from; t <= to; t++ {
		e.ApplyInput(t, float64(t)*testDt, []byte{byte(dir)}, testDt)
	}
}

func TestRollbackReplaysBufferedInputs(t *testing.T) {
	e := newTestEngine()
	e.Enable(State{})
	drive(e, 1, 10, 1)

	// Server disagrees at tick 5 by 2 units, above the 0.5 threshold.
	snap, ok := e.snaps.get(5)
	if !ok {
		t.Fatal("missing snapshot for tick 5")
	}
	auth := snap
	auth.Transform.X -= 2

	out := e.Authoritative(5, auth, testDt)
	if out != RolledBack {
		t.Fatalf("outcome = %v, want RolledBack", out)
	}

	// The corrected state must match re-simulating inputs 6..10 from the
	// authoritative tick-5 state exactly.
	want := auth
	for tick := uint32(6); tick <= 10; tick++ {
		want = stepX(want, []byte{1}, testDt)
	}
	if got := e.Live().Transform.X; got != want.Transform.X {
		t.Fatalf("replayed X = %v, want %v", got, want.Transform.X)
	}
	if e.Live().Tick != 10 {
		t.Fatalf("replayed tick = %d, want 10", e.Live().Tick)
	}
}

func TestReconcileMatchingStateIsIdempotent(t *testing.T) {
	e := newTestEngine()
	e.Enable(State{})
	drive(e, 1, 8, 1)

	before := e.Live()
	snap, _ := e.snaps.get(4)
	out := e.Authoritative(4, snap, testDt)
	if out != InThreshold {
		t.Fatalf("outcome = %v, want InThreshold", out)
	}
	if e.Live() != before {
		t.Fatalf("live state changed on agreeing snapshot: %+v vs %+v", e.Live(), before)
	}
}

func TestOutOfOrderAuthoritativeIgnored(t *testing.T) {
	e := newTestEngine()
	e.Enable(State{})
	drive(e, 1, 10, 1)

	snap5, _ := e.snaps.get(5)
	if out := e.Authoritative(5, snap5, testDt); out != InThreshold {
		t.Fatalf("first snapshot outcome = %v", out)
	}

	stale := State{Tick: 3}
	stale.Transform.X = 999
	before := e.Live()
	if out := e.Authoritative(3, stale, testDt); out != Ignored {
		t.Fatalf("stale snapshot outcome = %v, want Ignored", out)
	}
	if e.Live() != before {
		t.Fatal("stale snapshot mutated live state")
	}
}

func TestEmptyBufferAdoptsGroundTruth(t *testing.T) {
	e := newTestEngine()
	e.Enable(State{})

	auth := State{}
	auth.Transform.X = 42
	auth.Transform.Y = -7
	if out := e.Authoritative(12, auth, testDt); out != Accepted {
		t.Fatalf("outcome = %v, want Accepted", out)
	}
	if e.Live().Transform.X != 42 || e.Live().Transform.Y != -7 {
		t.Fatalf("live = %+v, want authoritative pose", e.Live().Transform)
	}
	if e.Live().Tick != 12 {
		t.Fatalf("live tick = %d, want 12", e.Live().Tick)
	}
}

func TestSmallErrorSmoothsWithoutPopping(t *testing.T) {
	e := newTestEngine()
	e.Enable(State{})
	drive(e, 1, 6, 1)

	snap, _ := e.snaps.get(4)
	auth := snap
	auth.Transform.X += 0.2 // below the 0.5 rollback threshold

	beforeX := e.Live().Transform.X
	if out := e.Authoritative(4, auth, testDt); out != Smoothed {
		t.Fatalf("outcome = %v, want Smoothed", out)
	}

	// First rendered frame stays near the old pose.
	first := e.RenderState(0)
	if math.Abs(first.Transform.X-beforeX) > 0.05 {
		t.Fatalf("render popped: %v vs %v", first.Transform.X, beforeX)
	}

	// After the full smoothing window the offset has decayed to zero.
	final := e.RenderState(1)
	if final.Transform.X != e.Live().Transform.X {
		t.Fatalf("offset not fully decayed: %v vs %v", final.Transform.X, e.Live().Transform.X)
	}
}

func TestDivergenceRequestsResync(t *testing.T) {
	e := newTestEngine()
	e.Enable(State{})
	drive(e, 1, 6, 1)

	snap, _ := e.snaps.get(3)
	auth := snap
	auth.Transform.X += 500

	before := e.Live()
	if out := e.Authoritative(3, auth, testDt); out != Diverged {
		t.Fatalf("outcome = %v, want Diverged", out)
	}
	if e.Live() != before {
		t.Fatal("diverged snapshot mutated live state")
	}
}

func TestMissingHistorySkipsReconcile(t *testing.T) {
	e := newTestEngine()
	e.Enable(State{})
	drive(e, 100, 105, 1)

	auth := State{Tick: 50}
	if out := e.Authoritative(50, auth, testDt); out != NoHistory {
		t.Fatalf("outcome = %v, want NoHistory", out)
	}
}

func TestDisableClearsHistory(t *testing.T) {
	e := newTestEngine()
	e.Enable(State{})
	drive(e, 1, 4, 1)
	e.Disable()

	if e.Phase() != Idle {
		t.Fatalf("phase = %v, want Idle", e.Phase())
	}
	if !e.inputs.empty() {
		t.Fatal("input ring not cleared")
	}

	auth := State{}
	auth.Transform.Y = 9
	if out := e.Authoritative(20, auth, testDt); out != Accepted {
		t.Fatal("idle engine should adopt authoritative state")
	}
	if e.Live().Transform.Y != 9 {
		t.Fatalf("idle live = %+v", e.Live().Transform)
	}
}
