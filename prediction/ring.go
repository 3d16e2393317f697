// Package prediction owns client-side prediction for locally controlled
// entities: inputs apply immediately, and authoritative snapshots trigger
// rollback-and-replay or a smoothing correction depending on the error.
package prediction

import (
	"github.com/automoto/netcode/shared/gamemath"
	"github.com/automoto/netcode/shared/netcomponents"
)

// State is the predicted slice of an entity at one tick.
type State struct {
	Tick      uint32
	Transform netcomponents.NetTransformData
	Velocity  netcomponents.NetVelocityData
}

// PosError returns the position distance between two states.
func (s State) PosError(o State) float64 {
	return s.Transform.Pos().Dist(o.Transform.Pos())
}

// RotError returns the absolute shortest-arc rotation difference.
func (s State) RotError(o State) float64 {
	d := gamemath.AngleDiff(s.Transform.Rotation, o.Transform.Rotation)
	if d < 0 {
		d = -d
	}
	return d
}

// InputRecord is one sampled input and when it was applied.
type InputRecord struct {
	Tick      uint32
	Timestamp float64
	Data      []byte
}

// Rings are fixed-capacity and keyed by tick modulo capacity; a slot is
// valid only while its stored tick still matches, so overwritten history
// reads as missing rather than wrong.

type inputSlot struct {
	rec   InputRecord
	valid bool
}

type inputRing struct {
	slots []inputSlot
}

func newInputRing(capacity int) *inputRing {
	return &inputRing{slots: make([]inputSlot, capacity)}
}

func (r *inputRing) store(rec InputRecord) {
	r.slots[int(rec.Tick)%len(r.slots)] = inputSlot{rec: rec, valid: true}
}

func (r *inputRing) get(tick uint32) (InputRecord, bool) {
	s := r.slots[int(tick)%len(r.slots)]
	if !s.valid || s.rec.Tick != tick {
		return InputRecord{}, false
	}
	return s.rec, true
}

// evictBefore invalidates records older than tick.
func (r *inputRing) evictBefore(tick uint32) {
	for i := range r.slots {
		if r.slots[i].valid && r.slots[i].rec.Tick < tick {
			r.slots[i].valid = false
		}
	}
}

func (r *inputRing) clear() {
	for i := range r.slots {
		r.slots[i].valid = false
	}
}

func (r *inputRing) empty() bool {
	for i := range r.slots {
		if r.slots[i].valid {
			return false
		}
	}
	return true
}

type snapSlot struct {
	st    State
	valid bool
}

type snapshotRing struct {
	slots []snapSlot
}

func newSnapshotRing(capacity int) *snapshotRing {
	return &snapshotRing{slots: make([]snapSlot, capacity)}
}

func (r *snapshotRing) store(st State) {
	r.slots[int(st.Tick)%len(r.slots)] = snapSlot{st: st, valid: true}
}

func (r *snapshotRing) get(tick uint32) (State, bool) {
	s := r.slots[int(tick)%len(r.slots)]
	if !s.valid || s.st.Tick != tick {
		return State{}, false
	}
	return s.st, true
}

func (r *snapshotRing) clear() {
	for i := range r.slots {
		r.slots[i].valid = false
	}
}
