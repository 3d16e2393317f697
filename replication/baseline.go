package replication

import (
	"github.com/automoto/netcode/shared/protocol"
)

type baselineKey struct {
	client protocol.ClientID
	entity protocol.EntityID
	tag    protocol.ComponentTag
}

// baseline tracks what one client is known (or optimistically assumed) to
// hold for one component. acked is the diff reference; pending is the last
// sent full encoding awaiting a snapshot ack.
type baseline struct {
	acked       []byte
	pending     []byte
	pendingTick uint32
	hasPending  bool
}

// markSent records an optimistic send made at tick.
func (b *baseline) markSent(full []byte, tick uint32) {
	b.pending = full
	b.pendingTick = tick
	b.hasPending = true
}

// ack promotes the pending encoding when the acknowledged tick is exactly
// the tick it was sent at. A later ack never promotes an earlier pending:
// the snapshot that carried it may have been lost, and deltas against
// bytes the client never received reconstruct corrupt state. Unmatched
// pendings die through the ack timeout instead.
func (b *baseline) ack(tick uint32) {
	if b.hasPending && b.pendingTick == tick {
		b.acked = b.pending
		b.pending = nil
		b.hasPending = false
	}
}

// expired reports whether the optimistic send timed out at the given tick.
func (b *baseline) expired(tick, timeoutTicks uint32) bool {
	return b.hasPending && tick > b.pendingTick+timeoutTicks
}

// invalidate rolls the baseline back; the next send goes out full-state.
func (b *baseline) invalidate() {
	b.acked = nil
	b.pending = nil
	b.hasPending = false
}
