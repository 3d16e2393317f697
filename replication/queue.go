// Package replication tracks per-client baselines, decides which component
// updates are due, and stages them in priority queues for the bandwidth
// scheduler to drain.
package replication

import (
	"github.com/automoto/netcode/shared/protocol"
)

// Update is one staged outbound component update for one client.
type Update struct {
	Client   protocol.ClientID
	Entity   protocol.EntityID
	Tag      protocol.ComponentTag
	Priority protocol.Priority

	// Bytes is what goes on the wire; Full is the full encoding retained
	// for baseline promotion when Bytes is a delta.
	Bytes   []byte
	Full    []byte
	IsDelta bool

	// DueTick is the tick the update first became due. Queues are FIFO
	// by due-time; the scheduler also uses it for staleness.
	DueTick uint32
}

type updateKey struct {
	entity protocol.EntityID
	tag    protocol.ComponentTag
}

// Queues holds one client's four priority FIFOs. Re-staging an update for
// an (entity, component) already queued coalesces: the payload refreshes in
// place and the original queue position is kept, so backlog never
// duplicates.
type Queues struct {
	fifo  [protocol.NumPriorities][]*Update
	index map[updateKey]*Update
}

// NewQueues creates empty priority queues.
func NewQueues() *Queues {
	return &Queues{index: make(map[updateKey]*Update)}
}

// Push stages an update, coalescing with any queued update for the same
// component.
func (q *Queues) Push(u *Update) {
	key := updateKey{entity: u.Entity, tag: u.Tag}
	if prev, ok := q.index[key]; ok {
		prev.Bytes = u.Bytes
		prev.Full = u.Full
		prev.IsDelta = u.IsDelta
		// Priority changes take effect on the next fresh enqueue; moving
		// between FIFOs here would break FIFO-by-due-time.
		return
	}
	q.index[key] = u
	q.fifo[u.Priority] = append(q.fifo[u.Priority], u)
}

// Peek returns the oldest update of the given priority without removing it.
func (q *Queues) Peek(p protocol.Priority) *Update {
	if len(q.fifo[p]) == 0 {
		return nil
	}
	return q.fifo[p][0]
}

// Pop removes and returns the oldest update of the given priority.
func (q *Queues) Pop(p protocol.Priority) *Update {
	if len(q.fifo[p]) == 0 {
		return nil
	}
	u := q.fifo[p][0]
	q.fifo[p] = q.fifo[p][1:]
	delete(q.index, updateKey{entity: u.Entity, tag: u.Tag})
	return u
}

// Len returns the total number of queued updates.
func (q *Queues) Len() int {
	return len(q.index)
}

// LenPriority returns the queued count for one priority.
func (q *Queues) LenPriority(p protocol.Priority) int {
	return len(q.fifo[p])
}

// DropEntity removes every queued update for a despawned entity. This is a
// local correction, never surfaced as an error.
func (q *Queues) DropEntity(e protocol.EntityID) {
	for p := range q.fifo {
		kept := q.fifo[p][:0]
		for _, u := range q.fifo[p] {
			if u.Entity == e {
				delete(q.index, updateKey{entity: u.Entity, tag: u.Tag})
				continue
			}
			kept = append(kept, u)
		}
		q.fifo[p] = kept
	}
}
