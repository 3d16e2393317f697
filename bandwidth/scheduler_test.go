package bandwidth

import (
	"testing"

	"github.com/automoto/netcode/replication"
	"github.com/automoto/netcode/shared/protocol"
)

const client protocol.ClientID = 1

func push(q *replication.Queues, entity protocol.EntityID, p protocol.Priority, size int, due uint32) {
	q.Push(&replication.Update{
		Client:   client,
		Entity:   entity,
		Tag:      protocol.ComponentTag(10 + entity),
		Priority: p,
		Bytes:    make([]byte, size),
		Full:     make([]byte, size),
		DueTick:  due,
	})
}

func newScheduler(cfg Config) *Scheduler {
	s := NewScheduler(cfg, nil)
	s.AddClient(client)
	return s
}

func TestStrictPriorityOrder(t *testing.T) {
	s := newScheduler(Config{BytesPerSecond: 1 << 20, BurstBytes: 1 << 20})
	q := replication.NewQueues()
	push(q, 1, protocol.PriorityLow, 10, 1)
	push(q, 2, protocol.PriorityCritical, 10, 1)
	push(q, 3, protocol.PriorityMedium, 10, 1)
	push(q, 4, protocol.PriorityHigh, 10, 1)

	res := s.Drain(client, q, 1, 1.0/60)
	if len(res.Sent) != 4 {
		t.Fatalf("want 4 sent, got %d", len(res.Sent))
	}
	order := []protocol.Priority{protocol.PriorityCritical, protocol.PriorityHigh, protocol.PriorityMedium, protocol.PriorityLow}
	for i, u := range res.Sent {
		if u.Priority != order[i] {
			t.Fatalf("position %d: got %v want %v", i, u.Priority, order[i])
		}
	}
}

func TestBudgetRequeuesLowerPriorities(t *testing.T) {
	// Bucket fits exactly one critical update per tick.
	cost := 10 + perUpdateOverhead
	s := newScheduler(Config{BytesPerSecond: 1, BurstBytes: float64(cost)})
	q := replication.NewQueues()

	push(q, 1, protocol.PriorityCritical, 10, 1)
	push(q, 2, protocol.PriorityMedium, 10, 1)
	push(q, 3, protocol.PriorityLow, 10, 1)

	// Three ticks of pressure: only critical traffic fits.
	for tick := uint32(1); tick <= 3; tick++ {
		res := s.Drain(client, q, tick, 0)
		for _, u := range res.Sent {
			if u.Priority != protocol.PriorityCritical {
				t.Fatalf("tick %d: sent %v under pressure", tick, u.Priority)
			}
		}
		// Keep critical pressure on.
		push(q, 1, protocol.PriorityCritical, 10, tick+1)
	}
	if q.LenPriority(protocol.PriorityMedium) != 1 || q.LenPriority(protocol.PriorityLow) != 1 {
		t.Fatal("medium/low updates were lost instead of requeued")
	}

	// Pressure ends: drain the backlog with a restored budget.
	q.Pop(protocol.PriorityCritical)
	s.buckets[client] = NewBucket(1<<20, 1<<20)
	res := s.Drain(client, q, 4, 1)
	if len(res.Sent) != 2 {
		t.Fatalf("backlog not delivered once budget restored: %d", len(res.Sent))
	}
}

func TestStarvationFreedom(t *testing.T) {
	// Budget fits exactly one update per tick, so the critical backlog
	// monopolizes the wire while it lasts.
	cost := float64(10 + perUpdateOverhead)
	s := newScheduler(Config{BytesPerSecond: cost * 60, BurstBytes: cost})
	q := replication.NewQueues()
	push(q, 100, protocol.PriorityHigh, 10, 1)

	// Critical backlog for many ticks; the high update must survive in
	// queue, then drain the moment critical clears.
	for tick := uint32(1); tick <= 50; tick++ {
		push(q, 1, protocol.PriorityCritical, 10, tick)
		res := s.Drain(client, q, tick, 1.0/60)
		if len(res.Sent) == 0 {
			t.Fatalf("tick %d: nothing sent", tick)
		}
	}
	res := s.Drain(client, q, 51, 1.0/60)
	found := false
	for _, u := range res.Sent {
		if u.Entity == 100 {
			found = true
		}
	}
	if !found {
		t.Fatal("high-priority update starved after critical cleared")
	}
}

func TestOversizedUpdateForcedThrough(t *testing.T) {
	// An update larger than the whole bucket must not stall forever: once
	// the bucket is brimming it goes out anyway and the bucket empties.
	s := newScheduler(Config{BytesPerSecond: 60, BurstBytes: 64})
	q := replication.NewQueues()
	push(q, 1, protocol.PriorityCritical, 200, 1)

	res := s.Drain(client, q, 1, 1.0/60)
	if len(res.Sent) != 1 {
		t.Fatalf("oversized update stalled: sent %d", len(res.Sent))
	}
	if got := s.buckets[client].Available(); got != 0 {
		t.Fatalf("forced send must empty the bucket, %d bytes left", got)
	}
}

func TestStaleLowDropped(t *testing.T) {
	s := newScheduler(Config{BytesPerSecond: 1 << 20, BurstBytes: 1 << 20, LowStalenessTicks: 10})
	q := replication.NewQueues()
	push(q, 1, protocol.PriorityLow, 10, 1)
	push(q, 2, protocol.PriorityLow, 10, 95)

	res := s.Drain(client, q, 100, 1.0/60)
	if res.DroppedStale != 1 {
		t.Fatalf("want 1 stale drop, got %d", res.DroppedStale)
	}
	if len(res.Sent) != 1 || res.Sent[0].Entity != 2 {
		t.Fatalf("fresh low update mishandled: %+v", res.Sent)
	}
}

type fakeAdapter struct {
	scales map[protocol.Priority]float64
}

func (f *fakeAdapter) SetFrequencyScale(p protocol.Priority, s float64) {
	f.scales[p] = s
}

func TestAdaptiveRate(t *testing.T) {
	ad := &fakeAdapter{scales: make(map[protocol.Priority]float64)}
	s := NewScheduler(Config{
		BytesPerSecond:   1, // nothing drains
		BurstBytes:       1,
		BacklogThreshold: 2,
		BacklogTicks:     3,
		AdaptScale:       0.5,
	}, ad)
	s.AddClient(client)

	q := replication.NewQueues()
	for i := protocol.EntityID(1); i <= 5; i++ {
		push(q, i, protocol.PriorityMedium, 100, 1)
	}

	for tick := uint32(1); tick <= 3; tick++ {
		s.Drain(client, q, tick, 0)
	}
	if ad.scales[protocol.PriorityMedium] != 0.5 || ad.scales[protocol.PriorityLow] != 0.5 {
		t.Fatalf("backlog did not lower rates: %+v", ad.scales)
	}

	// Clear the queue; the next drain restores full rate.
	for p := protocol.Priority(0); p < protocol.NumPriorities; p++ {
		for q.Pop(p) != nil {
		}
	}
	s.Drain(client, q, 4, 0)
	if ad.scales[protocol.PriorityMedium] != 1 || ad.scales[protocol.PriorityLow] != 1 {
		t.Fatalf("cleared backlog did not restore rates: %+v", ad.scales)
	}
}
