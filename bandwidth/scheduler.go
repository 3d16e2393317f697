package bandwidth

import (
	"log"

	"github.com/automoto/netcode/replication"
	"github.com/automoto/netcode/shared/protocol"
)

// perUpdateOverhead approximates the envelope bytes each component update
// costs beyond its payload (entity id, tag, flags).
const perUpdateOverhead = 12

// Config tunes the scheduler.
type Config struct {
	// BytesPerSecond is each client's sustained budget; BurstBytes is
	// the bucket capacity.
	BytesPerSecond float64
	BurstBytes     float64

	// LowStalenessTicks: Low-priority updates older than this are
	// dropped at drain time instead of sent out of date.
	LowStalenessTicks uint32

	// Backlog adaptation: when any client's queue depth exceeds
	// BacklogThreshold for BacklogTicks consecutive ticks, Medium/Low
	// replication frequency is scaled by AdaptScale until it clears.
	BacklogThreshold int
	BacklogTicks     int
	AdaptScale       float64
}

// DefaultConfig returns the tuning used by the dedicated server.
func DefaultConfig() Config {
	return Config{
		BytesPerSecond:    64 * 1024,
		BurstBytes:        8 * 1024,
		LowStalenessTicks: 60,
		BacklogThreshold:  256,
		BacklogTicks:      30,
		AdaptScale:        0.5,
	}
}

// RateAdapter is the replication-manager hook for adaptive rate control.
type RateAdapter interface {
	SetFrequencyScale(p protocol.Priority, s float64)
}

// Result summarizes one client's drain pass.
type Result struct {
	Sent         []*replication.Update
	DroppedStale int
	Requeued     int
}

// Scheduler owns every client's token bucket. It runs on the tick
// goroutine only.
type Scheduler struct {
	cfg     Config
	adapter RateAdapter

	buckets map[protocol.ClientID]*Bucket
	streaks map[protocol.ClientID]int
	adapted map[protocol.ClientID]struct{}
}

// NewScheduler creates a scheduler feeding back into the given adapter.
func NewScheduler(cfg Config, adapter RateAdapter) *Scheduler {
	def := DefaultConfig()
	if cfg.BytesPerSecond <= 0 {
		cfg.BytesPerSecond = def.BytesPerSecond
	}
	if cfg.BurstBytes <= 0 {
		cfg.BurstBytes = def.BurstBytes
	}
	if cfg.LowStalenessTicks == 0 {
		cfg.LowStalenessTicks = def.LowStalenessTicks
	}
	if cfg.BacklogThreshold <= 0 {
		cfg.BacklogThreshold = def.BacklogThreshold
	}
	if cfg.BacklogTicks <= 0 {
		cfg.BacklogTicks = def.BacklogTicks
	}
	if cfg.AdaptScale <= 0 || cfg.AdaptScale >= 1 {
		cfg.AdaptScale = def.AdaptScale
	}
	return &Scheduler{
		cfg:     cfg,
		adapter: adapter,
		buckets: make(map[protocol.ClientID]*Bucket),
		streaks: make(map[protocol.ClientID]int),
		adapted: make(map[protocol.ClientID]struct{}),
	}
}

// AddClient provisions a bucket for a newly admitted client.
func (s *Scheduler) AddClient(c protocol.ClientID) {
	s.buckets[c] = NewBucket(s.cfg.BurstBytes, s.cfg.BytesPerSecond)
}

// RemoveClient releases a client's bucket on disconnect.
func (s *Scheduler) RemoveClient(c protocol.ClientID) {
	delete(s.buckets, c)
	delete(s.streaks, c)
	if _, was := s.adapted[c]; was {
		delete(s.adapted, c)
		s.restoreIfClear()
	}
}

// Drain empties as much of the client's queues as the budget allows, in
// strict priority order. Whatever remains is left queued for the next
// tick.
func (s *Scheduler) Drain(c protocol.ClientID, q *replication.Queues, tick uint32, dt float64) Result {
	var res Result
	bucket, ok := s.buckets[c]
	if !ok {
		return res
	}
	bucket.Refill(dt)

	exhausted := false
	for p := protocol.Priority(0); p < protocol.NumPriorities && !exhausted; p++ {
		for {
			u := q.Peek(p)
			if u == nil {
				break
			}
			if p == protocol.PriorityLow && tick > u.DueTick+s.cfg.LowStalenessTicks {
				q.Pop(p)
				res.DroppedStale++
				continue
			}
			cost := len(u.Bytes) + perUpdateOverhead
			if !bucket.TrySpend(cost) {
				// An update bigger than the whole bucket would
				// stall forever; force it through when the bucket
				// is brimming.
				if float64(cost) > s.cfg.BurstBytes && bucket.Full() {
					log.Printf("[bandwidth] forcing %d byte update through a %d byte budget for client %d", cost, bucket.Available(), c)
					bucket.Drain()
				} else {
					exhausted = true
					break
				}
			}
			res.Sent = append(res.Sent, q.Pop(p))
		}
	}

	res.Requeued = q.Len()
	s.adapt(c, res.Requeued)
	return res
}

// adapt applies the sustained-backlog frequency scale and restores it once
// every client's backlog clears.
func (s *Scheduler) adapt(c protocol.ClientID, backlog int) {
	if backlog > s.cfg.BacklogThreshold {
		s.streaks[c]++
	} else {
		s.streaks[c] = 0
	}

	_, lowered := s.adapted[c]
	switch {
	case !lowered && s.streaks[c] >= s.cfg.BacklogTicks:
		s.adapted[c] = struct{}{}
		if len(s.adapted) == 1 && s.adapter != nil {
			log.Printf("[bandwidth] sustained backlog (%d updates), scaling medium/low replication by %v", backlog, s.cfg.AdaptScale)
			s.adapter.SetFrequencyScale(protocol.PriorityMedium, s.cfg.AdaptScale)
			s.adapter.SetFrequencyScale(protocol.PriorityLow, s.cfg.AdaptScale)
		}
	case lowered && s.streaks[c] == 0:
		delete(s.adapted, c)
		s.restoreIfClear()
	}
}

func (s *Scheduler) restoreIfClear() {
	if len(s.adapted) == 0 && s.adapter != nil {
		log.Printf("[bandwidth] backlog cleared, restoring replication frequency")
		s.adapter.SetFrequencyScale(protocol.PriorityMedium, 1)
		s.adapter.SetFrequencyScale(protocol.PriorityLow, 1)
	}
}
