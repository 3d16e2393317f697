// Package bandwidth drains replication queues under per-client byte
// budgets. Priorities are strict: Critical drains fully before High is
// considered, and so on; what the budget cannot carry is requeued, except
// stale Low-priority data which is dropped rather than sent out of date.
package bandwidth

// Bucket is a token bucket denominated in bytes.
type Bucket struct {
	capacity float64
	rate     float64 // bytes per second
	tokens   float64
}

// NewBucket creates a full bucket.
func NewBucket(capacity, rate float64) *Bucket {
	return &Bucket{capacity: capacity, rate: rate, tokens: capacity}
}

// Refill adds rate*dt tokens, capped at capacity.
func (b *Bucket) Refill(dt float64) {
	b.tokens += b.rate * dt
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

// TrySpend consumes n bytes if available.
func (b *Bucket) TrySpend(n int) bool {
	if float64(n) > b.tokens {
		return false
	}
	b.tokens -= float64(n)
	return true
}

// Full reports whether the bucket is at capacity.
func (b *Bucket) Full() bool { return b.tokens >= b.capacity }

// Drain empties the bucket (used when an oversized update is forced out).
func (b *Bucket) Drain() { b.tokens = 0 }

// Available returns the current token count in whole bytes.
func (b *Bucket) Available() int { return int(b.tokens) }
