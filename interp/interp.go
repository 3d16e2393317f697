// Package interp renders remote entities a fixed delay behind the newest
// server state, blending between buffered snapshots so motion stays smooth
// across uneven packet arrival.
package interp

import (
	"sort"

	"github.com/automoto/netcode/shared/gamemath"
	"github.com/automoto/netcode/shared/netcomponents"
)

// Sample is one timestamped authoritative pose.
type Sample struct {
	Tick      uint32
	Timestamp float64
	Transform netcomponents.NetTransformData
	Velocity  netcomponents.NetVelocityData
}

// Config tunes one entity's interpolation buffer.
type Config struct {
	// Delay is how far behind the newest sample the render time sits,
	// in seconds. It should cover at least one snapshot interval.
	Delay float64
	// ExtrapolationLimit caps dead reckoning past the newest sample, in
	// seconds. Beyond it the entity freezes at its last projected pose.
	ExtrapolationLimit float64
	// Capacity bounds the buffer; the oldest samples are discarded.
	Capacity int
}

// DefaultConfig returns the tuning used by the sample client.
func DefaultConfig() Config {
	return Config{
		Delay:              0.1,
		ExtrapolationLimit: 0.25,
		Capacity:           32,
	}
}

// Buffer interpolates one remote entity.
type Buffer struct {
	cfg     Config
	samples []Sample
}

// NewBuffer creates an empty interpolation buffer.
func NewBuffer(cfg Config) *Buffer {
	def := DefaultConfig()
	if cfg.Delay <= 0 {
		cfg.Delay = def.Delay
	}
	if cfg.ExtrapolationLimit < 0 {
		cfg.ExtrapolationLimit = def.ExtrapolationLimit
	}
	if cfg.Capacity < 2 {
		cfg.Capacity = def.Capacity
	}
	return &Buffer{cfg: cfg, samples: make([]Sample, 0, cfg.Capacity)}
}

// Push inserts a sample in timestamp order. Out-of-order arrivals are
// placed correctly; duplicates of an existing timestamp are dropped.
func (b *Buffer) Push(s Sample) {
	i := sort.Search(len(b.samples), func(i int) bool {
		return b.samples[i].Timestamp >= s.Timestamp
	})
	if i < len(b.samples) && b.samples[i].Timestamp == s.Timestamp {
		return
	}
	b.samples = append(b.samples, Sample{})
	copy(b.samples[i+1:], b.samples[i:])
	b.samples[i] = s

	if len(b.samples) > b.cfg.Capacity {
		n := len(b.samples) - b.cfg.Capacity
		b.samples = append(b.samples[:0], b.samples[n:]...)
	}
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int { return len(b.samples) }

// Newest returns the most recent sample, if any.
func (b *Buffer) Newest() (Sample, bool) {
	if len(b.samples) == 0 {
		return Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Clear drops all buffered samples, used when an entity resyncs.
func (b *Buffer) Clear() { b.samples = b.samples[:0] }

// Sample returns the pose to render at the given local time, evaluated at
// renderTime = now - Delay. With fewer than two samples it holds the single
// known pose; before the window it holds the oldest; past the newest it
// extrapolates along the last velocity up to ExtrapolationLimit and then
// freezes.
func (b *Buffer) Sample(now float64) (netcomponents.NetTransformData, bool) {
	if len(b.samples) == 0 {
		return netcomponents.NetTransformData{}, false
	}
	renderTime := now - b.cfg.Delay

	oldest := b.samples[0]
	newest := b.samples[len(b.samples)-1]

	if renderTime <= oldest.Timestamp || len(b.samples) == 1 {
		return oldest.Transform, true
	}
	if renderTime >= newest.Timestamp {
		return b.extrapolate(newest, renderTime), true
	}

	// Bracket renderTime between two samples and blend linearly.
	i := sort.Search(len(b.samples), func(i int) bool {
		return b.samples[i].Timestamp >= renderTime
	})
	from, to := b.samples[i-1], b.samples[i]
	span := to.Timestamp - from.Timestamp
	if span <= 0 {
		return to.Transform, true
	}
	t := (renderTime - from.Timestamp) / span
	return *netcomponents.LerpNetTransform(from.Transform, to.Transform, t), true
}

// extrapolate projects the newest pose forward along its velocity,
// clamping at the extrapolation limit.
func (b *Buffer) extrapolate(s Sample, renderTime float64) netcomponents.NetTransformData {
	ahead := renderTime - s.Timestamp
	if ahead > b.cfg.ExtrapolationLimit {
		ahead = b.cfg.ExtrapolationLimit
	}
	out := s.Transform
	out.X += s.Velocity.SpeedX * ahead
	out.Y += s.Velocity.SpeedY * ahead
	out.Rotation = gamemath.WrapAngle(out.Rotation)
	return out
}
