package interp

import (
	"math"
	"testing"

	"github.com/automoto/netcode/shared/netcomponents"
)

func sampleAt(ts, x, y float64) Sample {
	return Sample{
		Timestamp: ts,
		Transform: netcomponents.NetTransformData{X: x, Y: y, ScaleX: 1, ScaleY: 1},
	}
}

func TestLinearBlendBetweenBrackets(t *testing.T) {
	b := NewBuffer(Config{Delay: 0.1})
	b.Push(sampleAt(1.0, 0, 0))
	b.Push(sampleAt(1.1, 10, -4))

	// renderTime = 1.05, exactly halfway between the two samples.
	got, ok := b.Sample(1.15)
	if !ok {
		t.Fatal("no sample")
	}
	if math.Abs(got.X-5) > 1e-5 || math.Abs(got.Y-(-2)) > 1e-5 {
		t.Fatalf("blend = (%v, %v), want (5, -2)", got.X, got.Y)
	}
}

func TestOutOfOrderPushKeepsTimestampOrder(t *testing.T) {
	b := NewBuffer(Config{Delay: 0.1})
	b.Push(sampleAt(1.2, 20, 0))
	b.Push(sampleAt(1.0, 0, 0))
	b.Push(sampleAt(1.1, 10, 0))

	got, _ := b.Sample(1.15) // renderTime 1.05 between 1.0 and 1.1
	if math.Abs(got.X-5) > 1e-5 {
		t.Fatalf("blend X = %v, want 5", got.X)
	}
}

func TestBeforeWindowHoldsOldest(t *testing.T) {
	b := NewBuffer(Config{Delay: 0.1})
	b.Push(sampleAt(5.0, 3, 7))
	b.Push(sampleAt(5.1, 9, 9))

	got, _ := b.Sample(4.0)
	if got.X != 3 || got.Y != 7 {
		t.Fatalf("got (%v, %v), want oldest pose", got.X, got.Y)
	}
}

func TestExtrapolationCapsThenFreezes(t *testing.T) {
	b := NewBuffer(Config{Delay: 0.1, ExtrapolationLimit: 0.2})
	s := sampleAt(1.0, 0, 0)
	s.Velocity = netcomponents.NetVelocityData{SpeedX: 10}
	b.Push(sampleAt(0.9, -1, 0))
	b.Push(s)

	// 0.1s past the newest sample: dead reckoning along velocity.
	got, _ := b.Sample(1.2)
	if math.Abs(got.X-1) > 1e-5 {
		t.Fatalf("extrapolated X = %v, want 1", got.X)
	}

	// Far past the limit: frozen at limit * velocity.
	got, _ = b.Sample(5.0)
	if math.Abs(got.X-2) > 1e-5 {
		t.Fatalf("frozen X = %v, want 2", got.X)
	}
}

func TestRotationBlendsShortestArc(t *testing.T) {
	b := NewBuffer(Config{Delay: 0.1})
	a := sampleAt(1.0, 0, 0)
	a.Transform.Rotation = 3.0
	c := sampleAt(1.1, 0, 0)
	c.Transform.Rotation = -3.0
	b.Push(a)
	b.Push(c)

	got, _ := b.Sample(1.15)
	// Halfway across the pi boundary lands near +-pi, never near 0.
	if math.Abs(got.Rotation) < 3.0 {
		t.Fatalf("rotation = %v, took the long way around", got.Rotation)
	}
}

func TestCapacityDiscardsOldest(t *testing.T) {
	b := NewBuffer(Config{Delay: 0, Capacity: 4})
	for i := 0; i < 10; i++ {
		b.Push(sampleAt(float64(i), float64(i), 0))
	}
	if b.Len() != 4 {
		t.Fatalf("len = %d, want 4", b.Len())
	}
	got, _ := b.Sample(0) // renderTime before window
	if got.X != 6 {
		t.Fatalf("oldest X = %v, want 6", got.X)
	}
}

func TestDuplicateTimestampDropped(t *testing.T) {
	b := NewBuffer(Config{})
	b.Push(sampleAt(1.0, 1, 0))
	b.Push(sampleAt(1.0, 99, 0))
	if b.Len() != 1 {
		t.Fatalf("len = %d, want 1", b.Len())
	}
	newest, _ := b.Newest()
	if newest.Transform.X != 1 {
		t.Fatal("duplicate replaced original sample")
	}
}
