package netcomponents

import (
	"math"
	"testing"

	"github.com/automoto/netcode/shared/protocol"
)

func newTestRegistry(t *testing.T) *protocol.Registry {
	t.Helper()
	r := protocol.NewRegistry()
	if err := RegisterAll(r, 4096, 4096); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Seal()
	return r
}

func TestTransformCodecPrecision(t *testing.T) {
	r := newTestRegistry(t)
	c, err := r.Lookup(TagNetTransform)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	in := NetTransformData{X: 1023.37, Y: 2800.01, Rotation: -1.5, ScaleX: 1, ScaleY: 2.5}
	raw, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := got.(NetTransformData)

	// 18 position bits over 4096 units: worst case ~0.016.
	if math.Abs(out.X-in.X) > 0.02 || math.Abs(out.Y-in.Y) > 0.02 {
		t.Fatalf("position drifted: %+v vs %+v", out, in)
	}
	if math.Abs(out.Rotation-in.Rotation) > 0.001 {
		t.Fatalf("rotation drifted: %v vs %v", out.Rotation, in.Rotation)
	}
	if math.Abs(out.ScaleY-in.ScaleY) > 0.01 {
		t.Fatalf("scale drifted: %v vs %v", out.ScaleY, in.ScaleY)
	}
	if len(raw) > 10 {
		t.Fatalf("transform should pack under 10 bytes, got %d", len(raw))
	}
}

func TestActorStateCodecRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	c, err := r.Lookup(TagNetActorState)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	in := NetActorStateData{Grounded: true, Attacking: false, Facing: -1, StateID: 17, Health: 83}
	raw, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("16 bits should pack into 2 bytes, got %d", len(raw))
	}
	got, err := c.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.(NetActorStateData) != in {
		t.Fatalf("got %+v want %+v", got, in)
	}
}

func TestLerpNetTransformShortestArc(t *testing.T) {
	from := NetTransformData{Rotation: 3.0, ScaleX: 1, ScaleY: 1}
	to := NetTransformData{Rotation: -3.0, ScaleX: 1, ScaleY: 1}
	mid := LerpNetTransform(from, to, 0.5)
	// Halfway along the short arc crosses π, not zero.
	if math.Abs(math.Abs(mid.Rotation)-math.Pi) > 1e-9 {
		t.Fatalf("expected rotation near ±π, got %v", mid.Rotation)
	}
}
