package netmsg

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	update := EntityUpdate{
		EntityID: 42,
		Tick:     100,
		Components: []ComponentUpdate{
			{Tag: 10, Bytes: []byte{1, 2, 3}, IsDelta: false},
			{Tag: 11, Bytes: []byte{9}, IsDelta: true},
		},
	}
	raw, err := EncodeFrame(TypeSnapshot, 7, 100, 1.5, Snapshot{Tick: 100, Entities: []EntityUpdate{update}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	frame, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.Type != TypeSnapshot || frame.Sequence != 7 || frame.Tick != 100 {
		t.Fatalf("bad envelope: %+v", frame)
	}

	var snap Snapshot
	if err := Unmarshal(frame.Payload, &snap); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(snap.Entities) != 1 {
		t.Fatalf("want 1 entity, got %d", len(snap.Entities))
	}
	got := snap.Entities[0]
	if got.EntityID != 42 || len(got.Components) != 2 {
		t.Fatalf("bad entity update: %+v", got)
	}
	if !bytes.Equal(got.Components[0].Bytes, []byte{1, 2, 3}) || got.Components[1].IsDelta != true {
		t.Fatalf("bad components: %+v", got.Components)
	}
}

func TestDecodeFrameCorrupt(t *testing.T) {
	if _, err := DecodeFrame([]byte{0xc1, 0xff, 0x00}); err == nil {
		t.Fatal("want error for corrupt frame")
	}
}

func TestRpcCallRoundTrip(t *testing.T) {
	call := RpcCall{
		Target:   TargetAllClientsExcept,
		TargetID: 3,
		Function: "explode",
		Params:   []byte{0x01},
		Reliable: true,
		CallID:   12,
	}
	raw, err := Marshal(call)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got RpcCall
	if err := Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Function != "explode" || got.Target != TargetAllClientsExcept || got.TargetID != 3 {
		t.Fatalf("mismatch: %+v", got)
	}
}
