package netcomponents

import (
	"fmt"

	"github.com/automoto/netcode/shared/netmsg"
)

// InputState is one frame of sampled player intent. It is what PlayerInput
// frames carry, bit-packed to a single byte.
type InputState struct {
	MoveX  int8 // -1 left, 0 idle, 1 right
	Jump   bool
	Attack bool
}

// EncodeInput packs an input sample for the wire.
func EncodeInput(in InputState) []byte {
	var w netmsg.BitWriter
	w.WriteBool(in.MoveX < 0)
	w.WriteBool(in.MoveX > 0)
	w.WriteBool(in.Jump)
	w.WriteBool(in.Attack)
	return w.Bytes()
}

// DecodeInput unpacks an input sample. Opposing directions held together
// cancel out rather than erroring; a wrong payload size is rejected since
// input bytes are untrusted.
func DecodeInput(data []byte) (InputState, error) {
	if len(data) != 1 {
		return InputState{}, fmt.Errorf("input payload is %d bytes, want 1", len(data))
	}
	r := netmsg.NewBitReader(data)
	left := r.ReadBool()
	right := r.ReadBool()
	var in InputState
	switch {
	case left && !right:
		in.MoveX = -1
	case right && !left:
		in.MoveX = 1
	}
	in.Jump = r.ReadBool()
	in.Attack = r.ReadBool()
	return in, nil
}
