package netmsg

import (
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// mh is the shared msgpack handle. WriteExt keeps encodings symmetric
// between both ends.
var mh = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	return h
}()

// SerializationError wraps a malformed or corrupt payload. Receivers drop
// the single message and keep the connection alive.
type SerializationError struct {
	What string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization: %s: %v", e.What, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Marshal encodes v with msgpack.
func Marshal(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, mh).Encode(v); err != nil {
		return nil, &SerializationError{What: "encode", Err: err}
	}
	return out, nil
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	if err := codec.NewDecoderBytes(data, mh).Decode(v); err != nil {
		return &SerializationError{What: "decode", Err: err}
	}
	return nil
}

// EncodeFrame wraps a payload variant into a Frame and encodes the whole
// envelope for the transport.
func EncodeFrame(t MessageType, sequence, tick uint32, timestamp float64, payload any) ([]byte, error) {
	body, err := Marshal(payload)
	if err != nil {
		return nil, err
	}
	return Marshal(Frame{
		Type:      t,
		Sequence:  sequence,
		Tick:      tick,
		Timestamp: timestamp,
		Payload:   body,
	})
}

// DecodeFrame decodes the outer envelope. The payload variant is decoded
// separately by the demux switch on Frame.Type.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}
