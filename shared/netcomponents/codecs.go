package netcomponents

import (
	"fmt"
	"math"

	"github.com/automoto/netcode/shared/netmsg"
	"github.com/automoto/netcode/shared/protocol"
)

// Wire tags. Tags below 10 are reserved.
const (
	TagNetTransform  protocol.ComponentTag = 10
	TagNetVelocity   protocol.ComponentTag = 11
	TagNetActorState protocol.ComponentTag = 12
)

// Quantization widths for the transform codec. Position resolution depends
// on the world bounds passed to RegisterAll; with 18 bits a 4096-unit world
// quantizes to ~0.016 units.
const (
	posBits   = 18
	rotBits   = 16
	scaleBits = 12
	velBits   = 16
	maxSpeed  = 128.0
	maxScale  = 8.0
)

// RegisterAll registers the built-in component codecs against the given
// registry. Both ends must call it with identical world bounds before
// sealing, or transform payloads will decode skewed.
func RegisterAll(r *protocol.Registry, worldW, worldH float64) error {
	qx := netmsg.Quantizer{Min: 0, Max: worldW, Bits: posBits}
	qy := netmsg.Quantizer{Min: 0, Max: worldH, Bits: posBits}
	qrot := netmsg.Quantizer{Min: -math.Pi, Max: math.Pi, Bits: rotBits}
	qscale := netmsg.Quantizer{Min: 0, Max: maxScale, Bits: scaleBits}
	qvel := netmsg.Quantizer{Min: -maxSpeed, Max: maxSpeed, Bits: velBits}

	if err := r.Register(TagNetTransform, protocol.ComponentCodec{
		Name: "net_transform",
		Encode: func(v any) ([]byte, error) {
			d, ok := v.(NetTransformData)
			if !ok {
				return nil, fmt.Errorf("net_transform: unexpected type %T", v)
			}
			var w netmsg.BitWriter
			w.WriteBits(qx.Quantize(d.X), posBits)
			w.WriteBits(qy.Quantize(d.Y), posBits)
			w.WriteBits(qrot.Quantize(d.Rotation), rotBits)
			w.WriteBits(qscale.Quantize(d.ScaleX), scaleBits)
			w.WriteBits(qscale.Quantize(d.ScaleY), scaleBits)
			return w.Bytes(), nil
		},
		Decode: func(data []byte) (any, error) {
			r := netmsg.NewBitReader(data)
			return NetTransformData{
				X:        qx.Dequantize(r.ReadBits(posBits)),
				Y:        qy.Dequantize(r.ReadBits(posBits)),
				Rotation: qrot.Dequantize(r.ReadBits(rotBits)),
				ScaleX:   qscale.Dequantize(r.ReadBits(scaleBits)),
				ScaleY:   qscale.Dequantize(r.ReadBits(scaleBits)),
			}, nil
		},
	}); err != nil {
		return err
	}

	if err := r.Register(TagNetVelocity, protocol.ComponentCodec{
		Name: "net_velocity",
		Encode: func(v any) ([]byte, error) {
			d, ok := v.(NetVelocityData)
			if !ok {
				return nil, fmt.Errorf("net_velocity: unexpected type %T", v)
			}
			var w netmsg.BitWriter
			w.WriteBits(qvel.Quantize(d.SpeedX), velBits)
			w.WriteBits(qvel.Quantize(d.SpeedY), velBits)
			return w.Bytes(), nil
		},
		Decode: func(data []byte) (any, error) {
			r := netmsg.NewBitReader(data)
			return NetVelocityData{
				SpeedX: qvel.Dequantize(r.ReadBits(velBits)),
				SpeedY: qvel.Dequantize(r.ReadBits(velBits)),
			}, nil
		},
	}); err != nil {
		return err
	}

	return r.Register(TagNetActorState, protocol.ComponentCodec{
		Name: "net_actor_state",
		Encode: func(v any) ([]byte, error) {
			d, ok := v.(NetActorStateData)
			if !ok {
				return nil, fmt.Errorf("net_actor_state: unexpected type %T", v)
			}
			var w netmsg.BitWriter
			w.WriteBool(d.Grounded)
			w.WriteBool(d.Attacking)
			w.WriteBool(d.Facing >= 0)
			w.WriteBits(uint32(d.StateID), 6)
			w.WriteBits(uint32(d.Health), 7)
			return w.Bytes(), nil
		},
		Decode: func(data []byte) (any, error) {
			r := netmsg.NewBitReader(data)
			d := NetActorStateData{
				Grounded:  r.ReadBool(),
				Attacking: r.ReadBool(),
			}
			if r.ReadBool() {
				d.Facing = 1
			} else {
				d.Facing = -1
			}
			d.StateID = uint8(r.ReadBits(6))
			d.Health = uint8(r.ReadBits(7))
			return d, nil
		},
	})
}
