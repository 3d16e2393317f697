package netmsg

import "math"

// Quantizer maps floats in [Min, Max] to fixed-width integers of Bits bits.
// The mapping is lossy; the maximum error is (Max-Min) / 2^Bits.
type Quantizer struct {
	Min, Max float64
	Bits     uint8
}

// Quantize maps v into the integer range. Values outside [Min, Max] clamp.
func (q Quantizer) Quantize(v float64) uint32 {
	if v < q.Min {
		v = q.Min
	}
	if v > q.Max {
		v = q.Max
	}
	steps := float64(uint64(1)<<q.Bits - 1)
	return uint32(math.Round((v - q.Min) / (q.Max - q.Min) * steps))
}

// Dequantize reverses the mapping.
func (q Quantizer) Dequantize(u uint32) float64 {
	steps := float64(uint64(1)<<q.Bits - 1)
	return q.Min + float64(u)/steps*(q.Max-q.Min)
}

// MaxError is the worst-case quantization error for this range and width.
func (q Quantizer) MaxError() float64 {
	return (q.Max - q.Min) / float64(uint64(1)<<q.Bits)
}
