package netmsg

// BitWriter packs bools and small-range integers contiguously with no byte
// alignment between fields.
type BitWriter struct {
	buf []byte
	n   uint // bits written
}

// WriteBits appends the low `bits` bits of v.
func (w *BitWriter) WriteBits(v uint32, bits uint8) {
	for i := uint8(0); i < bits; i++ {
		if w.n%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v&(1<<i) != 0 {
			w.buf[w.n/8] |= 1 << (w.n % 8)
		}
		w.n++
	}
}

// WriteBool appends a single bit.
func (w *BitWriter) WriteBool(b bool) {
	v := uint32(0)
	if b {
		v = 1
	}
	w.WriteBits(v, 1)
}

// Bytes returns the packed buffer. Trailing bits of the last byte are zero.
func (w *BitWriter) Bytes() []byte { return w.buf }

// Len returns the number of bits written.
func (w *BitWriter) Len() uint { return w.n }

// BitReader reads values packed by BitWriter in write order.
type BitReader struct {
	buf []byte
	n   uint // bits consumed
}

// NewBitReader wraps a packed buffer.
func NewBitReader(buf []byte) *BitReader { return &BitReader{buf: buf} }

// ReadBits reads `bits` bits. Reading past the buffer yields zero bits,
// mirroring the writer's implicit zero padding.
func (r *BitReader) ReadBits(bits uint8) uint32 {
	var v uint32
	for i := uint8(0); i < bits; i++ {
		byteIdx := r.n / 8
		if byteIdx < uint(len(r.buf)) && r.buf[byteIdx]&(1<<(r.n%8)) != 0 {
			v |= 1 << i
		}
		r.n++
	}
	return v
}

// ReadBool reads a single bit.
func (r *BitReader) ReadBool() bool { return r.ReadBits(1) == 1 }
