package packfile

import "io"

// decodeLEB128 decodes Git's little-endian base-128 varint (7 data bits
// per byte, MSB is the continuation flag) from the front of b, returning
// the value and the remaining bytes.
func decodeLEB128(b []byte) (uint64, []byte) {
	var v uint64
	var shift uint
	for i, c := range b {
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, b[i+1:]
		}
		shift += 7
	}
	return v, nil
}

func decodeLEB128FromReader(r io.ByteReader) (uint64, error) {
	var v uint64
	var shift uint
	for {
		c, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, nil
		}
		shift += 7
	}
}

// encodeLEB128 appends v to dst in Git's delta-header varint form.
func encodeLEB128(dst []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			dst = append(dst, c|0x80)
		} else {
			dst = append(dst, c)
			return dst
		}
	}
}

// encodeObjectHeaderSize encodes a pack entry's type-and-size header: a
// variable number of bytes, 7 size bits per byte (4 in the first byte,
// which also carries the 3-bit type), MSB-continuation, matching git's
// pack object header (distinct from the plain delta-header varint
// above, which has no type nibble).
func encodeObjectHeaderSize(typeBits byte, size uint64) []byte {
	first := typeBits<<4 | byte(size&0x0f)
	size >>= 4
	if size == 0 {
		return []byte{first}
	}
	out := []byte{first | 0x80}
	for {
		c := byte(size & 0x7f)
		size >>= 7
		if size != 0 {
			out = append(out, c|0x80)
		} else {
			out = append(out, c)
			return out
		}
	}
}

func decodeObjectHeaderSize(r io.ByteReader) (typeBits byte, size uint64, err error) {
	c, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	typeBits = (c >> 4) & 0x07
	size = uint64(c & 0x0f)
	shift := uint(4)
	for c&0x80 != 0 {
		c, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		size |= uint64(c&0x7f) << shift
		shift += 7
	}
	return typeBits, size, nil
}
