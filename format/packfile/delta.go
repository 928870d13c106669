// Package packfile implements Git's pack container format (§4.2):
// framing, per-entry type-and-size headers, ref-delta/ofs-delta
// resolution, and the delta instruction codec itself. Grounded on
// go-git's plumbing/format/packfile package, in particular
// patch_delta.go for the copy/insert opcode layout, adapted into a
// from-scratch encoder (go-git's diff_delta.go wasn't present in the
// retrieved snapshot) using a block-hash greedy matcher in the spirit of
// the same git delta format.
package packfile

import (
	"github.com/statewalker/vcs-sub002/core"
)

// Malformed deltas are reported as core.KindCorrupt errors built by
// corruptDelta; callers branch on the Kind, not on the message.

const (
	minCopySize    = 4
	maxCopySize    = 0x10000 // 64KiB per single copy instruction; longer runs are chunked
	maxInsertSize  = 0x7f    // insert opcode's low 7 bits encode the length directly
	copyOpFlag     = 0x80
)

// copy/size field bit layout within a copy opcode's flag byte.
var offsetShifts = [4]uint{0, 8, 16, 24}
var sizeShifts = [3]uint{0, 8, 16}

// ApplyDelta reconstructs the target bytes by replaying delta's
// copy/insert instructions against base. It verifies the declared base
// size against len(base) and the declared result size against the
// number of bytes actually produced, failing with core.Corrupt
// otherwise — spec.md invariant 5 (§8) and the ApplyDelta contract in
// §4.2.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	baseSize, rest := decodeLEB128(delta)
	if rest == nil {
		return nil, corruptDelta("truncated delta header")
	}
	if baseSize != uint64(len(base)) {
		return nil, corruptDelta("delta base size does not match supplied base")
	}

	resultSize, rest := decodeLEB128(rest)
	if rest == nil && resultSize != 0 {
		return nil, corruptDelta("truncated delta header")
	}

	out := make([]byte, 0, resultSize)

	for len(rest) > 0 {
		cmd := rest[0]
		rest = rest[1:]

		switch {
		case cmd == 0:
			return nil, corruptDelta("delta opcode 0 is reserved")

		case cmd&copyOpFlag != 0:
			var offset, size uint64
			var err error
			offset, rest, err = readFlaggedFields(cmd, rest, offsetShifts[:])
			if err != nil {
				return nil, err
			}
			size, rest, err = readFlaggedFields(cmd>>4, rest, sizeShifts[:])
			if err != nil {
				return nil, err
			}
			if size == 0 {
				size = 0x10000
			}
			if offset+size > uint64(len(base)) {
				return nil, corruptDelta("copy instruction reads past end of base")
			}
			out = append(out, base[offset:offset+size]...)

		default: // insert: cmd is the literal byte count, 1..127
			n := int(cmd)
			if len(rest) < n {
				return nil, corruptDelta("truncated insert payload")
			}
			out = append(out, rest[:n]...)
			rest = rest[n:]
		}
	}

	if uint64(len(out)) != resultSize {
		return nil, corruptDelta("delta produced wrong result size")
	}
	return out, nil
}

// readFlaggedFields decodes a little-endian multi-byte field whose
// constituent bytes are only present when their corresponding bit in
// flags is set (the copy opcode's offset and size both use this coding,
// with separate 4-bit and 3-bit flag groups).
func readFlaggedFields(flags byte, b []byte, shifts []uint) (uint64, []byte, error) {
	var v uint64
	for i, shift := range shifts {
		if flags&(1<<uint(i)) == 0 {
			continue
		}
		if len(b) == 0 {
			return 0, nil, corruptDelta("truncated copy instruction field")
		}
		v |= uint64(b[0]) << shift
		b = b[1:]
	}
	return v, b, nil
}

func corruptDelta(msg string) error { return core.New(core.KindCorrupt, "invalid delta: "+msg) }

// ComputeDelta builds a delta transforming base into target. The result
// always holds at least the base-size and result-size headers, even for
// an empty target. The caller
// (the pack writer) applies the target-size ratio check from spec.md
// §4.2 ("keep the delta if its size is <= targetSize*deltaRatio") since
// that decision depends on sibling candidates, not on this function
// alone.
func ComputeDelta(base, target []byte) []byte {
	out := encodeLEB128(nil, uint64(len(base)))
	out = encodeLEB128(out, uint64(len(target)))

	index := indexBlocks(base)

	var literal []byte
	flushLiteral := func() {
		for len(literal) > 0 {
			n := len(literal)
			if n > maxInsertSize {
				n = maxInsertSize
			}
			out = append(out, byte(n))
			out = append(out, literal[:n]...)
			literal = literal[n:]
		}
	}

	pos := 0
	for pos < len(target) {
		matchOff, matchLen := bestMatch(index, base, target, pos)
		if matchLen >= minCopySize {
			flushLiteral()
			emitCopy(&out, matchOff, matchLen)
			pos += matchLen
			continue
		}
		literal = append(literal, target[pos])
		pos++
	}
	flushLiteral()

	return out
}

func emitCopy(out *[]byte, offset, size int) {
	for size > 0 {
		chunk := size
		if chunk > maxCopySize {
			chunk = maxCopySize
		}
		flagIdx := len(*out)
		*out = append(*out, 0) // placeholder, filled below
		var flags byte = copyOpFlag

		o := uint32(offset)
		for i, shift := range offsetShifts {
			b := byte(o >> shift)
			if b != 0 {
				flags |= 1 << uint(i)
				*out = append(*out, b)
			}
		}
		s := uint32(chunk)
		encodedSize := s
		if encodedSize == 0x10000 {
			// encoding 0 bytes for size defaults to 0x10000 on decode
			encodedSize = 0
		}
		for i, shift := range sizeShifts {
			b := byte(encodedSize >> shift)
			if b != 0 {
				flags |= 1 << uint(4+i)
				*out = append(*out, b)
			}
		}
		(*out)[flagIdx] = flags

		offset += chunk
		size -= chunk
	}
}

const blockSize = 16

// blockIndex maps a rolling 16-byte block hash to candidate offsets in
// base, capped per bucket to keep worst-case matching bounded.
type blockIndex map[uint64][]int

func indexBlocks(base []byte) blockIndex {
	idx := make(blockIndex)
	if len(base) < blockSize {
		return idx
	}
	for i := 0; i+blockSize <= len(base); i++ {
		h := blockHash(base[i : i+blockSize])
		bucket := idx[h]
		if len(bucket) < 32 {
			idx[h] = append(bucket, i)
		}
	}
	return idx
}

func blockHash(b []byte) uint64 {
	var h uint64 = 1469598103934665603 // FNV-1a offset basis
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}

// bestMatch finds the longest run of base bytes matching target starting
// at pos, among the (bounded) candidate offsets sharing target's block
// hash at pos.
func bestMatch(index blockIndex, base, target []byte, pos int) (offset, length int) {
	if pos+blockSize > len(target) {
		return 0, 0
	}
	h := blockHash(target[pos : pos+blockSize])
	candidates := index[h]
	best := 0
	bestOff := 0
	for _, c := range candidates {
		l := matchLength(base, target, c, pos)
		if l > best {
			best = l
			bestOff = c
		}
	}
	return bestOff, best
}

func matchLength(base, target []byte, bo, to int) int {
	n := 0
	for bo+n < len(base) && to+n < len(target) && base[bo+n] == target[to+n] {
		n++
	}
	return n
}
