package idxfile

import (
	"bufio"
	"crypto/sha1" //nolint:gosec // the idx trailer is a plain (non-collision-detecting) SHA-1 by format definition
	"encoding/binary"
	"io"

	"github.com/statewalker/vcs-sub002/hash"
)

// Encode writes idx in the v2 on-disk format to w, returning the total
// bytes written. The final 20 bytes written are the SHA-1 of everything
// that precedes them (the idx-self-checksum); the 20 bytes before that
// are idx.PackChecksum, copied verbatim from the pack's own trailer.
func Encode(w io.Writer, idx *Index) (int64, error) {
	h := sha1.New() //nolint:gosec
	bw := bufio.NewWriter(io.MultiWriter(w, h))

	var n int64
	write := func(p []byte) error {
		nn, err := bw.Write(p)
		n += int64(nn)
		return err
	}

	if err := write(Magic[:]); err != nil {
		return n, err
	}
	var verBuf [4]byte
	be.PutUint32(verBuf[:], Version2)
	if err := write(verBuf[:]); err != nil {
		return n, err
	}

	fan := idx.fanout()
	for _, f := range fan {
		var b [4]byte
		be.PutUint32(b[:], f)
		if err := write(b[:]); err != nil {
			return n, err
		}
	}

	for _, e := range idx.Entries {
		if err := write(e.ID.Bytes()); err != nil {
			return n, err
		}
	}

	for _, e := range idx.Entries {
		var b [4]byte
		be.PutUint32(b[:], e.CRC32)
		if err := write(b[:]); err != nil {
			return n, err
		}
	}

	var largeOffsets []int64
	for _, e := range idx.Entries {
		var b [4]byte
		if e.Offset > 0x7fffffff {
			be.PutUint32(b[:], largeOffsetFlag|uint32(len(largeOffsets)))
			largeOffsets = append(largeOffsets, e.Offset)
		} else {
			be.PutUint32(b[:], uint32(e.Offset))
		}
		if err := write(b[:]); err != nil {
			return n, err
		}
	}

	for _, off := range largeOffsets {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(off))
		if err := write(b[:]); err != nil {
			return n, err
		}
	}

	if err := write(idx.PackChecksum.Bytes()); err != nil {
		return n, err
	}

	if err := bw.Flush(); err != nil {
		return n, err
	}

	sum := h.Sum(nil)
	id, _ := hash.FromBytes(sum)
	nn, err := w.Write(id.Bytes())
	n += int64(nn)
	return n, err
}
