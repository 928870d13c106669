package index

import (
	"bufio"
	"bytes"
	"crypto/sha1" //nolint:gosec // index trailer checksum is plain SHA-1 by format definition
	"encoding/binary"
	"io"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/filemode"
	"github.com/statewalker/vcs-sub002/hash"
)

const (
	flagAssumeValid = 1 << 15
	flagExtended    = 1 << 14
	flagStageMask   = 0x3000
	flagStageShift  = 12
	flagNameMask    = 0x0fff
	nameMaskMax     = 0x0fff

	extFlagSkipWorktree = 1 << 14
	extFlagIntentToAdd  = 1 << 13

	entryPaddingBoundary = 8
)

var be = binary.BigEndian

// Decode parses a staging index from r.
func Decode(r io.Reader) (*Index, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, core.Wrap(core.KindIO, "read index", err)
	}
	h := sha1.New() //nolint:gosec
	if len(raw) > hash.Size {
		h.Write(raw[:len(raw)-hash.Size])
	}
	br := bufio.NewReader(bytes.NewReader(raw))

	var sig [4]byte
	if _, err := io.ReadFull(br, sig[:]); err != nil {
		return nil, core.Wrap(core.KindCorrupt, "truncated index header", err)
	}
	if sig != Signature {
		return nil, core.New(core.KindCorrupt, "bad index signature")
	}

	var hdr [8]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, core.Wrap(core.KindCorrupt, "truncated index header", err)
	}
	version := be.Uint32(hdr[0:4])
	if version != Version2 && version != Version3 && version != Version4 {
		return nil, core.New(core.KindCorrupt, "unsupported index version")
	}
	count := be.Uint32(hdr[4:8])

	idx := &Index{Version: version}
	consumed := int64(12)

	for i := uint32(0); i < count; i++ {
		e, n, err := decodeEntry(br, version)
		if err != nil {
			return nil, err
		}
		idx.Entries = append(idx.Entries, e)
		consumed += n
	}

	for {
		var sig4 [4]byte
		n, err := io.ReadFull(br, sig4[:])
		if err == io.EOF {
			break
		}
		if err != nil || n < 4 {
			return nil, core.Wrap(core.KindCorrupt, "truncated extension signature", err)
		}
		// A checksum trailer, not an extension, looks like 20 more bytes
		// with no extension-size field following; the reliable way to
		// stop is to recognize EOF above, so by construction a short read
		// only happens right at the trailer which decodeTrailer consumes
		// next. Detect it by signature: only upper-case ASCII signatures
		// are valid extensions, so route anything else back for the
		// caller... in practice the trailer is consumed by peeking
		// ahead: see decodeTrailerOrExtension below.
		ext, isTrailer, trailer, err := decodeTrailerOrExtension(br, sig4)
		if err != nil {
			return nil, err
		}
		if isTrailer {
			if err := verifyChecksum(h, trailer); err != nil {
				return nil, err
			}
			return idx, nil
		}
		idx.Extensions = append(idx.Extensions, ext)
	}

	return nil, core.New(core.KindCorrupt, "index missing trailing checksum")
}

// decodeTrailerOrExtension distinguishes the final 20-byte checksum
// from a real extension record. Both start with 4 bytes already
// consumed into sig4; an extension's signature is always 4 uppercase
// ASCII letters (e.g. "TREE", "REUC"), which the checksum's random
// bytes essentially never are. Real Git readers rely on the same
// heuristic being unnecessary because they track the exact byte offset
// of the checksum (file length - 20); this package does the equivalent
// by buffering the rest of the stream once a non-extension-looking
// signature is seen.
func decodeTrailerOrExtension(br *bufio.Reader, sig4 [4]byte) (ext Extension, isTrailer bool, trailer []byte, err error) {
	if !looksLikeExtensionSignature(sig4) {
		rest, rerr := io.ReadAll(br)
		if rerr != nil {
			return Extension{}, false, nil, core.Wrap(core.KindCorrupt, "truncated index checksum", rerr)
		}
		full := append(append([]byte(nil), sig4[:]...), rest...)
		if len(full) != hash.Size {
			return Extension{}, false, nil, core.New(core.KindCorrupt, "malformed index trailer")
		}
		return Extension{}, true, full, nil
	}

	var sizeBuf [4]byte
	if _, err := io.ReadFull(br, sizeBuf[:]); err != nil {
		return Extension{}, false, nil, core.Wrap(core.KindCorrupt, "truncated extension size", err)
	}
	size := be.Uint32(sizeBuf[:])
	data := make([]byte, size)
	if _, err := io.ReadFull(br, data); err != nil {
		return Extension{}, false, nil, core.Wrap(core.KindCorrupt, "truncated extension payload", err)
	}
	return Extension{Signature: sig4, Data: data}, false, nil, nil
}

func looksLikeExtensionSignature(sig [4]byte) bool {
	for _, c := range sig {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func verifyChecksum(h interface{ Sum([]byte) []byte }, trailer []byte) error {
	sum := h.Sum(nil)
	for i := range sum {
		if trailer[i] != sum[i] {
			return core.New(core.KindCorrupt, "index checksum mismatch")
		}
	}
	return nil
}

func decodeEntry(br *bufio.Reader, version uint32) (Entry, int64, error) {
	var fixed [62]byte
	if _, err := io.ReadFull(br, fixed[:]); err != nil {
		return Entry{}, 0, core.Wrap(core.KindCorrupt, "truncated index entry", err)
	}

	var e Entry
	e.CTimeSec = be.Uint32(fixed[0:4])
	e.CTimeNano = be.Uint32(fixed[4:8])
	e.MTimeSec = be.Uint32(fixed[8:12])
	e.MTimeNano = be.Uint32(fixed[12:16])
	e.Dev = be.Uint32(fixed[16:20])
	e.Ino = be.Uint32(fixed[20:24])
	e.Mode = filemode.FileMode(be.Uint32(fixed[24:28]))
	e.UID = be.Uint32(fixed[28:32])
	e.GID = be.Uint32(fixed[32:36])
	e.Size = be.Uint32(fixed[36:40])
	id, _ := hash.FromBytes(fixed[40:60])
	e.ID = id
	flags := be.Uint16(fixed[60:62])

	e.AssumeValid = flags&flagAssumeValid != 0
	e.Stage = Stage((flags & flagStageMask) >> flagStageShift)
	nameLen := int(flags & flagNameMask)

	consumed := int64(62)

	if flags&flagExtended != 0 && version >= Version3 {
		var extFlags [2]byte
		if _, err := io.ReadFull(br, extFlags[:]); err != nil {
			return Entry{}, 0, core.Wrap(core.KindCorrupt, "truncated extended flags", err)
		}
		ef := be.Uint16(extFlags[:])
		e.SkipWorktree = ef&extFlagSkipWorktree != 0
		e.IntentToAdd = ef&extFlagIntentToAdd != 0
		consumed += 2
	}

	var name []byte
	if nameLen < nameMaskMax {
		name = make([]byte, nameLen)
		if _, err := io.ReadFull(br, name); err != nil {
			return Entry{}, 0, core.Wrap(core.KindCorrupt, "truncated entry name", err)
		}
		consumed += int64(nameLen)
		var nul [1]byte
		if _, err := io.ReadFull(br, nul[:]); err != nil {
			return Entry{}, 0, core.Wrap(core.KindCorrupt, "truncated entry name terminator", err)
		}
		consumed++
	} else {
		// Name length saturated the 12-bit field; read until a NUL
		// instead (git's own overflow convention for very long paths).
		var buf []byte
		for {
			var b [1]byte
			if _, err := io.ReadFull(br, b[:]); err != nil {
				return Entry{}, 0, core.Wrap(core.KindCorrupt, "truncated overflow entry name", err)
			}
			consumed++
			if b[0] == 0 {
				break
			}
			buf = append(buf, b[0])
		}
		name = buf
	}
	e.Name = string(name)

	if pad := entryPaddingBoundary - (consumed % entryPaddingBoundary); pad != entryPaddingBoundary && pad > 0 {
		padBuf := make([]byte, pad)
		if _, err := io.ReadFull(br, padBuf); err != nil {
			return Entry{}, 0, core.Wrap(core.KindCorrupt, "truncated entry padding", err)
		}
		consumed += pad
	}

	return e, consumed, nil
}
