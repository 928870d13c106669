package index

import (
	"bufio"
	"crypto/sha1" //nolint:gosec // index trailer checksum is plain SHA-1 by format definition
	"io"

	"github.com/statewalker/vcs-sub002/core"
)

// Encode writes idx in its declared version's on-disk format to w,
// followed by the SHA-1 checksum of everything written before it.
func Encode(w io.Writer, idx *Index) error {
	h := sha1.New() //nolint:gosec
	bw := bufio.NewWriter(io.MultiWriter(w, h))

	if _, err := bw.Write(Signature[:]); err != nil {
		return err
	}
	var hdr [8]byte
	be.PutUint32(hdr[0:4], idx.Version)
	be.PutUint32(hdr[4:8], uint32(len(idx.Entries)))
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}

	for _, e := range idx.Entries {
		if err := encodeEntry(bw, idx.Version, e); err != nil {
			return err
		}
	}

	for _, ext := range idx.Extensions {
		if _, err := bw.Write(ext.Signature[:]); err != nil {
			return err
		}
		var sizeBuf [4]byte
		be.PutUint32(sizeBuf[:], uint32(len(ext.Data)))
		if _, err := bw.Write(sizeBuf[:]); err != nil {
			return err
		}
		if _, err := bw.Write(ext.Data); err != nil {
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	_, err := w.Write(h.Sum(nil))
	return err
}

func encodeEntry(bw *bufio.Writer, version uint32, e Entry) error {
	var fixed [62]byte
	be.PutUint32(fixed[0:4], e.CTimeSec)
	be.PutUint32(fixed[4:8], e.CTimeNano)
	be.PutUint32(fixed[8:12], e.MTimeSec)
	be.PutUint32(fixed[12:16], e.MTimeNano)
	be.PutUint32(fixed[16:20], e.Dev)
	be.PutUint32(fixed[20:24], e.Ino)
	be.PutUint32(fixed[24:28], uint32(e.Mode))
	be.PutUint32(fixed[28:32], e.UID)
	be.PutUint32(fixed[32:36], e.GID)
	be.PutUint32(fixed[36:40], e.Size)
	copy(fixed[40:60], e.ID.Bytes())

	extended := version >= Version3 && (e.SkipWorktree || e.IntentToAdd)

	nameLen := len(e.Name)
	flagNameLen := nameLen
	if flagNameLen > nameMaskMax {
		flagNameLen = nameMaskMax
	}
	var flags uint16
	if e.AssumeValid {
		flags |= flagAssumeValid
	}
	if extended {
		flags |= flagExtended
	}
	flags |= uint16(e.Stage) << flagStageShift & flagStageMask
	flags |= uint16(flagNameLen) & flagNameMask
	be.PutUint16(fixed[60:62], flags)

	if _, err := bw.Write(fixed[:]); err != nil {
		return err
	}
	consumed := int64(62)

	if extended {
		var ef uint16
		if e.SkipWorktree {
			ef |= extFlagSkipWorktree
		}
		if e.IntentToAdd {
			ef |= extFlagIntentToAdd
		}
		var efBuf [2]byte
		be.PutUint16(efBuf[:], ef)
		if _, err := bw.Write(efBuf[:]); err != nil {
			return err
		}
		consumed += 2
	}

	if _, err := bw.WriteString(e.Name); err != nil {
		return err
	}
	consumed += int64(nameLen)
	if err := bw.WriteByte(0); err != nil {
		return err
	}
	consumed++

	if pad := entryPaddingBoundary - (consumed % entryPaddingBoundary); pad != entryPaddingBoundary && pad > 0 {
		if _, err := bw.Write(make([]byte, pad)); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the small set of invariants Encode relies on callers
// having already enforced (sorted, unique (name,stage), no duplicate
// stage for the same name beyond 1/2/3): returns a core.Corrupt error
// describing the first violation, or nil.
func Validate(entries []Entry) error {
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if cur.Name < prev.Name {
			return core.New(core.KindCorrupt, "index entries are not sorted by name")
		}
		if cur.Name == prev.Name && cur.Stage <= prev.Stage {
			return core.New(core.KindCorrupt, "index has duplicate or out-of-order stage for a path")
		}
	}
	return nil
}
