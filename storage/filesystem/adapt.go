package filesystem

import (
	"bytes"
	"io"
	"sync"
)

// seekReaderAt adapts any io.ReadSeeker (billy.File only guarantees
// Seek, not ReadAt) into io.ReaderAt by serializing seek-then-read
// under a mutex. Pack random access is bursty rather than concurrent-hot
// for this engine's use (one delta chain at a time per Reader.Get call),
// so the serialization isn't a bottleneck in practice.
type seekReaderAt struct {
	mu sync.Mutex
	rs io.ReadSeeker
}

func newSeekReaderAt(rs io.ReadSeeker) *seekReaderAt { return &seekReaderAt{rs: rs} }

func (s *seekReaderAt) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.rs, p)
}

func byteReaderOf(b []byte) io.Reader { return bytes.NewReader(b) }
