package base

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/statewalker/vcs-sub002/storer"
)

// parseFramed reads a full "<type> <size>\0<payload>" frame and returns
// it decomposed, validating that size matches the actual payload length.
func parseFramed(r io.Reader) (storer.Kind, []byte, error) {
	br := bufio.NewReader(r)
	kind, size, err := readHeader(br)
	if err != nil {
		return storer.KindInvalid, nil, err
	}
	payload, err := io.ReadAll(br)
	if err != nil {
		return storer.KindInvalid, nil, err
	}
	if int64(len(payload)) != size {
		return storer.KindInvalid, nil, errSizeMismatch
	}
	return kind, payload, nil
}

// splitFramedStream reads just the header and returns a ReadCloser over
// the remaining payload bytes without buffering them, for blob streaming.
func splitFramedStream(r io.ReadCloser) (storer.Kind, int64, io.ReadCloser, error) {
	br := bufio.NewReader(r)
	kind, size, err := readHeader(br)
	if err != nil {
		r.Close()
		return storer.KindInvalid, 0, nil, err
	}
	return kind, size, &limitedReadCloser{r: io.LimitReader(br, size), c: r}, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error                { return l.c.Close() }

var errSizeMismatch = errFrame("object frame size does not match payload length")

type errFrame string

func (e errFrame) Error() string { return string(e) }

func readHeader(br *bufio.Reader) (storer.Kind, int64, error) {
	typeTag, err := br.ReadString(' ')
	if err != nil {
		return storer.KindInvalid, 0, errFrame("truncated object header")
	}
	kind := storer.ParseKind(strings.TrimSuffix(typeTag, " "))
	if kind == storer.KindInvalid {
		return storer.KindInvalid, 0, errFrame("unknown object type in header")
	}
	sizeStr, err := br.ReadString(0)
	if err != nil {
		return storer.KindInvalid, 0, errFrame("truncated object header")
	}
	sizeStr = strings.TrimSuffix(sizeStr, "\x00")
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return storer.KindInvalid, 0, errFrame("malformed object size in header")
	}
	return kind, size, nil
}
