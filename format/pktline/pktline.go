// Package pktline implements Git's wire framing: each packet is a
// 4-hex-digit length prefix (counting itself) followed by that many
// payload bytes. Special lengths: 0000 flush, 0001 delim (protocol v2),
// 0002 response-end (protocol v2). Grounded on go-git's
// plumbing/format/pktline package (pktline.go, reader.go, writer.go).
package pktline

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/internal/trace"
)

const (
	lenSize = 4
	// MaxPayloadSize is the largest payload a single packet may carry
	// (65516 = 65520 - 4-byte length prefix, matching git's pkt-line
	// cap).
	MaxPayloadSize = 65516
)

// Special length values.
const (
	Flush       = 0
	Delim       = 1
	ResponseEnd = 2
)

var (
	flushPkt = []byte("0000")
	delimPkt = []byte("0001")
	endPkt   = []byte("0002")

	// ErrPayloadTooLong is returned by WritePacket when p exceeds
	// MaxPayloadSize.
	ErrPayloadTooLong = errors.New("pktline: payload exceeds maximum packet size")
)

// WritePacket writes a single data packet containing p.
func WritePacket(w io.Writer, p []byte) (int, error) {
	if len(p) > MaxPayloadSize {
		return 0, ErrPayloadTooLong
	}
	total := len(p) + lenSize
	n, err := w.Write([]byte(fmt.Sprintf("%04x", total)))
	if err != nil {
		return n, err
	}
	n2, err := w.Write(p)
	trace.Packet.Printf("pktline: > %04x %q", total, p)
	return n + n2, err
}

// WritePacketString writes a data packet from a string.
func WritePacketString(w io.Writer, s string) (int, error) { return WritePacket(w, []byte(s)) }

// WritePacketLine writes s with a trailing newline appended, the
// convention Git uses for most textual pkt-lines.
func WritePacketLine(w io.Writer, s string) (int, error) { return WritePacket(w, []byte(s+"\n")) }

// WriteFlush writes a flush-pkt (signals end of a command/section).
func WriteFlush(w io.Writer) error {
	_, err := w.Write(flushPkt)
	trace.Packet.Printf("pktline: > 0000 (flush)")
	return err
}

// WriteDelim writes a delim-pkt (protocol v2 section separator).
func WriteDelim(w io.Writer) error {
	_, err := w.Write(delimPkt)
	return err
}

// WriteResponseEnd writes a response-end-pkt (protocol v2).
func WriteResponseEnd(w io.Writer) error {
	_, err := w.Write(endPkt)
	return err
}

// Packet is one decoded pkt-line: Length is the special marker (Flush,
// Delim, ResponseEnd) or -1 for an ordinary data packet whose bytes are
// in Data.
type Packet struct {
	Length int
	Data   []byte
}

// IsFlush, IsDelim, IsResponseEnd classify special packets.
func (p Packet) IsFlush() bool       { return p.Length == Flush }
func (p Packet) IsDelim() bool       { return p.Length == Delim }
func (p Packet) IsResponseEnd() bool { return p.Length == ResponseEnd }

// ReadPacket reads and decodes a single pkt-line from r.
func ReadPacket(r io.Reader) (Packet, error) {
	var lenBuf [lenSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Packet{}, core.Wrap(core.KindProtocol, "truncated pkt-line length", err)
		}
		return Packet{}, core.Wrap(core.KindIO, "read pkt-line length", err)
	}

	length, err := parseLength(lenBuf[:])
	if err != nil {
		return Packet{}, err
	}

	switch length {
	case Flush, Delim, ResponseEnd:
		trace.Packet.Printf("pktline: < %04x (special)", length)
		return Packet{Length: length}, nil
	}

	dataLen := length - lenSize
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return Packet{}, core.Wrap(core.KindProtocol, "truncated pkt-line payload", err)
	}

	trace.Packet.Printf("pktline: < %04x %q", length, data)
	return Packet{Length: -1, Data: data}, nil
}

func parseLength(b []byte) (int, error) {
	n := 0
	for _, c := range b {
		n <<= 4
		switch {
		case c >= '0' && c <= '9':
			n |= int(c - '0')
		case c >= 'a' && c <= 'f':
			n |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			n |= int(c-'A') + 10
		default:
			return 0, core.New(core.KindProtocol, fmt.Sprintf("invalid pkt-line length digit %q", c))
		}
	}
	if n > ResponseEnd && n < lenSize {
		return 0, core.New(core.KindProtocol, "pkt-line length shorter than header")
	}
	if n > MaxPayloadSize+lenSize {
		return 0, core.New(core.KindProtocol, "pkt-line length exceeds maximum packet size")
	}
	return n, nil
}

// ReadAllPackets reads packets from r until a flush-pkt (inclusive) or
// EOF, returning only the data packets.
func ReadAllPackets(r io.Reader) ([][]byte, error) {
	var out [][]byte
	for {
		p, err := ReadPacket(r)
		if err != nil {
			return out, err
		}
		if p.IsFlush() {
			return out, nil
		}
		out = append(out, p.Data)
	}
}

// Scanner provides line-oriented iteration over a pkt-line stream,
// mirroring the ergonomics of bufio.Scanner.
type Scanner struct {
	r       io.Reader
	pkt     Packet
	err     error
}

// NewScanner wraps r.
func NewScanner(r io.Reader) *Scanner { return &Scanner{r: r} }

// Scan advances to the next packet; returns false at flush or error.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	p, err := ReadPacket(s.r)
	if err != nil {
		s.err = err
		return false
	}
	s.pkt = p
	return !p.IsFlush()
}

// Bytes returns the current packet's payload (empty for delim/response-end).
func (s *Scanner) Bytes() []byte { return s.pkt.Data }

// Packet returns the full decoded current packet.
func (s *Scanner) Packet() Packet { return s.pkt }

// Err returns the first non-flush error encountered.
func (s *Scanner) Err() error {
	if errors.Is(s.err, io.EOF) {
		return nil
	}
	return s.err
}

// TrimLF trims a single trailing newline, the common convention for
// textual pkt-lines.
func TrimLF(b []byte) []byte { return bytes.TrimSuffix(b, []byte("\n")) }
