package transport

import (
	"io"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/format/pktline"
)

// Sideband channel numbers spec.md §4.12 assigns.
const (
	SidebandData     = 1
	SidebandProgress = 2
	SidebandError    = 3
)

// Progress receives sideband channel 2 (progress) and channel 3 (error)
// text, decoupling the wire demultiplexer from any particular UI.
// Grounded on go-git's plumbing/protocol/packp/sideband package, which
// plays the same role behind a io.Writer instead of this narrower
// interface.
type Progress interface {
	Progress(line string)
	Error(line string)
}

// DiscardProgress implements Progress by dropping everything, the
// default when a caller doesn't ask for sideband progress.
var DiscardProgress Progress = discardProgress{}

type discardProgress struct{}

func (discardProgress) Progress(string) {}
func (discardProgress) Error(string)    {}

// Demux reads a side-band-64k multiplexed pkt-line stream from r,
// writing channel-1 (pack data) bytes to data and forwarding channel-2
// lines to progress.Progress and channel-3 lines to progress.Error.
// Returns once a flush-pkt ends the stream or a channel-3 packet is
// received (an error report always ends the stream).
func Demux(r io.Reader, data io.Writer, progress Progress) error {
	if progress == nil {
		progress = DiscardProgress
	}
	sc := pktline.NewScanner(r)
	for sc.Scan() {
		p := sc.Bytes()
		if len(p) == 0 {
			continue
		}
		channel, payload := p[0], p[1:]
		switch channel {
		case SidebandData:
			if _, err := data.Write(payload); err != nil {
				return core.Wrap(core.KindIO, "write demultiplexed pack data", err)
			}
		case SidebandProgress:
			progress.Progress(string(payload))
		case SidebandError:
			progress.Error(string(payload))
			return core.New(core.KindProtocol, string(payload))
		default:
			return core.New(core.KindProtocol, "sideband: unknown channel byte")
		}
	}
	return sc.Err()
}
