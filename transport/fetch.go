package transport

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/format/pktline"
	"github.com/statewalker/vcs-sub002/hash"
)

// haveBatchSize is how many "have" lines are sent before each flush, the
// batching real Git clients use so a server with lots of common history
// can ACK early instead of waiting for every local ref to be offered.
const haveBatchSize = 32

// FetchRequest describes one v1 fetch negotiation.
type FetchRequest struct {
	Wants       []hash.ID
	Haves       []hash.ID // caller's local ref tips, most-likely-common first
	Shallow     []hash.ID
	Depth       int
	IncludeTags bool
	// Progress, if non-nil, requests a sideband channel and receives its
	// progress/error lines; the returned pack reader is demultiplexed
	// automatically either way.
	Progress Progress
}

// FetchResult is the outcome of a successful negotiation: the pack
// itself (already demultiplexed from sideband, if negotiated) is ready
// to hand to format/packfile's reader/importer.
type FetchResult struct {
	Capabilities []string
	Shallows     []hash.ID
	Unshallows   []hash.ID
	Pack         io.Reader
}

// Fetch runs spec.md §4.12's v1 state machine: ADVERT (already read by
// the caller via ListRefs, or read here if not) → WANT → HAVE/ACK loop →
// DONE → PACK. conn must already be connected to the service endpoint;
// the caller closes conn once Pack is fully drained.
func Fetch(ctx context.Context, conn Conn, adv *AdvertisedRefs, req FetchRequest) (*FetchResult, error) {
	if len(req.Wants) == 0 {
		return nil, core.New(core.KindPrecondition, "fetch: no wants specified")
	}
	if adv == nil {
		var err error
		adv, err = ReadAdvertisement(conn)
		if err != nil {
			return nil, err
		}
	}

	caps := negotiate(adv.Capabilities)
	if !req.IncludeTags {
		caps = removeCap(caps, "include-tag")
	}
	if req.Progress == nil {
		caps = removeCap(caps, "side-band-64k")
		if !hasCap(caps, "no-progress") && adv.Has("no-progress") {
			caps = append(caps, "no-progress")
		}
	} else {
		caps = removeCap(caps, "no-progress")
	}
	sideband := hasCap(caps, "side-band-64k") || hasCap(caps, "side-band")
	multiAck := hasCap(caps, "multi_ack_detailed") || hasCap(caps, "multi_ack")

	if err := writeWants(conn, req, caps); err != nil {
		return nil, err
	}

	var shallows, unshallows []hash.ID
	if req.Depth > 0 {
		var err error
		shallows, unshallows, err = readShallowUpdate(conn)
		if err != nil {
			return nil, err
		}
	}

	if err := ctxDone(ctx); err != nil {
		return nil, err
	}

	acked, err := negotiateHaves(conn, req.Haves, multiAck)
	if err != nil {
		return nil, err
	}
	if !acked && len(req.Haves) > 0 {
		return nil, ErrNoCommonHistory
	}

	if _, err := pktline.WritePacketLine(conn, "done"); err != nil {
		return nil, core.Wrap(core.KindIO, "send done", err)
	}

	if !acked {
		// No haves were offered (fresh clone): the server still replies
		// with a single NAK before the pack.
		if _, err := pktline.ReadPacket(conn); err != nil {
			return nil, core.Wrap(core.KindProtocol, "read post-done response", err)
		}
	}

	var packR io.Reader = conn
	if sideband {
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(Demux(conn, pw, req.Progress))
		}()
		packR = pr
	}

	return &FetchResult{Capabilities: caps, Shallows: shallows, Unshallows: unshallows, Pack: packR}, nil
}

func writeWants(conn Conn, req FetchRequest, caps []string) error {
	first := true
	for _, w := range req.Wants {
		line := "want " + w.String()
		if first {
			line += " " + strings.Join(caps, " ")
			first = false
		}
		if _, err := pktline.WritePacketLine(conn, line); err != nil {
			return core.Wrap(core.KindIO, "send want", err)
		}
	}
	for _, s := range req.Shallow {
		if _, err := pktline.WritePacketLine(conn, "shallow "+s.String()); err != nil {
			return core.Wrap(core.KindIO, "send shallow", err)
		}
	}
	if req.Depth > 0 {
		if _, err := pktline.WritePacketLine(conn, fmt.Sprintf("deepen %d", req.Depth)); err != nil {
			return core.Wrap(core.KindIO, "send deepen", err)
		}
	}
	return pktline.WriteFlush(conn)
}

func readShallowUpdate(conn Conn) (shallows, unshallows []hash.ID, err error) {
	sc := pktline.NewScanner(conn)
	for sc.Scan() {
		line := string(pktline.TrimLF(sc.Bytes()))
		switch {
		case strings.HasPrefix(line, "shallow "):
			if id, ok := hash.FromHex(strings.TrimPrefix(line, "shallow ")); ok {
				shallows = append(shallows, id)
			}
		case strings.HasPrefix(line, "unshallow "):
			if id, ok := hash.FromHex(strings.TrimPrefix(line, "unshallow ")); ok {
				unshallows = append(unshallows, id)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, core.Wrap(core.KindProtocol, "read shallow-update", err)
	}
	return shallows, unshallows, nil
}

// negotiateHaves sends haves in batches, reading ACK/NAK between
// batches, until the server ACKs common history or haves are exhausted.
func negotiateHaves(conn Conn, haves []hash.ID, multiAck bool) (acked bool, err error) {
	for i := 0; i < len(haves); i += haveBatchSize {
		end := i + haveBatchSize
		if end > len(haves) {
			end = len(haves)
		}
		for _, h := range haves[i:end] {
			if _, err := pktline.WritePacketLine(conn, "have "+h.String()); err != nil {
				return false, core.Wrap(core.KindIO, "send have", err)
			}
		}
		if err := pktline.WriteFlush(conn); err != nil {
			return false, core.Wrap(core.KindIO, "flush have batch", err)
		}

		batchAcked, stop, err := readAckBatch(conn, multiAck)
		if err != nil {
			return false, err
		}
		if batchAcked {
			return true, nil
		}
		if stop {
			return false, nil
		}
	}
	return false, nil
}

// readAckBatch reads the server's response to one have-batch. With
// multi_ack(_detailed), the server sends "ACK <id> continue" lines for
// each common commit found and a final "NAK" if nothing else has been
// found yet; without it, the server sends a single "NAK" or "ACK <id>".
func readAckBatch(conn Conn, multiAck bool) (acked, stop bool, err error) {
	if !multiAck {
		pkt, err := pktline.ReadPacket(conn)
		if err != nil {
			return false, false, core.Wrap(core.KindProtocol, "read ack/nak", err)
		}
		line := string(pktline.TrimLF(pkt.Data))
		return strings.HasPrefix(line, "ACK"), false, nil
	}

	sc := pktline.NewScanner(conn)
	for sc.Scan() {
		line := string(pktline.TrimLF(sc.Bytes()))
		if strings.HasPrefix(line, "ACK") {
			if !strings.Contains(line, "continue") {
				return true, false, nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return false, false, core.Wrap(core.KindProtocol, "read ack/nak batch", err)
	}
	return false, false, nil
}

func hasCap(caps []string, name string) bool {
	for _, c := range caps {
		if c == name {
			return true
		}
	}
	return false
}

func removeCap(caps []string, name string) []string {
	out := caps[:0]
	for _, c := range caps {
		if c != name {
			out = append(out, c)
		}
	}
	return out
}
