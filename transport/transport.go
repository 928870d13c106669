// Package transport implements C14: the pkt-line-framed Git smart
// protocol — capability negotiation, ls-remote, the v1 fetch and push
// state machines, sideband demultiplexing, and an optional protocol v2
// upgrade — over a caller-supplied bidirectional byte stream. Grounded
// on go-git's plumbing/transport package (transport.go's Connection
// contract, negotiate.go's ACK/NAK loop, receive_pack.go's report-status
// parsing) and plumbing/protocol/packp for the wire message shapes,
// generalized to this module's own hash/object/refstore types. HTTP
// transport bindings are explicitly out of scope (spec.md Non-goals);
// the wired transports are SSH (client and a reference server) and a
// bare Conn abstraction any pipe/socket can satisfy.
package transport

import (
	"context"
	"io"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
)

// Conn is a bidirectional byte stream to a Git service endpoint
// (upload-pack or receive-pack), already positioned at the start of the
// protocol — whatever dialed it (SSH, a local pipe, a test harness) has
// already invoked the right remote command.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Command is one ref update a push sends: oldID → newID for Ref, or a
// zero oldID/newID to create/delete.
type Command struct {
	Old, New hash.ID
	Ref      string
	Force    bool
}

// DefaultCapabilities is the client capability preference order spec.md
// §4.12 names, offered (as a subset of what the server advertised) on
// the first want/update-request line.
var DefaultCapabilities = []string{
	"multi_ack_detailed",
	"thin-pack",
	"side-band-64k",
	"ofs-delta",
	"no-progress",
	"include-tag",
	"shallow",
}

// AdvertisedRef is one (name, id) pair from a ref advertisement.
type AdvertisedRef struct {
	Name string
	ID   hash.ID
}

// AdvertisedRefs is the result of reading a service's initial
// advertisement: every ref it holds, the capabilities it supports, and
// (if the symref= capability was present) HEAD's resolved target.
type AdvertisedRefs struct {
	Refs         []AdvertisedRef
	Capabilities []string
	HeadSymref   string // e.g. "refs/heads/main", empty if not advertised
}

// Has reports whether name was present in the advertised capability set.
func (a *AdvertisedRefs) Has(name string) bool {
	for _, c := range a.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// negotiate intersects the client's preferred order with what the
// server advertised, preserving client preference order.
func negotiate(serverCaps []string) []string {
	offered := make(map[string]bool, len(serverCaps))
	for _, c := range serverCaps {
		offered[c] = true
	}
	var out []string
	for _, c := range DefaultCapabilities {
		if offered[c] {
			out = append(out, c)
		}
	}
	return out
}

// ErrNoCommonHistory is returned by a fetch negotiation that exhausted
// its local haves without the server ACKing anything in common.
var ErrNoCommonHistory = core.New(core.KindProtocol, "fetch: no common history found with remote")

// ctxDone returns ctx's error if ctx is already cancelled, else nil.
// Fetch checks it once, before the have negotiation; it does not
// interrupt a read that is already blocked.
func ctxDone(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
