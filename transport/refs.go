package transport

import (
	"bytes"
	"io"
	"strings"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/format/pktline"
	"github.com/statewalker/vcs-sub002/hash"
)

// ReadAdvertisement reads a service's initial ref advertisement: the
// first line carries capabilities after a NUL byte; every following
// line up to the flush-pkt is an "<id> <name>" pair. A repository with
// no refs yet advertises a single synthetic
// "0000000000000000000000000000000000000000 capabilities^{}" line,
// which is dropped from Refs but still yields Capabilities. Grounded on
// go-git's packp.AdvRefs.Decode state machine, collapsed to this
// module's plain AdvertisedRefs struct instead of a stateful decoder
// type.
func ReadAdvertisement(r io.Reader) (*AdvertisedRefs, error) {
	sc := pktline.NewScanner(r)
	out := &AdvertisedRefs{}

	first := true
	for sc.Scan() {
		line := pktline.TrimLF(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		if first {
			first = false
			if nul := bytes.IndexByte(line, 0); nul >= 0 {
				caps := strings.Fields(string(line[nul+1:]))
				out.Capabilities = caps
				for _, c := range caps {
					if name, ok := strings.CutPrefix(c, "symref=HEAD:"); ok {
						out.HeadSymref = name
					}
				}
				line = line[:nul]
			}
		}

		idStr, name, ok := strings.Cut(string(line), " ")
		if !ok {
			return nil, core.New(core.KindProtocol, "advertisement: malformed ref line").WithPath(string(line))
		}
		if name == noRefsMarkerName {
			continue
		}
		id, ok := hash.FromHex(idStr)
		if !ok {
			return nil, core.New(core.KindProtocol, "advertisement: invalid object id").WithPath(idStr)
		}
		out.Refs = append(out.Refs, AdvertisedRef{Name: name, ID: id})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// noRefsMarkerName is the synthetic ref name an empty repository
// advertises in place of any real ref, just to carry capabilities.
const noRefsMarkerName = "capabilities^{}"

// WriteAdvertisement writes refs back out in the same wire shape
// ReadAdvertisement parses, for the reference server transport.
func WriteAdvertisement(w io.Writer, refs []AdvertisedRef, caps []string, headSymref string) error {
	if len(refs) == 0 {
		line := hash.Zero.String() + " " + noRefsMarkerName
		if len(caps) > 0 || headSymref != "" {
			line += "\x00" + capabilityLine(caps, headSymref)
		}
		if _, err := pktline.WritePacketLine(w, line); err != nil {
			return err
		}
		return pktline.WriteFlush(w)
	}

	for i, ref := range refs {
		line := ref.ID.String() + " " + ref.Name
		if i == 0 && (len(caps) > 0 || headSymref != "") {
			line += "\x00" + capabilityLine(caps, headSymref)
		}
		if _, err := pktline.WritePacketLine(w, line); err != nil {
			return err
		}
	}
	return pktline.WriteFlush(w)
}

func capabilityLine(caps []string, headSymref string) string {
	all := append([]string(nil), caps...)
	if headSymref != "" {
		all = append(all, "symref=HEAD:"+headSymref)
	}
	return strings.Join(all, " ")
}

// ListRefs performs ls-remote: read the advertisement and return it
// without sending any want/have (spec.md §4.12's CONNECT → ADVERT →
// CLOSE shortcut). The caller is responsible for closing conn.
func ListRefs(conn Conn) (*AdvertisedRefs, error) {
	return ReadAdvertisement(conn)
}
