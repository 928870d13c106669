package transport

import (
	"fmt"
	"io"
	"strings"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/format/pktline"
)

// PushRequest describes one push: the ref-update commands to send and
// the pack of objects the server doesn't already have.
type PushRequest struct {
	Commands []Command
	Pack     io.Reader // nil when every command is a delete (no new objects to send)
}

// CommandStatus is one command's outcome from the server's report-status.
type CommandStatus struct {
	Ref    string
	OK     bool
	Reason string // populated when OK is false
}

// PushResult is the parsed report-status response (spec.md §4.12).
type PushResult struct {
	UnpackOK     bool
	UnpackReason string
	Commands     []CommandStatus
}

// Err returns the first failure (unpack or a per-command "ng"), or nil
// if the server reported success throughout.
func (r *PushResult) Err() error {
	if !r.UnpackOK {
		return core.New(core.KindProtocol, "push: unpack failed: "+r.UnpackReason)
	}
	for _, c := range r.Commands {
		if !c.OK {
			return core.New(core.KindConflict, "push: "+c.Ref+": "+c.Reason).WithRef(c.Ref)
		}
	}
	return nil
}

// Push runs spec.md §4.12's push exchange: after reading the ref
// advertisement, send update commands, a flush, the pack, then parse
// the report-status reply (only sent back when both sides negotiated
// "report-status").
func Push(conn Conn, adv *AdvertisedRefs, req PushRequest) (*PushResult, error) {
	if len(req.Commands) == 0 {
		return nil, core.New(core.KindPrecondition, "push: no commands specified")
	}
	if adv == nil {
		var err error
		adv, err = ReadAdvertisement(conn)
		if err != nil {
			return nil, err
		}
	}

	wantReportStatus := adv.Has("report-status")
	caps := []string{}
	if wantReportStatus {
		caps = append(caps, "report-status")
	}
	if adv.Has("side-band-64k") {
		caps = append(caps, "side-band-64k")
	}

	if err := writeCommands(conn, req.Commands, caps); err != nil {
		return nil, err
	}

	if req.Pack != nil {
		if _, err := io.Copy(conn, req.Pack); err != nil {
			return nil, core.Wrap(core.KindIO, "send pack", err)
		}
	}

	if !wantReportStatus {
		return &PushResult{UnpackOK: true}, nil
	}
	return readReportStatus(conn)
}

func writeCommands(conn Conn, commands []Command, caps []string) error {
	for i, c := range commands {
		oldID, newID := c.Old.String(), c.New.String()
		ref := c.Ref
		if c.Force {
			ref = "+" + ref
		}
		line := oldID + " " + newID + " " + ref
		if i == 0 && len(caps) > 0 {
			line += "\x00" + strings.Join(caps, " ")
		}
		if _, err := pktline.WritePacketLine(conn, line); err != nil {
			return core.Wrap(core.KindIO, "send update command", err)
		}
	}
	return pktline.WriteFlush(conn)
}

func readReportStatus(conn Conn) (*PushResult, error) {
	sc := pktline.NewScanner(conn)
	res := &PushResult{}

	if !sc.Scan() {
		return nil, core.Wrap(core.KindProtocol, "read unpack-status", sc.Err())
	}
	unpackLine := string(pktline.TrimLF(sc.Bytes()))
	status, ok := strings.CutPrefix(unpackLine, "unpack ")
	if !ok {
		return nil, core.New(core.KindProtocol, "report-status: malformed unpack line").WithPath(unpackLine)
	}
	res.UnpackOK = status == "ok"
	if !res.UnpackOK {
		res.UnpackReason = status
	}

	for sc.Scan() {
		line := string(pktline.TrimLF(sc.Bytes()))
		switch {
		case strings.HasPrefix(line, "ok "):
			res.Commands = append(res.Commands, CommandStatus{Ref: strings.TrimPrefix(line, "ok "), OK: true})
		case strings.HasPrefix(line, "ng "):
			rest := strings.TrimPrefix(line, "ng ")
			ref, reason, _ := strings.Cut(rest, " ")
			res.Commands = append(res.Commands, CommandStatus{Ref: ref, OK: false, Reason: reason})
		default:
			return nil, core.New(core.KindProtocol, fmt.Sprintf("report-status: unexpected line %q", line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, core.Wrap(core.KindProtocol, "read report-status", err)
	}
	return res, nil
}
