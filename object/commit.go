package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/object/signature"
)

// gpgSigHeader is the ExtraHeader key git writes a commit/tag signature
// under.
const gpgSigHeader = "gpgsig"

// ExtraHeader is a commit/tag header this package doesn't model as a
// first-class field (e.g. "gpgsig", "encoding", "mergetag"). Preserving
// these verbatim, in their original position and with their original
// (possibly multi-line, space-continued) value, is what keeps
// parse(serialize(x)) == x and the hash stable for objects this engine
// didn't originate.
type ExtraHeader struct {
	Key   string
	Value string // continuation lines already de-indented
}

// Commit is the four-field commit object: a tree, an ordered list of
// parents (order is observable — first parent is mainline), the
// author/committer identities, and the free-form message.
type Commit struct {
	Tree         hash.ID
	Parents      []hash.ID
	Author       core.Identity
	Committer    core.Identity
	ExtraHeaders []ExtraHeader
	Message      string
}

// Encode serializes c into Git's canonical commit framing.
func (c Commit) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author)
	fmt.Fprintf(&buf, "committer %s\n", c.Committer)
	for _, h := range c.ExtraHeaders {
		writeHeader(&buf, h)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// Signature returns c's gpgsig header value, or "" if c is unsigned.
func (c Commit) Signature() string {
	for _, h := range c.ExtraHeaders {
		if h.Key == gpgSigHeader {
			return h.Value
		}
	}
	return ""
}

// EncodeWithoutSignature is Encode with the gpgsig header omitted: the
// exact bytes a signer hashes and that Verify must reproduce to check
// the signature against.
func (c Commit) EncodeWithoutSignature() []byte {
	stripped := c
	stripped.ExtraHeaders = nil
	for _, h := range c.ExtraHeaders {
		if h.Key != gpgSigHeader {
			stripped.ExtraHeaders = append(stripped.ExtraHeaders, h)
		}
	}
	return stripped.Encode()
}

// Verify checks c's gpgsig signature with v. Returns
// signature.ErrNoSignature if c carries no gpgsig header.
func (c Commit) Verify(v signature.Verifier) (*signature.Result, error) {
	sig := c.Signature()
	if sig == "" {
		return nil, signature.ErrNoSignature
	}
	return v.Verify([]byte(sig), c.EncodeWithoutSignature())
}

func writeHeader(buf *bytes.Buffer, h ExtraHeader) {
	lines := strings.Split(h.Value, "\n")
	fmt.Fprintf(buf, "%s %s\n", h.Key, lines[0])
	for _, l := range lines[1:] {
		fmt.Fprintf(buf, " %s\n", l)
	}
}

// DecodeCommit parses a commit payload produced by Encode (ours or any
// compliant Git implementation's).
func DecodeCommit(payload []byte) (Commit, error) {
	var c Commit
	r := bufio.NewReader(bytes.NewReader(payload))

	line, err := readHeaderLine(r)
	if err != nil {
		return Commit{}, err
	}
	if !strings.HasPrefix(line, "tree ") {
		return Commit{}, core.New(core.KindCorrupt, "commit missing tree header")
	}
	id, ok := hash.FromHex(strings.TrimPrefix(line, "tree "))
	if !ok {
		return Commit{}, core.New(core.KindCorrupt, "commit tree id not valid hex")
	}
	c.Tree = id

	for {
		line, err = readHeaderLine(r)
		if err != nil {
			return Commit{}, err
		}
		if !strings.HasPrefix(line, "parent ") {
			break
		}
		pid, ok := hash.FromHex(strings.TrimPrefix(line, "parent "))
		if !ok {
			return Commit{}, core.New(core.KindCorrupt, "commit parent id not valid hex")
		}
		c.Parents = append(c.Parents, pid)
	}

	if !strings.HasPrefix(line, "author ") {
		return Commit{}, core.New(core.KindCorrupt, "commit missing author header")
	}
	author, err := parseIdentity(strings.TrimPrefix(line, "author "))
	if err != nil {
		return Commit{}, err
	}
	c.Author = author

	line, err = readHeaderLine(r)
	if err != nil {
		return Commit{}, err
	}
	if !strings.HasPrefix(line, "committer ") {
		return Commit{}, core.New(core.KindCorrupt, "commit missing committer header")
	}
	committer, err := parseIdentity(strings.TrimPrefix(line, "committer "))
	if err != nil {
		return Commit{}, err
	}
	c.Committer = committer

	for {
		line, err = r.ReadString('\n')
		if err != nil && err != io.EOF {
			return Commit{}, core.Wrap(core.KindCorrupt, "truncated commit headers", err)
		}
		if line == "\n" || line == "" {
			break
		}
		line = strings.TrimSuffix(line, "\n")
		key, val, found := strings.Cut(line, " ")
		if !found {
			return Commit{}, core.New(core.KindCorrupt, "malformed commit extra header")
		}
		var cont []string
		for {
			peek, perr := r.Peek(1)
			if perr != nil || len(peek) == 0 || peek[0] != ' ' {
				break
			}
			cl, _ := r.ReadString('\n')
			cont = append(cont, strings.TrimSuffix(strings.TrimPrefix(cl, " "), "\n"))
		}
		if len(cont) > 0 {
			val = val + "\n" + strings.Join(cont, "\n")
		}
		c.ExtraHeaders = append(c.ExtraHeaders, ExtraHeader{Key: key, Value: val})
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return Commit{}, core.Wrap(core.KindCorrupt, "truncated commit message", err)
	}
	c.Message = string(rest)

	return c, nil
}

func readHeaderLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", core.Wrap(core.KindCorrupt, "truncated commit headers", err)
	}
	return strings.TrimSuffix(line, "\n"), nil
}

func parseIdentity(s string) (core.Identity, error) {
	// "Name <email> <seconds> <+/-HHMM>"
	lt := strings.LastIndex(s, "<")
	gt := strings.LastIndex(s, ">")
	if lt < 0 || gt < lt {
		return core.Identity{}, core.New(core.KindCorrupt, "malformed identity line")
	}
	name := strings.TrimSpace(s[:lt])
	email := s[lt+1 : gt]
	rest := strings.TrimSpace(s[gt+1:])
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return core.Identity{}, core.New(core.KindCorrupt, "malformed identity timestamp")
	}
	when, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return core.Identity{}, core.Wrap(core.KindCorrupt, "malformed identity timestamp", err)
	}
	off, err := parseTZOffset(fields[1])
	if err != nil {
		return core.Identity{}, err
	}
	return core.Identity{Name: name, Email: email, When: when, TZOffsetMinutes: off}, nil
}

func parseTZOffset(s string) (int, error) {
	if len(s) != 5 || (s[0] != '+' && s[0] != '-') {
		return 0, core.New(core.KindCorrupt, "malformed timezone offset")
	}
	hh, err := strconv.Atoi(s[1:3])
	if err != nil {
		return 0, core.Wrap(core.KindCorrupt, "malformed timezone offset", err)
	}
	mm, err := strconv.Atoi(s[3:5])
	if err != nil {
		return 0, core.Wrap(core.KindCorrupt, "malformed timezone offset", err)
	}
	total := hh*60 + mm
	if s[0] == '-' {
		total = -total
	}
	return total, nil
}
