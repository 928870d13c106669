package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/hash"
	"github.com/statewalker/vcs-sub002/object/signature"
	"github.com/statewalker/vcs-sub002/storer"
)

// Tag is an annotated tag object: a pointer to another object (of any
// kind — tags may point at commits, trees, blobs, or other tags), the
// tag name, the tagger identity, and a free-form message.
type Tag struct {
	Object     hash.ID
	ObjectType storer.Kind
	Name       string
	Tagger     core.Identity
	Message    string
	ExtraHeaders []ExtraHeader
}

// Encode serializes t into Git's canonical annotated-tag framing.
func (t Tag) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Object)
	fmt.Fprintf(&buf, "type %s\n", t.ObjectType)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	fmt.Fprintf(&buf, "tagger %s\n", t.Tagger)
	for _, h := range t.ExtraHeaders {
		writeHeader(&buf, h)
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// Signature returns t's gpgsig header value, or "" if t is unsigned.
func (t Tag) Signature() string {
	for _, h := range t.ExtraHeaders {
		if h.Key == gpgSigHeader {
			return h.Value
		}
	}
	return ""
}

// EncodeWithoutSignature is Encode with the gpgsig header omitted: the
// exact bytes a signer hashes and that Verify must reproduce to check
// the signature against.
func (t Tag) EncodeWithoutSignature() []byte {
	stripped := t
	stripped.ExtraHeaders = nil
	for _, h := range t.ExtraHeaders {
		if h.Key != gpgSigHeader {
			stripped.ExtraHeaders = append(stripped.ExtraHeaders, h)
		}
	}
	return stripped.Encode()
}

// Verify checks t's gpgsig signature with v. Returns
// signature.ErrNoSignature if t carries no gpgsig header.
func (t Tag) Verify(v signature.Verifier) (*signature.Result, error) {
	sig := t.Signature()
	if sig == "" {
		return nil, signature.ErrNoSignature
	}
	return v.Verify([]byte(sig), t.EncodeWithoutSignature())
}

// DecodeTag parses an annotated-tag payload produced by Encode.
func DecodeTag(payload []byte) (Tag, error) {
	var t Tag
	r := bufio.NewReader(bytes.NewReader(payload))

	line, err := readHeaderLine(r)
	if err != nil {
		return Tag{}, err
	}
	if !strings.HasPrefix(line, "object ") {
		return Tag{}, core.New(core.KindCorrupt, "tag missing object header")
	}
	id, ok := hash.FromHex(strings.TrimPrefix(line, "object "))
	if !ok {
		return Tag{}, core.New(core.KindCorrupt, "tag object id not valid hex")
	}
	t.Object = id

	line, err = readHeaderLine(r)
	if err != nil {
		return Tag{}, err
	}
	if !strings.HasPrefix(line, "type ") {
		return Tag{}, core.New(core.KindCorrupt, "tag missing type header")
	}
	kind := storer.ParseKind(strings.TrimPrefix(line, "type "))
	if kind == storer.KindInvalid {
		return Tag{}, core.New(core.KindCorrupt, "tag references unknown object type")
	}
	t.ObjectType = kind

	line, err = readHeaderLine(r)
	if err != nil {
		return Tag{}, err
	}
	if !strings.HasPrefix(line, "tag ") {
		return Tag{}, core.New(core.KindCorrupt, "tag missing tag header")
	}
	t.Name = strings.TrimPrefix(line, "tag ")

	line, err = readHeaderLine(r)
	if err != nil {
		return Tag{}, err
	}
	if !strings.HasPrefix(line, "tagger ") {
		return Tag{}, core.New(core.KindCorrupt, "tag missing tagger header")
	}
	tagger, err := parseIdentity(strings.TrimPrefix(line, "tagger "))
	if err != nil {
		return Tag{}, err
	}
	t.Tagger = tagger

	for {
		peeked, perr := r.Peek(1)
		if perr != nil {
			break
		}
		if peeked[0] == '\n' {
			_, _ = r.Discard(1)
			break
		}
		l, lerr := r.ReadString('\n')
		if lerr != nil && lerr != io.EOF {
			return Tag{}, core.Wrap(core.KindCorrupt, "truncated tag headers", lerr)
		}
		l = strings.TrimSuffix(l, "\n")
		key, val, found := strings.Cut(l, " ")
		if !found {
			return Tag{}, core.New(core.KindCorrupt, "malformed tag extra header")
		}
		for {
			next, nerr := r.Peek(1)
			if nerr != nil || next[0] != ' ' {
				break
			}
			cl, _ := r.ReadString('\n')
			val += "\n" + strings.TrimSuffix(strings.TrimPrefix(cl, " "), "\n")
		}
		t.ExtraHeaders = append(t.ExtraHeaders, ExtraHeader{Key: key, Value: val})
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return Tag{}, core.Wrap(core.KindCorrupt, "truncated tag message", err)
	}
	t.Message = string(rest)

	return t, nil
}
