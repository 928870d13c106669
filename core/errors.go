// Package core holds the error taxonomy shared by every layer of the
// engine, plus the handful of identity types (author/committer) that don't
// belong to any single component.
package core

import (
	"errors"
	"fmt"
)

// Kind classifies an Error into one of the recovery buckets described in
// the error-handling design: callers branch on Kind, never on message text.
type Kind int

const (
	// KindUnknown is never returned by this package; it is the zero value
	// guarding against an Error built without a Kind.
	KindUnknown Kind = iota
	// KindNotFound means a missing object, ref, or path. Not logged as an
	// error by callers that expect misses (e.g. a speculative lookup).
	KindNotFound
	// KindCorrupt means a hash mismatch or malformed on-disk frame. Fatal
	// for the operation; never falls back to another backing store.
	KindCorrupt
	// KindIO means the underlying storage failed. Callers may retry.
	KindIO
	// KindConflict means a compare-and-swap mismatch on a ref or index.
	// Callers retry with freshly read state.
	KindConflict
	// KindUnmerged means writeTree was called while stage>0 entries exist.
	KindUnmerged
	// KindProtocol means pkt-line framing, a bad capability, or an
	// unexpected wire-protocol state. Aborts the transport.
	KindProtocol
	// KindTimeout means a deadline was exceeded; the caller must abort and
	// roll back.
	KindTimeout
	// KindCancelled means an external cancel signal fired.
	KindCancelled
	// KindPrecondition means the repository-state machine forbids the
	// requested operation.
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindCorrupt:
		return "Corrupt"
	case KindIO:
		return "Io"
	case KindConflict:
		return "Conflict"
	case KindUnmerged:
		return "Unmerged"
	case KindProtocol:
		return "ProtocolError"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	case KindPrecondition:
		return "PreconditionFailed"
	default:
		return "Unknown"
	}
}

// Error is the single error shape surfaced across package boundaries: a
// machine-readable Kind, a human Message, and optional structured Context.
// No error silently changes Kind while propagating up the call stack.
type Error struct {
	Kind    Kind
	Message string
	Ref     string
	Path    string
	Object  string
	Want    string
	Got     string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	var extra string
	if e.Ref != "" {
		extra += fmt.Sprintf(" ref=%s", e.Ref)
	}
	if e.Path != "" {
		extra += fmt.Sprintf(" path=%s", e.Path)
	}
	if e.Object != "" {
		extra += fmt.Sprintf(" object=%s", e.Object)
	}
	if e.Want != "" || e.Got != "" {
		extra += fmt.Sprintf(" want=%s got=%s", e.Want, e.Got)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s%s: %v", e.Kind, msg, extra, e.Err)
	}
	return fmt.Sprintf("%s: %s%s", e.Kind, msg, extra)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, core.NotFound) etc. work against a bare Kind
// sentinel without callers needing to build an *Error themselves.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindSentinel)
	return ok && e.Kind == Kind(k)
}

type kindSentinel Kind

func (kindSentinel) Error() string { return "" }

// Sentinels usable with errors.Is(err, core.NotFound).
var (
	NotFound    error = kindSentinel(KindNotFound)
	Corrupt     error = kindSentinel(KindCorrupt)
	IOErr       error = kindSentinel(KindIO)
	Conflict    error = kindSentinel(KindConflict)
	Unmerged    error = kindSentinel(KindUnmerged)
	Protocol    error = kindSentinel(KindProtocol)
	Timeout     error = kindSentinel(KindTimeout)
	Cancelled   error = kindSentinel(KindCancelled)
	Precondition error = kindSentinel(KindPrecondition)
)

// New builds an *Error of the given kind.
func New(k Kind, msg string) *Error { return &Error{Kind: k, Message: msg} }

// Wrap builds an *Error of the given kind wrapping a lower-level cause.
func Wrap(k Kind, msg string, err error) *Error { return &Error{Kind: k, Message: msg, Err: err} }

// WithObject returns a shallow copy of e with Object set, for chaining at
// the call site: `return core.Wrap(...).WithObject(id.String())`.
func (e *Error) WithObject(id string) *Error { c := *e; c.Object = id; return &c }

// WithPath returns a shallow copy of e with Path set.
func (e *Error) WithPath(p string) *Error { c := *e; c.Path = p; return &c }

// WithRef returns a shallow copy of e with Ref set.
func (e *Error) WithRef(r string) *Error { c := *e; c.Ref = r; return &c }

// KindOf extracts the Kind from err, walking the unwrap chain; returns
// KindUnknown if nothing in err's chain is a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
