package signature

import "errors"

// ErrNoSignature is returned when attempting to verify an object that
// carries no gpgsig header.
var ErrNoSignature = errors.New("signature: object has no signature")

// ErrNoVerifier is returned when no verifier in a Chain supports the
// signature's detected format.
var ErrNoVerifier = errors.New("signature: no verifier for this signature type")

// Verifier checks a detached signature against the exact bytes it was
// computed over (an object's canonical encoding with the gpgsig header
// itself omitted).
type Verifier interface {
	Verify(sig, message []byte) (*Result, error)
	Supports(t SignatureType) bool
}

// Chain routes to the first Verifier in the list that supports the
// signature's detected type, the way a real git invocation picks
// between gpg.program and gpg.ssh.program based on gpg.format.
type Chain []Verifier

func (c Chain) Verify(sig, message []byte) (*Result, error) {
	if len(sig) == 0 {
		return nil, ErrNoSignature
	}
	t := DetectType(sig)
	for _, v := range c {
		if v.Supports(t) {
			return v.Verify(sig, message)
		}
	}
	return nil, ErrNoVerifier
}
