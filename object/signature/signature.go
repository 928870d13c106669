// Package signature implements verification of the "gpgsig" payload a
// signed commit or annotated tag carries in its ExtraHeader (spec.md
// §3's commit/tag shape; object.ExtraHeader is the carrier). Grounded on
// go-git's plumbing/object/signature.go (format detection),
// verification.go (trust levels/result shape), and its top-level
// verifier.go/openpgp_verifier.go/ssh_verifier.go (the dispatch and
// per-format verifiers this package adapts). Wires
// github.com/ProtonMail/go-crypto for OpenPGP and golang.org/x/crypto/ssh
// for SSH, the same two libraries the teacher uses for this feature.
package signature

import "bytes"

// SignatureType identifies which cryptographic format a detached
// signature is in.
type SignatureType int8

const (
	TypeUnknown SignatureType = iota
	TypeOpenPGP
	TypeSSH
)

func (t SignatureType) String() string {
	switch t {
	case TypeOpenPGP:
		return "openpgp"
	case TypeSSH:
		return "ssh"
	default:
		return "unknown"
	}
}

var (
	openPGPMarker = []byte("-----BEGIN PGP SIGNATURE-----")
	sshMarker     = []byte("-----BEGIN SSH SIGNATURE-----")
)

// DetectType identifies sig's format from its leading armor marker.
func DetectType(sig []byte) SignatureType {
	switch {
	case bytes.HasPrefix(sig, openPGPMarker):
		return TypeOpenPGP
	case bytes.HasPrefix(sig, sshMarker):
		return TypeSSH
	default:
		return TypeUnknown
	}
}

// TrustLevel mirrors git's gpg.minTrustLevel scale for a verified
// signer's key.
type TrustLevel int8

const (
	TrustUndefined TrustLevel = iota
	TrustNever
	TrustMarginal
	TrustFull
	TrustUltimate
)

func (t TrustLevel) String() string {
	switch t {
	case TrustNever:
		return "never"
	case TrustMarginal:
		return "marginal"
	case TrustFull:
		return "full"
	case TrustUltimate:
		return "ultimate"
	default:
		return "undefined"
	}
}

// Result is the outcome of verifying one signature.
type Result struct {
	Type       SignatureType
	Valid      bool
	Signer     string // principal/identity name, when known
	KeyID      string
	TrustLevel TrustLevel
	Err        error // set when Valid is false
}
