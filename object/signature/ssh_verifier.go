package signature

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"maps"

	"golang.org/x/crypto/ssh"
)

// SSHVerifier verifies git's SSH commit/tag signatures (PROTOCOL.sshsig),
// grounded on go-git's SSHVerifier (ssh_verifier.go). allowedSigners maps
// a principal name (typically the signer's email) to their public key,
// the same shape git's gpg.ssh.allowedSignersFile loads into.
type SSHVerifier struct {
	allowedSigners map[string]ssh.PublicKey
}

// NewSSHVerifier copies allowedSigners so later external mutation of the
// caller's map can't change trust decisions already handed out.
func NewSSHVerifier(allowedSigners map[string]ssh.PublicKey) *SSHVerifier {
	copied := make(map[string]ssh.PublicKey, len(allowedSigners))
	maps.Copy(copied, allowedSigners)
	return &SSHVerifier{allowedSigners: copied}
}

func (v *SSHVerifier) Supports(t SignatureType) bool { return t == TypeSSH }

func (v *SSHVerifier) Verify(sig, message []byte) (*Result, error) {
	result := &Result{Type: TypeSSH}

	parsed, err := parseSSHSignature(sig)
	if err != nil {
		result.Err = err
		return result, nil
	}
	if parsed.Namespace != sshGitNamespace {
		result.Err = fmt.Errorf("signature: wrong SSH namespace: expected %q, got %q", sshGitNamespace, parsed.Namespace)
		return result, nil
	}
	result.KeyID = parsed.fingerprint()

	signedData, err := sshSignedData(parsed.Namespace, parsed.HashAlgorithm, message)
	if err != nil {
		result.Err = err
		return result, nil
	}
	if err := parsed.PublicKey.Verify(signedData, parsed.Signature); err != nil {
		result.Err = fmt.Errorf("signature: SSH verification failed: %w", err)
		return result, nil
	}

	result.Valid = true
	result.TrustLevel = TrustUndefined
	for principal, allowed := range v.allowedSigners {
		if bytes.Equal(parsed.PublicKey.Marshal(), allowed.Marshal()) {
			result.TrustLevel = TrustFull
			result.Signer = principal
			break
		}
	}
	return result, nil
}

// sshSignedData builds the exact byte structure ssh-keygen signs per
// PROTOCOL.sshsig: MAGIC_PREAMBLE || namespace || reserved || hash_alg
// || H(message), each field length-prefixed except the magic.
func sshSignedData(namespace, hashAlg string, message []byte) ([]byte, error) {
	var h hash.Hash
	switch hashAlg {
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	default:
		return nil, fmt.Errorf("signature: unsupported SSH hash algorithm %q", hashAlg)
	}
	h.Write(message)

	var buf bytes.Buffer
	buf.WriteString(sshSigMagic)
	writeSSHString(&buf, []byte(namespace))
	writeSSHString(&buf, nil)
	writeSSHString(&buf, []byte(hashAlg))
	writeSSHString(&buf, h.Sum(nil))
	return buf.Bytes(), nil
}
