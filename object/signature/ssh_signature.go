package signature

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"
)

// sshGitNamespace is the namespace git signs commit/tag content under,
// per PROTOCOL.sshsig; a signature made for any other namespace must be
// rejected rather than accepted against the wrong context.
const sshGitNamespace = "git"

const (
	sshSigMagic     = "SSHSIG"
	sshSigVersion   = 1
	sshSigArmorHead = "-----BEGIN SSH SIGNATURE-----"
	sshSigArmorTail = "-----END SSH SIGNATURE-----"
)

// sshSignature is a parsed armored SSH signature (PROTOCOL.sshsig),
// grounded on go-git's sshSignature (ssh_signature.go).
type sshSignature struct {
	Version       uint32
	PublicKey     ssh.PublicKey
	Namespace     string
	HashAlgorithm string
	Signature     *ssh.Signature
}

func (s *sshSignature) fingerprint() string { return ssh.FingerprintSHA256(s.PublicKey) }

func parseSSHSignature(armored []byte) (*sshSignature, error) {
	content := string(armored)
	if !strings.HasPrefix(content, sshSigArmorHead) {
		return nil, fmt.Errorf("signature: missing SSH signature header")
	}
	content = strings.TrimPrefix(content, sshSigArmorHead)
	content = strings.TrimSuffix(strings.TrimSpace(content), sshSigArmorTail)
	content = strings.NewReplacer("\n", "", "\r", "").Replace(strings.TrimSpace(content))

	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("signature: decode base64: %w", err)
	}
	return parseSSHSignatureBlob(data)
}

func parseSSHSignatureBlob(data []byte) (*sshSignature, error) {
	if len(data) < len(sshSigMagic) || string(data[:len(sshSigMagic)]) != sshSigMagic {
		return nil, fmt.Errorf("signature: bad SSH signature magic")
	}

	r := bytes.NewReader(data[len(sshSigMagic):])
	sig := &sshSignature{}

	if err := binary.Read(r, binary.BigEndian, &sig.Version); err != nil {
		return nil, fmt.Errorf("signature: read version: %w", err)
	}
	if sig.Version != sshSigVersion {
		return nil, fmt.Errorf("signature: unsupported SSH signature version %d", sig.Version)
	}

	pubKeyBytes, err := readSSHString(r)
	if err != nil {
		return nil, fmt.Errorf("signature: read public key: %w", err)
	}
	sig.PublicKey, err = ssh.ParsePublicKey(pubKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("signature: parse public key: %w", err)
	}

	nsBytes, err := readSSHString(r)
	if err != nil {
		return nil, fmt.Errorf("signature: read namespace: %w", err)
	}
	sig.Namespace = string(nsBytes)

	if _, err := readSSHString(r); err != nil { // reserved
		return nil, fmt.Errorf("signature: read reserved field: %w", err)
	}

	hashBytes, err := readSSHString(r)
	if err != nil {
		return nil, fmt.Errorf("signature: read hash algorithm: %w", err)
	}
	sig.HashAlgorithm = string(hashBytes)

	sigBytes, err := readSSHString(r)
	if err != nil {
		return nil, fmt.Errorf("signature: read signature blob: %w", err)
	}
	sig.Signature, err = parseSSHSignatureWireFormat(sigBytes)
	if err != nil {
		return nil, fmt.Errorf("signature: parse signature wire format: %w", err)
	}

	return sig, nil
}

func parseSSHSignatureWireFormat(data []byte) (*ssh.Signature, error) {
	r := bytes.NewReader(data)
	format, err := readSSHString(r)
	if err != nil {
		return nil, fmt.Errorf("signature: read format: %w", err)
	}
	blob, err := readSSHString(r)
	if err != nil {
		return nil, fmt.Errorf("signature: read blob: %w", err)
	}
	var rest []byte
	if r.Len() > 0 {
		rest = make([]byte, r.Len())
		if _, err := io.ReadFull(r, rest); err != nil {
			return nil, fmt.Errorf("signature: read trailing bytes: %w", err)
		}
	}
	return &ssh.Signature{Format: string(format), Blob: blob, Rest: rest}, nil
}

func readSSHString(r *bytes.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length > 1<<20 {
		return nil, fmt.Errorf("signature: string field too long (%d bytes)", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

func writeSSHString(buf *bytes.Buffer, data []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}
