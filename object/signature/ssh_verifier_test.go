package signature

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// signSSH reproduces go-git's SSHSigner.Sign (ssh_signer.go): hash the
// message with SHA-512, build the PROTOCOL.sshsig signed-data
// structure, sign it, then wrap the result in the same armored blob
// parseSSHSignature expects.
func signSSH(t *testing.T, signer ssh.Signer, namespace string, message []byte) []byte {
	t.Helper()
	h := sha512.Sum512(message)

	var signedData bytes.Buffer
	signedData.WriteString(sshSigMagic)
	writeSSHString(&signedData, []byte(namespace))
	writeSSHString(&signedData, nil)
	writeSSHString(&signedData, []byte("sha512"))
	writeSSHString(&signedData, h[:])

	sig, err := signer.Sign(rand.Reader, signedData.Bytes())
	require.NoError(t, err)

	var blob bytes.Buffer
	blob.WriteString(sshSigMagic)
	require.NoError(t, writeUint32(&blob, sshSigVersion))
	writeSSHString(&blob, signer.PublicKey().Marshal())
	writeSSHString(&blob, []byte(namespace))
	writeSSHString(&blob, nil)
	writeSSHString(&blob, []byte("sha512"))

	var sigBlob bytes.Buffer
	writeSSHString(&sigBlob, []byte(sig.Format))
	writeSSHString(&sigBlob, sig.Blob)
	writeSSHString(&blob, sigBlob.Bytes())

	encoded := base64.StdEncoding.EncodeToString(blob.Bytes())
	var armored bytes.Buffer
	armored.WriteString(sshSigArmorHead + "\n")
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		armored.WriteString(encoded[i:end] + "\n")
	}
	armored.WriteString(sshSigArmorTail)
	return armored.Bytes()
}

func writeUint32(buf *bytes.Buffer, v uint32) error {
	return binary.Write(buf, binary.BigEndian, v)
}

func newTestSSHSigner(t *testing.T) ssh.Signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	_ = pub
	return signer
}

func TestSSHVerifierAcceptsValidSignature(t *testing.T) {
	signer := newTestSSHSigner(t)
	message := []byte("tree 4b825dc642cb6eb9a060e54bf8d69288fbee4904\n\nmsg\n")
	sig := signSSH(t, signer, sshGitNamespace, message)

	v := NewSSHVerifier(map[string]ssh.PublicKey{"student@example.com": signer.PublicKey()})
	result, err := v.Verify(sig, message)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, TrustFull, result.TrustLevel)
	require.Equal(t, "student@example.com", result.Signer)
}

func TestSSHVerifierUntrustedKeyIsValidButUndefinedTrust(t *testing.T) {
	signer := newTestSSHSigner(t)
	message := []byte("msg\n")
	sig := signSSH(t, signer, sshGitNamespace, message)

	v := NewSSHVerifier(nil)
	result, err := v.Verify(sig, message)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, TrustUndefined, result.TrustLevel)
}

func TestSSHVerifierRejectsWrongNamespace(t *testing.T) {
	signer := newTestSSHSigner(t)
	message := []byte("msg\n")
	sig := signSSH(t, signer, "file", message)

	v := NewSSHVerifier(nil)
	result, err := v.Verify(sig, message)
	require.NoError(t, err)
	require.False(t, result.Valid)
}

func TestSSHVerifierRejectsTamperedMessage(t *testing.T) {
	signer := newTestSSHSigner(t)
	sig := signSSH(t, signer, sshGitNamespace, []byte("original\n"))

	v := NewSSHVerifier(nil)
	result, err := v.Verify(sig, []byte("tampered\n"))
	require.NoError(t, err)
	require.False(t, result.Valid)
}
