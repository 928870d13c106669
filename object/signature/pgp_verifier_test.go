package signature_test

import (
	"bytes"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/object/signature"
)

func armoredPublicKey(t *testing.T, entity *openpgp.Entity) string {
	t.Helper()
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())
	return buf.String()
}

func armoredDetachSign(t *testing.T, entity *openpgp.Entity, message []byte) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&buf, entity, bytes.NewReader(message), nil))
	return buf.String()
}

func TestOpenPGPVerifierAcceptsValidSignature(t *testing.T) {
	entity, err := openpgp.NewEntity("student", "", "student@example.com", nil)
	require.NoError(t, err)

	message := []byte("tree 4b825dc642cb6eb9a060e54bf8d69288fbee4904\nauthor a <a@example.com> 0 +0000\ncommitter a <a@example.com> 0 +0000\n\nmsg\n")
	sig := armoredDetachSign(t, entity, message)

	v, err := signature.NewOpenPGPVerifier(armoredPublicKey(t, entity))
	require.NoError(t, err)

	result, err := v.Verify([]byte(sig), message)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, signature.TrustFull, result.TrustLevel)
}

func TestOpenPGPVerifierRejectsTamperedMessage(t *testing.T) {
	entity, err := openpgp.NewEntity("student", "", "student@example.com", nil)
	require.NoError(t, err)

	message := []byte("original content\n")
	sig := armoredDetachSign(t, entity, message)

	v, err := signature.NewOpenPGPVerifier(armoredPublicKey(t, entity))
	require.NoError(t, err)

	result, err := v.Verify([]byte(sig), []byte("tampered content\n"))
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Error(t, result.Err)
}

func TestOpenPGPVerifierRejectsUnknownSigner(t *testing.T) {
	signer, err := openpgp.NewEntity("signer", "", "signer@example.com", nil)
	require.NoError(t, err)
	other, err := openpgp.NewEntity("other", "", "other@example.com", nil)
	require.NoError(t, err)

	message := []byte("msg\n")
	sig := armoredDetachSign(t, signer, message)

	v, err := signature.NewOpenPGPVerifier(armoredPublicKey(t, other))
	require.NoError(t, err)

	result, err := v.Verify([]byte(sig), message)
	require.NoError(t, err)
	require.False(t, result.Valid)
}

func TestDetectType(t *testing.T) {
	require.Equal(t, signature.TypeOpenPGP, signature.DetectType([]byte("-----BEGIN PGP SIGNATURE-----\n...")))
	require.Equal(t, signature.TypeSSH, signature.DetectType([]byte("-----BEGIN SSH SIGNATURE-----\n...")))
	require.Equal(t, signature.TypeUnknown, signature.DetectType([]byte("garbage")))
}
