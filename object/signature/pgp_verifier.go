package signature

import (
	"bytes"
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// OpenPGPVerifier verifies detached OpenPGP signatures against a fixed
// keyring, grounded on go-git's OpenPGPVerifier (openpgp_verifier.go).
type OpenPGPVerifier struct {
	keyring openpgp.EntityList
}

// NewOpenPGPVerifier builds a verifier from an armored public keyring.
func NewOpenPGPVerifier(armoredKeyRing string) (*OpenPGPVerifier, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader([]byte(armoredKeyRing)))
	if err != nil {
		return nil, fmt.Errorf("signature: read keyring: %w", err)
	}
	if len(keyring) == 0 {
		return nil, fmt.Errorf("signature: keyring contains no keys")
	}
	return &OpenPGPVerifier{keyring: keyring}, nil
}

func (v *OpenPGPVerifier) Supports(t SignatureType) bool { return t == TypeOpenPGP }

// Verify checks sig against message using the verifier's keyring. A
// failed cryptographic check is reported through Result.Valid/Err, not
// a returned error — only a malformed keyring-unrelated failure (none
// currently possible here) would return one.
func (v *OpenPGPVerifier) Verify(sig, message []byte) (*Result, error) {
	result := &Result{Type: TypeOpenPGP}

	entity, err := openpgp.CheckArmoredDetachedSignature(v.keyring, bytes.NewReader(message), bytes.NewReader(sig), nil)
	if err != nil {
		result.Err = err
		return result, nil
	}

	result.Valid = true
	result.TrustLevel = TrustFull
	result.KeyID = fmt.Sprintf("%016X", entity.PrimaryKey.KeyId)
	if ident := entity.PrimaryIdentity(); ident != nil {
		result.Signer = ident.Name
	}
	return result, nil
}
