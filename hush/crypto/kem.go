package crypto

import (
	"crypto/rand"
	"errors"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

var ErrInvalidKEMKey = errors.New("crypto: invalid ML-KEM-768 key")

const (
	MLKEMPublicKeySize  = 1184
	MLKEMPrivateKeySize = 2400
	MLKEMCiphertextSize = 1088
	mlkemSharedKeySize  = 32

	// The public key is embedded in circl's packed private key at this offset.
	mlkemPublicKeyOffset = 1152
)

// GenerateMLKEM returns a packed ML-KEM-768 private and public key.
func GenerateMLKEM() (priv, pub []byte, err error) {
	pk, sk, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	pub, err = pk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	priv, err = sk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

// MLKEMPublic extracts the public key from a packed private key.
func MLKEMPublic(priv []byte) ([]byte, error) {
	if len(priv) != MLKEMPrivateKeySize {
		return nil, ErrInvalidKEMKey
	}
	pub := make([]byte, MLKEMPublicKeySize)
	copy(pub, priv[mlkemPublicKeyOffset:mlkemPublicKeyOffset+MLKEMPublicKeySize])
	return pub, nil
}

// Encapsulate produces a KEM ciphertext and shared secret for pub.
func Encapsulate(pub []byte) (ciphertext, shared []byte, err error) {
	if len(pub) != MLKEMPublicKeySize {
		return nil, nil, ErrInvalidKEMKey
	}
	var pk mlkem768.PublicKey
	if err := pk.Unpack(pub); err != nil {
		return nil, nil, ErrInvalidKEMKey
	}
	ciphertext = make([]byte, MLKEMCiphertextSize)
	shared = make([]byte, mlkemSharedKeySize)
	pk.EncapsulateTo(ciphertext, shared, nil)
	return ciphertext, shared, nil
}

// Decapsulate recovers the shared secret. A wrong key yields an unrelated
// secret rather than an error (implicit rejection), so callers detect it when
// the derived key fails to authenticate.
func Decapsulate(priv, ciphertext []byte) ([]byte, error) {
	if len(priv) != MLKEMPrivateKeySize || len(ciphertext) != MLKEMCiphertextSize {
		return nil, ErrInvalidKEMKey
	}
	var sk mlkem768.PrivateKey
	if err := sk.Unpack(priv); err != nil {
		return nil, ErrInvalidKEMKey
	}
	shared := make([]byte, mlkemSharedKeySize)
	sk.DecapsulateTo(shared, ciphertext)
	return shared, nil
}
