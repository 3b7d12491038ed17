package crypto

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
)

// X25519KeyPair is a raw X25519 key pair.
type X25519KeyPair struct {
	PublicKey  [32]byte
	PrivateKey [32]byte
}

var (
	ErrInvalidPublicKey = errors.New("crypto: invalid X25519 public key")
	ErrInvalidKeySize   = errors.New("crypto: invalid X25519 key size")
)

// GenerateX25519 generates a new X25519 key pair.
func GenerateX25519() (X25519KeyPair, error) {
	var kp X25519KeyPair
	if _, err := io.ReadFull(rand.Reader, kp.PrivateKey[:]); err != nil {
		return X25519KeyPair{}, err
	}
	// Clamp private key per RFC 7748
	kp.PrivateKey[0] &= 248
	kp.PrivateKey[31] &= 127
	kp.PrivateKey[31] |= 64

	curve25519.ScalarBaseMult(&kp.PublicKey, &kp.PrivateKey)
	return kp, nil
}

// X25519FromPrivate rebuilds a key pair from a 32-byte private scalar.
func X25519FromPrivate(priv []byte) (X25519KeyPair, error) {
	if len(priv) != curve25519.ScalarSize {
		return X25519KeyPair{}, ErrInvalidKeySize
	}
	var kp X25519KeyPair
	copy(kp.PrivateKey[:], priv)
	curve25519.ScalarBaseMult(&kp.PublicKey, &kp.PrivateKey)
	return kp, nil
}

// ECDH computes the raw X25519 shared secret. The result must go through a
// KDF before use.
func ECDH(privateKey, peerPublicKey []byte) ([]byte, error) {
	if len(privateKey) != curve25519.ScalarSize || len(peerPublicKey) != curve25519.PointSize {
		return nil, ErrInvalidKeySize
	}
	var zero [32]byte
	if [32]byte(peerPublicKey) == zero {
		return nil, ErrInvalidPublicKey
	}
	// X25519 fails on low-order points (all-zero output).
	shared, err := curve25519.X25519(privateKey, peerPublicKey)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return shared, nil
}
