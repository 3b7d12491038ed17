package pfs

import (
	"bytes"
	"crypto/subtle"
	"fmt"

	"github.com/TheusHen/hush/hush/crypto"
	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/keys"
)

// KeySize is the size of PFS public and private keys (X25519).
const KeySize = 32

// PublicKey is an X25519 public key together with its stable identifier.
type PublicKey struct {
	raw [KeySize]byte
	id  keys.KeyID
}

// NewPublicKey wraps a raw 32-byte X25519 public key.
func NewPublicKey(raw []byte) (*PublicKey, error) {
	if len(raw) != KeySize {
		return nil, errdefs.New(errdefs.ErrKeyDecode, "pfs.NewPublicKey", crypto.ErrInvalidKeySize)
	}
	k := &PublicKey{raw: [KeySize]byte(raw)}
	k.id = keys.PublicKey{Type: keys.X25519, Raw: k.raw[:]}.ID()
	return k, nil
}

// ParsePublicKey decodes an encoded X25519 public key blob.
func ParsePublicKey(blob []byte) (*PublicKey, error) {
	const op = "pfs.ParsePublicKey"
	pub, err := keys.ParsePublicKey(blob)
	if err != nil {
		return nil, err
	}
	if pub.Type != keys.X25519 {
		return nil, errdefs.New(errdefs.ErrKeyDecode, op, fmt.Errorf("%w: %s", keys.ErrKeyTypeMismatch, pub.Type))
	}
	return NewPublicKey(pub.Raw)
}

// Bytes returns a copy of the raw key.
func (k *PublicKey) Bytes() []byte { return bytes.Clone(k.raw[:]) }

// ID returns the key identifier.
func (k *PublicKey) ID() keys.KeyID { return k.id }

// Marshal encodes the key as a public key blob.
func (k *PublicKey) Marshal() []byte {
	return keys.PublicKey{Type: keys.X25519, Raw: k.raw[:]}.Marshal()
}

// Equal reports whether both keys are the same.
func (k *PublicKey) Equal(o *PublicKey) bool {
	return k != nil && o != nil && k.raw == o.raw
}

// PrivateKey is an X25519 private key.
type PrivateKey struct {
	raw [KeySize]byte
	pub *PublicKey
}

// GenerateKeyPair creates a fresh X25519 key.
func GenerateKeyPair() (*PrivateKey, error) {
	kp, err := crypto.GenerateX25519()
	if err != nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, "pfs.GenerateKeyPair", err)
	}
	return newPrivateKey(kp.PrivateKey[:])
}

// NewPrivateKey wraps a raw 32-byte X25519 private scalar.
func NewPrivateKey(raw []byte) (*PrivateKey, error) {
	return newPrivateKey(raw)
}

func newPrivateKey(raw []byte) (*PrivateKey, error) {
	const op = "pfs.NewPrivateKey"
	kp, err := crypto.X25519FromPrivate(raw)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrKeyDecode, op, err)
	}
	pub, err := NewPublicKey(kp.PublicKey[:])
	if err != nil {
		return nil, err
	}
	return &PrivateKey{raw: kp.PrivateKey, pub: pub}, nil
}

// ParsePrivateKey decodes an X25519 private key blob, decrypting it with
// password when it is protected.
func ParsePrivateKey(blob, password []byte) (*PrivateKey, error) {
	const op = "pfs.ParsePrivateKey"
	priv, err := keys.ParsePrivateKey(blob, password)
	if err != nil {
		return nil, err
	}
	if priv.Type != keys.X25519 {
		return nil, errdefs.New(errdefs.ErrKeyDecode, op, fmt.Errorf("%w: %s", keys.ErrKeyTypeMismatch, priv.Type))
	}
	return newPrivateKey(priv.Raw)
}

// Public returns the public half.
func (k *PrivateKey) Public() *PublicKey { return k.pub }

// Marshal encodes the key, protected by password when it is non-empty.
func (k *PrivateKey) Marshal(password []byte) ([]byte, error) {
	return keys.PrivateKey{Type: keys.X25519, Raw: k.raw[:]}.Marshal(password)
}

// Destroy overwrites the private scalar.
func (k *PrivateKey) Destroy() {
	for i := range k.raw {
		k.raw[i] = 0
	}
}

func (k *PrivateKey) destroyed() bool {
	var zero [KeySize]byte
	return subtle.ConstantTimeCompare(k.raw[:], zero[:]) == 1
}

func (k *PrivateKey) dh(peer *PublicKey) ([]byte, error) {
	return crypto.ECDH(k.raw[:], peer.raw[:])
}
