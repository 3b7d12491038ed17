package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"

	"github.com/TheusHen/hush/hush/crypto"
)

var (
	ErrMalformedKey    = errors.New("keys: malformed key")
	ErrKeyTypeMismatch = errors.New("keys: key type mismatch")
)

// PublicKey is a typed raw public key.
type PublicKey struct {
	Type Type
	Raw  []byte
}

// PrivateKey is a typed raw private key. Raw layouts:
//
//	x25519     32-byte scalar
//	ed25519    32-byte seed
//	secp256k1  32-byte scalar
//	ml-kem-768 circl packed private key
//	ml-dsa-65  circl packed private key
type PrivateKey struct {
	Type Type
	Raw  []byte
}

// KeyPair holds encoded key blobs as exchanged with callers. PrivateKey may be
// encrypted under a password (see EncryptPrivateKey).
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// Generate creates a new private key of type t.
func Generate(t Type) (PrivateKey, error) {
	var (
		raw []byte
		err error
	)
	switch t {
	case X25519:
		var kp crypto.X25519KeyPair
		kp, err = crypto.GenerateX25519()
		raw = kp.PrivateKey[:]
	case Ed25519:
		raw = make([]byte, ed25519.SeedSize)
		_, err = rand.Read(raw)
	case Secp256k1:
		raw, _, err = crypto.GenerateSecp256k1()
	case MLKEM768:
		raw, _, err = crypto.GenerateMLKEM()
	case MLDSA65:
		var sk *mldsa65.PrivateKey
		_, sk, err = mldsa65.GenerateKey(rand.Reader)
		if err == nil {
			raw, err = sk.MarshalBinary()
		}
	default:
		return PrivateKey{}, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	if err != nil {
		return PrivateKey{}, err
	}
	return PrivateKey{Type: t, Raw: raw}, nil
}

// GenerateKeyPair creates a key pair and returns its encoded blobs. A non-empty
// password encrypts the private key blob.
func GenerateKeyPair(t Type, password []byte) (KeyPair, error) {
	priv, err := Generate(t)
	if err != nil {
		return KeyPair{}, err
	}
	pub, err := priv.Public()
	if err != nil {
		return KeyPair{}, err
	}
	privBlob, err := priv.Marshal(password)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PublicKey: pub.Marshal(), PrivateKey: privBlob}, nil
}

// Public derives the public half of k.
func (k PrivateKey) Public() (PublicKey, error) {
	var (
		raw []byte
		err error
	)
	switch k.Type {
	case X25519:
		var kp crypto.X25519KeyPair
		kp, err = crypto.X25519FromPrivate(k.Raw)
		raw = kp.PublicKey[:]
	case Ed25519:
		if len(k.Raw) != ed25519.SeedSize {
			return PublicKey{}, ErrMalformedKey
		}
		raw = ed25519.NewKeyFromSeed(k.Raw).Public().(ed25519.PublicKey)
	case Secp256k1:
		raw, err = crypto.Secp256k1Public(k.Raw)
	case MLKEM768:
		raw, err = crypto.MLKEMPublic(k.Raw)
	case MLDSA65:
		var sk mldsa65.PrivateKey
		if err = sk.UnmarshalBinary(k.Raw); err == nil {
			raw, err = sk.Public().(*mldsa65.PublicKey).MarshalBinary()
		}
	default:
		return PublicKey{}, fmt.Errorf("%w: %d", ErrUnknownType, uint8(k.Type))
	}
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return PublicKey{Type: k.Type, Raw: raw}, nil
}

// ID returns the identifier of the public key.
func (k PublicKey) ID() KeyID { return keyIDFor(k.Type, k.Raw) }

// Equal reports whether k and o are the same key.
func (k PublicKey) Equal(o PublicKey) bool {
	return k.Type == o.Type && string(k.Raw) == string(o.Raw)
}

// validate checks the raw length (and point encoding where cheap) for the
// key's type.
func (k PublicKey) validate() error {
	var want int
	switch k.Type {
	case X25519, Ed25519:
		want = 32
	case Secp256k1:
		want = crypto.Secp256k1PublicKeySize
	case MLKEM768:
		want = crypto.MLKEMPublicKeySize
	case MLDSA65:
		var pk mldsa65.PublicKey
		if err := pk.UnmarshalBinary(k.Raw); err != nil {
			return ErrMalformedKey
		}
		return nil
	default:
		return ErrUnknownType
	}
	if len(k.Raw) != want {
		return fmt.Errorf("%w: %s public key is %d bytes, want %d", ErrMalformedKey, k.Type, len(k.Raw), want)
	}
	return nil
}

func (k PrivateKey) validate() error {
	var want int
	switch k.Type {
	case X25519, Secp256k1:
		want = 32
	case Ed25519:
		want = ed25519.SeedSize
	case MLKEM768:
		want = crypto.MLKEMPrivateKeySize
	case MLDSA65:
		var sk mldsa65.PrivateKey
		if err := sk.UnmarshalBinary(k.Raw); err != nil {
			return ErrMalformedKey
		}
		return nil
	default:
		return ErrUnknownType
	}
	if len(k.Raw) != want {
		return fmt.Errorf("%w: %s private key is %d bytes, want %d", ErrMalformedKey, k.Type, len(k.Raw), want)
	}
	return nil
}
