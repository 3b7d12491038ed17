package keys

import (
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/TheusHen/hush/hush/crypto"
	"github.com/TheusHen/hush/hush/errdefs"
)

const (
	pemPrefix        = "HUSH "
	pemPublicSuffix  = " PUBLIC KEY"
	pemPrivateSuffix = " PRIVATE KEY"
	pemEncryptedType = "HUSH ENCRYPTED PRIVATE KEY"

	saltSize = 16

	// Upper bounds on Argon2 headers read from untrusted blobs.
	maxArgon2Time   = 16
	maxArgon2Memory = 1 << 20 // KiB
)

var (
	ErrWrongPassword    = errors.New("keys: wrong password")
	ErrPasswordRequired = errors.New("keys: private key is password protected")
	ErrNotPEM           = errors.New("keys: no PEM block found")
)

// NewPublicKey validates raw as a public key of type t.
func NewPublicKey(t Type, raw []byte) (PublicKey, error) {
	k := PublicKey{Type: t, Raw: append([]byte(nil), raw...)}
	if err := k.validate(); err != nil {
		return PublicKey{}, errdefs.New(errdefs.ErrKeyDecode, "keys.NewPublicKey", err)
	}
	return k, nil
}

// NewPrivateKey validates raw as a private key of type t.
func NewPrivateKey(t Type, raw []byte) (PrivateKey, error) {
	k := PrivateKey{Type: t, Raw: append([]byte(nil), raw...)}
	if err := k.validate(); err != nil {
		return PrivateKey{}, errdefs.New(errdefs.ErrKeyDecode, "keys.NewPrivateKey", err)
	}
	return k, nil
}

// Marshal encodes k as a PEM block.
func (k PublicKey) Marshal() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  pemPrefix + k.Type.pemName() + pemPublicSuffix,
		Bytes: k.Raw,
	})
}

// ParsePublicKey decodes a PEM public key blob.
func ParsePublicKey(data []byte) (PublicKey, error) {
	const op = "keys.ParsePublicKey"
	block, _ := pem.Decode(data)
	if block == nil {
		return PublicKey{}, errdefs.New(errdefs.ErrKeyDecode, op, ErrNotPEM)
	}
	t, err := typeFromPEM(block.Type, pemPublicSuffix)
	if err != nil {
		return PublicKey{}, errdefs.New(errdefs.ErrKeyDecode, op, err)
	}
	k := PublicKey{Type: t, Raw: block.Bytes}
	if err := k.validate(); err != nil {
		return PublicKey{}, errdefs.New(errdefs.ErrKeyDecode, op, err)
	}
	return k, nil
}

// Marshal encodes k as a PEM block. A non-empty password encrypts the key with
// Argon2id and ChaCha20-Poly1305 using DefaultArgon2Params.
func (k PrivateKey) Marshal(password []byte) ([]byte, error) {
	return k.MarshalWithParams(password, crypto.DefaultArgon2Params)
}

// MarshalWithParams is Marshal with explicit Argon2id cost parameters.
func (k PrivateKey) MarshalWithParams(password []byte, p crypto.Argon2Params) ([]byte, error) {
	if len(password) == 0 {
		return pem.EncodeToMemory(&pem.Block{
			Type:  pemPrefix + k.Type.pemName() + pemPrivateSuffix,
			Bytes: k.Raw,
		}), nil
	}

	salt, err := crypto.RandomBytes(saltSize)
	if err != nil {
		return nil, err
	}
	kek, err := crypto.Argon2Key(password, salt, p)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, "keys.Marshal", err)
	}
	sealed, err := crypto.Seal(kek, k.Raw, []byte(k.Type.String()))
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{
		Type: pemEncryptedType,
		Headers: map[string]string{
			"Key-Type": k.Type.String(),
			"KDF":      "argon2id",
			"Argon2":   fmt.Sprintf("t=%d,m=%d,p=%d", p.Time, p.Memory, p.Threads),
			"Salt":     hex.EncodeToString(salt),
		},
		Bytes: sealed,
	}), nil
}

// ParsePrivateKey decodes a PEM private key blob, decrypting it with password
// when it is protected. A wrong or missing password is a key decode failure.
func ParsePrivateKey(data, password []byte) (PrivateKey, error) {
	const op = "keys.ParsePrivateKey"
	block, _ := pem.Decode(data)
	if block == nil {
		return PrivateKey{}, errdefs.New(errdefs.ErrKeyDecode, op, ErrNotPEM)
	}

	var k PrivateKey
	if block.Type == pemEncryptedType {
		if len(password) == 0 {
			return PrivateKey{}, errdefs.New(errdefs.ErrKeyDecode, op, ErrPasswordRequired)
		}
		var err error
		k, err = decryptBlock(block, password)
		if err != nil {
			return PrivateKey{}, errdefs.New(errdefs.ErrKeyDecode, op, err)
		}
	} else {
		t, err := typeFromPEM(block.Type, pemPrivateSuffix)
		if err != nil {
			return PrivateKey{}, errdefs.New(errdefs.ErrKeyDecode, op, err)
		}
		k = PrivateKey{Type: t, Raw: block.Bytes}
	}

	if err := k.validate(); err != nil {
		return PrivateKey{}, errdefs.New(errdefs.ErrKeyDecode, op, err)
	}
	return k, nil
}

// IsEncrypted reports whether data is a password protected private key blob.
func IsEncrypted(data []byte) bool {
	block, _ := pem.Decode(data)
	return block != nil && block.Type == pemEncryptedType
}

// EncryptPrivateKey re-encodes an unprotected private key blob under password.
func EncryptPrivateKey(data, password []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, errdefs.Errorf(errdefs.ErrConfiguration, "keys.EncryptPrivateKey", "empty password")
	}
	k, err := ParsePrivateKey(data, nil)
	if err != nil {
		return nil, err
	}
	return k.Marshal(password)
}

// DecryptPrivateKey returns the unprotected encoding of a private key blob.
func DecryptPrivateKey(data, password []byte) ([]byte, error) {
	k, err := ParsePrivateKey(data, password)
	if err != nil {
		return nil, err
	}
	return k.Marshal(nil)
}

// ExtractPublicKey returns the encoded public key matching a private key blob.
func ExtractPublicKey(privateKey, password []byte) ([]byte, error) {
	k, err := ParsePrivateKey(privateKey, password)
	if err != nil {
		return nil, err
	}
	pub, err := k.Public()
	if err != nil {
		return nil, errdefs.New(errdefs.ErrKeyDecode, "keys.ExtractPublicKey", err)
	}
	return pub.Marshal(), nil
}

func decryptBlock(block *pem.Block, password []byte) (PrivateKey, error) {
	t, err := ParseType(block.Headers["Key-Type"])
	if err != nil || block.Headers["Key-Type"] == "" {
		return PrivateKey{}, fmt.Errorf("%w: missing or unknown Key-Type header", ErrMalformedKey)
	}
	if block.Headers["KDF"] != "argon2id" {
		return PrivateKey{}, fmt.Errorf("%w: unsupported KDF %q", ErrMalformedKey, block.Headers["KDF"])
	}
	var p crypto.Argon2Params
	if _, err := fmt.Sscanf(block.Headers["Argon2"], "t=%d,m=%d,p=%d", &p.Time, &p.Memory, &p.Threads); err != nil {
		return PrivateKey{}, fmt.Errorf("%w: bad Argon2 header", ErrMalformedKey)
	}
	if p.Time > maxArgon2Time || p.Memory > maxArgon2Memory {
		return PrivateKey{}, fmt.Errorf("%w: Argon2 cost exceeds limits", ErrMalformedKey)
	}
	salt, err := hex.DecodeString(block.Headers["Salt"])
	if err != nil || len(salt) == 0 {
		return PrivateKey{}, fmt.Errorf("%w: bad Salt header", ErrMalformedKey)
	}
	kek, err := crypto.Argon2Key(password, salt, p)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	raw, err := crypto.Open(kek, block.Bytes, []byte(t.String()))
	if err != nil {
		return PrivateKey{}, ErrWrongPassword
	}
	return PrivateKey{Type: t, Raw: raw}, nil
}

func typeFromPEM(blockType, suffix string) (Type, error) {
	if !strings.HasPrefix(blockType, pemPrefix) || !strings.HasSuffix(blockType, suffix) {
		return 0, fmt.Errorf("%w: unexpected PEM type %q", ErrMalformedKey, blockType)
	}
	name := strings.TrimSuffix(strings.TrimPrefix(blockType, pemPrefix), suffix)
	t, err := ParseType(name)
	if err != nil || name == "" {
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}
