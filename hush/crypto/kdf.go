package crypto

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

var ErrUnknownHash = errors.New("crypto: unknown hash algorithm")

// Hash identifies a digest function. The numeric value is the wire id.
type Hash uint8

const (
	MD5    Hash = 1
	SHA256 Hash = 2
	SHA384 Hash = 3
	SHA512 Hash = 4
)

func (h Hash) String() string {
	switch h {
	case MD5:
		return "md5"
	case SHA256:
		return "sha-256"
	case SHA384:
		return "sha-384"
	case SHA512:
		return "sha-512"
	default:
		return fmt.Sprintf("hash(%d)", uint8(h))
	}
}

// New returns a fresh hash.Hash, or nil for an unknown id.
func (h Hash) New() hash.Hash {
	switch h {
	case MD5:
		return md5.New()
	case SHA256:
		return sha256.New()
	case SHA384:
		return sha512.New384()
	case SHA512:
		return sha512.New()
	default:
		return nil
	}
}

// Valid reports whether h is a known hash id.
func (h Hash) Valid() bool { return h >= MD5 && h <= SHA512 }

// ParseHash maps a configuration name to a Hash. The empty string selects
// SHA-384.
func ParseHash(name string) (Hash, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-")) {
	case "md5":
		return MD5, nil
	case "sha-256", "sha256":
		return SHA256, nil
	case "", "sha-384", "sha384":
		return SHA384, nil
	case "sha-512", "sha512":
		return SHA512, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownHash, name)
	}
}

// DeriveKey derives a key of the specified length using HKDF-SHA256.
// salt can be nil (uses zero salt), info provides context binding.
func DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	hk := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, length)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveWrapKey derives a 32-byte key-encryption key from an agreement or KEM
// secret. The label separates key types, the transcript binds the exchanged
// public values.
func DeriveWrapKey(secret []byte, label string, transcript ...[]byte) ([]byte, error) {
	info := []byte("hush-wrap:" + label)
	for _, t := range transcript {
		info = append(info, t...)
	}
	return DeriveKey(secret, nil, info, KeySize)
}

// PasswordKey derives a key-encryption key from a password with PBKDF2.
func PasswordKey(password, salt []byte, iterations int, h Hash) ([]byte, error) {
	if !h.Valid() || h == MD5 {
		return nil, fmt.Errorf("%w: %s is not allowed for PBKDF2", ErrUnknownHash, h)
	}
	if iterations <= 0 {
		return nil, errors.New("crypto: PBKDF2 iterations must be positive")
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, h.New), nil
}

// Argon2Params are the Argon2id cost parameters used to protect private keys.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultArgon2Params follows the RFC 9106 second recommended option.
var DefaultArgon2Params = Argon2Params{Time: 3, Memory: 64 * 1024, Threads: 4}

// Argon2Key derives a 32-byte key from password with Argon2id.
func Argon2Key(password, salt []byte, p Argon2Params) ([]byte, error) {
	if p.Time == 0 || p.Memory == 0 || p.Threads == 0 {
		return nil, errors.New("crypto: invalid argon2 parameters")
	}
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, KeySize), nil
}
