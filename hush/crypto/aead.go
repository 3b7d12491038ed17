package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
	ErrDecryptionFailed   = errors.New("crypto: decryption failed")
	ErrStreamFinished     = errors.New("crypto: stream already sealed its final chunk")
	ErrUnknownAlgorithm   = errors.New("crypto: unknown cipher algorithm")
)

const (
	// KeySize is the content encryption key size for every supported algorithm.
	KeySize = 32
	// NonceSize is the base nonce size stored in ContentInfo.
	NonceSize = 12
	// TagSize is the per-chunk authentication overhead.
	TagSize = 16
)

// Algorithm identifies a content cipher. The numeric value is the wire id.
type Algorithm uint8

const (
	ChaCha20Poly1305 Algorithm = 1
	AES256GCM        Algorithm = 2
)

func (a Algorithm) String() string {
	switch a {
	case ChaCha20Poly1305:
		return "chacha20-poly1305"
	case AES256GCM:
		return "aes-256-gcm"
	default:
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
}

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool {
	return a == ChaCha20Poly1305 || a == AES256GCM
}

// ParseAlgorithm maps a configuration name to an Algorithm. The empty string
// selects ChaCha20-Poly1305.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "chacha20-poly1305", "chacha20poly1305":
		return ChaCha20Poly1305, nil
	case "aes-256-gcm", "aes256gcm":
		return AES256GCM, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// NewAEAD returns the raw cipher.AEAD for alg under a 32-byte key.
func NewAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: invalid key size %d for %s", len(key), alg)
	}
	switch alg {
	case ChaCha20Poly1305:
		return chacha20poly1305.New(key)
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	default:
		return nil, ErrUnknownAlgorithm
	}
}

// StreamAEAD seals a sequence of chunks under one key.
//
// Chunk i uses nonce = base XOR (i as 64-bit big endian in bytes 3..10) XOR
// (last flag in byte 11), so chunks cannot be reordered, dropped or
// truncated without detection, and the final chunk cannot be confused with an
// intermediate one.
type StreamAEAD struct {
	aead    cipher.AEAD
	base    [NonceSize]byte
	counter uint64
	done    bool
}

// NewStreamAEAD creates a chunk sealer for alg with the given key and base nonce.
func NewStreamAEAD(alg Algorithm, key, baseNonce []byte) (*StreamAEAD, error) {
	if len(baseNonce) != NonceSize {
		return nil, fmt.Errorf("crypto: base nonce must be %d bytes", NonceSize)
	}
	aead, err := NewAEAD(alg, key)
	if err != nil {
		return nil, err
	}
	s := &StreamAEAD{aead: aead}
	copy(s.base[:], baseNonce)
	return s, nil
}

func (s *StreamAEAD) nonce(last bool) []byte {
	nonce := make([]byte, NonceSize)
	copy(nonce, s.base[:])
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], s.counter)
	for i := range ctr {
		nonce[3+i] ^= ctr[i]
	}
	if last {
		nonce[NonceSize-1] ^= 0x01
	}
	return nonce
}

// SealChunk encrypts the next chunk and appends it to dst.
func (s *StreamAEAD) SealChunk(dst, plaintext, additionalData []byte, last bool) ([]byte, error) {
	if s.done {
		return nil, ErrStreamFinished
	}
	out := s.aead.Seal(dst, s.nonce(last), plaintext, additionalData)
	s.counter++
	s.done = last
	return out, nil
}

// OpenChunk verifies and decrypts the next chunk, appending the plaintext to dst.
// The counter only advances on success.
func (s *StreamAEAD) OpenChunk(dst, ciphertext, additionalData []byte, last bool) ([]byte, error) {
	if s.done {
		return nil, ErrStreamFinished
	}
	if len(ciphertext) < s.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	out, err := s.aead.Open(dst, s.nonce(last), ciphertext, additionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	s.counter++
	s.done = last
	return out, nil
}

// Overhead returns the authentication tag overhead per chunk.
func (s *StreamAEAD) Overhead() int { return s.aead.Overhead() }

// Chunks returns the number of chunks processed so far.
func (s *StreamAEAD) Chunks() uint64 { return s.counter }

// Seal encrypts a single message under key with ChaCha20-Poly1305 and a random
// nonce. Output: nonce (12 bytes) || ciphertext || tag (16 bytes).
func Seal(key, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := NewAEAD(ChaCha20Poly1305, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, err
	}
	return aead.Seal(out, out[:NonceSize], plaintext, additionalData), nil
}

// Open reverses Seal.
func Open(key, sealed, additionalData []byte) ([]byte, error) {
	aead, err := NewAEAD(ChaCha20Poly1305, key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < NonceSize+aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	pt, err := aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], additionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
