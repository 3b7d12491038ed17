package ratchet

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"slices"
	"sync"

	"github.com/TheusHen/hush/hush/crypto"
)

var (
	ErrRatchetExhausted  = errors.New("ratchet: maximum generation reached")
	ErrInvalidGeneration = errors.New("ratchet: invalid generation number")
	ErrMessageTooShort   = errors.New("ratchet: message too short")
	ErrInvalidKey        = errors.New("ratchet: initial key must be 32 bytes")
)

const (
	// MaxGeneration is the number of steps before the session must be replaced.
	MaxGeneration = 1 << 32

	// DefaultMaxSkip bounds how far ahead of the receiver a message may be.
	DefaultMaxSkip = 1000
)

// step derives (nextChainKey, messageKey) from a chain key.
//
//	messageKey   = HMAC-SHA256(chainKey, 0x01)
//	nextChainKey = HMAC-SHA256(chainKey, 0x02)
func step(chainKey [32]byte) (next, message [32]byte) {
	m := hmac.New(sha256.New, chainKey[:])
	m.Write([]byte{0x01})
	copy(message[:], m.Sum(nil))

	m = hmac.New(sha256.New, chainKey[:])
	m.Write([]byte{0x02})
	copy(next[:], m.Sum(nil))
	return next, message
}

// header binds the generation into the AEAD additional data.
func header(gen uint64, ad []byte) []byte {
	out := make([]byte, 8, 8+len(ad))
	binary.BigEndian.PutUint64(out, gen)
	return append(out, ad...)
}

// Chain is the sending half of a symmetric ratchet. Every message is sealed
// under a fresh key and the chain key is replaced immediately.
type Chain struct {
	mu         sync.Mutex
	chainKey   [32]byte
	generation uint64
}

// NewChain creates a sending chain from a 32-byte key.
func NewChain(initialKey []byte) (*Chain, error) {
	if len(initialKey) != 32 {
		return nil, ErrInvalidKey
	}
	c := &Chain{}
	copy(c.chainKey[:], initialKey)
	return c, nil
}

// Generation returns the generation of the next message.
func (c *Chain) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// EncryptedMessage is one ratcheted message.
type EncryptedMessage struct {
	Generation uint64
	Ciphertext []byte
}

// Seal encrypts plaintext under the next message key.
func (c *Chain) Seal(plaintext, ad []byte) (EncryptedMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation >= MaxGeneration {
		return EncryptedMessage{}, ErrRatchetExhausted
	}
	next, msgKey := step(c.chainKey)
	gen := c.generation
	c.chainKey = next
	c.generation++

	ct, err := crypto.Seal(msgKey[:], plaintext, header(gen, ad))
	if err != nil {
		return EncryptedMessage{}, err
	}
	return EncryptedMessage{Generation: gen, Ciphertext: ct}, nil
}

// Receiver is the receiving half. It tolerates reordering up to maxSkip
// messages ahead by caching the skipped message keys; at most maxSkip keys
// are cached, the oldest evicted first.
type Receiver struct {
	mu         sync.Mutex
	skipped    map[uint64][32]byte
	current    [32]byte
	currentGen uint64
	maxSkip    int
}

// NewReceiver creates a receiving chain from a 32-byte key.
func NewReceiver(initialKey []byte, maxSkip int) (*Receiver, error) {
	if len(initialKey) != 32 {
		return nil, ErrInvalidKey
	}
	r := &Receiver{
		skipped: make(map[uint64][32]byte),
		maxSkip: maxSkip,
	}
	copy(r.current[:], initialKey)
	return r, nil
}

// Open decrypts msg. The receiver state only advances when the message
// authenticates, so a forged message cannot desynchronise the chain.
func (r *Receiver) Open(msg EncryptedMessage, ad []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gen := msg.Generation
	if msgKey, ok := r.skipped[gen]; ok {
		pt, err := crypto.Open(msgKey[:], msg.Ciphertext, header(gen, ad))
		if err != nil {
			return nil, err
		}
		delete(r.skipped, gen)
		return pt, nil
	}
	if gen < r.currentGen {
		return nil, ErrInvalidGeneration
	}
	if gen-r.currentGen > uint64(r.maxSkip) {
		return nil, ErrInvalidGeneration
	}

	chainKey := r.current
	var pending map[uint64][32]byte
	for i := r.currentGen; i < gen; i++ {
		next, msgKey := step(chainKey)
		if pending == nil {
			pending = make(map[uint64][32]byte)
		}
		pending[i] = msgKey
		chainKey = next
	}
	next, msgKey := step(chainKey)

	pt, err := crypto.Open(msgKey[:], msg.Ciphertext, header(gen, ad))
	if err != nil {
		return nil, err
	}
	for i, k := range pending {
		r.skipped[i] = k
	}
	r.evict()
	r.current = next
	r.currentGen = gen + 1
	return pt, nil
}

// evict drops the oldest cached keys once more than maxSkip are held.
func (r *Receiver) evict() {
	excess := len(r.skipped) - r.maxSkip
	if excess <= 0 {
		return
	}
	gens := make([]uint64, 0, len(r.skipped))
	for g := range r.skipped {
		gens = append(gens, g)
	}
	slices.Sort(gens)
	for _, g := range gens[:excess] {
		delete(r.skipped, g)
	}
}

// Skipped returns the number of cached keys for messages not yet received.
func (r *Receiver) Skipped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.skipped)
}

// Encode serializes m as generation (8 bytes, big endian) || ciphertext.
func (m EncryptedMessage) Encode() []byte {
	out := make([]byte, 8+len(m.Ciphertext))
	binary.BigEndian.PutUint64(out[:8], m.Generation)
	copy(out[8:], m.Ciphertext)
	return out
}

// DecodeEncryptedMessage reverses Encode.
func DecodeEncryptedMessage(data []byte) (EncryptedMessage, error) {
	if len(data) < 8 {
		return EncryptedMessage{}, ErrMessageTooShort
	}
	return EncryptedMessage{
		Generation: binary.BigEndian.Uint64(data[:8]),
		Ciphertext: data[8:],
	}, nil
}
