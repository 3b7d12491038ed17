package pfs

import (
	"errors"
	"sync"
	"time"

	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/keys"
)

var (
	ErrOneTimeKeyNotFound = errors.New("pfs: unknown one-time key")
	ErrOneTimeKeyConsumed = errors.New("pfs: one-time key already consumed")
	ErrDuplicateOneTime   = errors.New("pfs: one-time key already registered")
)

type oneTimeEntry struct {
	key      *PrivateKey
	pub      *PublicKey
	added    time.Time
	issued   bool
	consumed bool
}

// OneTimeKeyStore holds a responder's one-time private keys. Consumed keys
// are erased but their ids are remembered, so a replayed handshake is
// reported as reuse rather than as an unknown key.
type OneTimeKeyStore struct {
	mu      sync.Mutex
	entries map[keys.KeyID]*oneTimeEntry
	order   []keys.KeyID
}

// NewOneTimeKeyStore returns an empty store.
func NewOneTimeKeyStore() *OneTimeKeyStore {
	return &OneTimeKeyStore{entries: make(map[keys.KeyID]*oneTimeEntry)}
}

// Add registers private keys. Re-adding a known id, consumed or not, fails.
func (s *OneTimeKeyStore) Add(privs ...*PrivateKey) error {
	const op = "pfs.OneTimeKeyStore.Add"
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range privs {
		if k == nil {
			return errdefs.Errorf(errdefs.ErrConfiguration, op, "nil one-time key")
		}
		if _, ok := s.entries[k.Public().ID()]; ok {
			return errdefs.New(errdefs.ErrConfiguration, op, ErrDuplicateOneTime)
		}
	}
	now := time.Now()
	for _, k := range privs {
		id := k.Public().ID()
		s.entries[id] = &oneTimeEntry{key: k, pub: k.Public(), added: now}
		s.order = append(s.order, id)
	}
	return nil
}

// Issue returns the oldest key that was neither issued nor consumed and
// marks it issued, or nil when none is left.
func (s *OneTimeKeyStore) Issue() *PublicKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		e := s.entries[id]
		if !e.issued && !e.consumed {
			e.issued = true
			return e.pub
		}
	}
	return nil
}

// Consume atomically checks and marks the key with the given id. The
// returned key belongs to the caller, who should Destroy it after use; the
// store keeps only the id.
func (s *OneTimeKeyStore) Consume(id keys.KeyID) (*PrivateKey, error) {
	const op = "pfs.OneTimeKeyStore.Consume"
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, errdefs.New(errdefs.ErrRecipientNotFound, op, ErrOneTimeKeyNotFound)
	}
	if e.consumed {
		return nil, errdefs.New(errdefs.ErrKeyReuse, op, ErrOneTimeKeyConsumed)
	}
	e.consumed = true
	k := e.key
	e.key = nil
	return k, nil
}

// Consumed reports whether the key with the given id has been used.
func (s *OneTimeKeyStore) Consumed(id keys.KeyID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return ok && e.consumed
}

// Available returns the number of keys not yet consumed.
func (s *OneTimeKeyStore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !e.consumed {
			n++
		}
	}
	return n
}

// Cleanup destroys unconsumed keys added before cutoff and returns how many
// were removed. Their ids stay known so late handshakes report reuse.
func (s *OneTimeKeyStore) Cleanup(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, e := range s.entries {
		if !e.consumed && e.added.Before(cutoff) {
			e.key.Destroy()
			e.key = nil
			e.consumed = true
			removed++
		}
	}
	return removed
}
