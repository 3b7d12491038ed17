package memory

import (
	"sort"
	"sync"

	"github.com/TheusHen/hush/hush/directory"
	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/keys"
	"github.com/TheusHen/hush/hush/pfs"
)

type record struct {
	bundle directory.Bundle
	seen   map[keys.KeyID]struct{}
}

// Store is an in-memory directory.
// It is useful for tests, examples and embedding in applications.
type Store struct {
	mu     sync.Mutex
	owners map[string]*record
}

func New() *Store {
	return &Store{owners: map[string]*record{}}
}

// Publish stores b. Publishing again for the same owner replaces the
// identity, long-term key and address and appends one-time keys that were
// never published before.
func (s *Store) Publish(b directory.Bundle) error {
	const op = "directory.Publish"
	if b.Owner == "" {
		return errdefs.New(errdefs.ErrConfiguration, op, directory.ErrInvalidOwner)
	}
	if _, err := pfs.NewResponderPublicInfo(b.Identity, b.LongTerm, nil); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.owners[b.Owner]
	if !ok {
		r = &record{seen: map[keys.KeyID]struct{}{}}
		s.owners[b.Owner] = r
	}
	pending := r.bundle.OneTime
	r.bundle = b
	r.bundle.OneTime = pending
	for _, k := range b.OneTime {
		if _, dup := r.seen[k.ID()]; dup {
			continue
		}
		r.seen[k.ID()] = struct{}{}
		r.bundle.OneTime = append(r.bundle.OneTime, k)
	}
	return nil
}

// Fetch returns the owner's bundle with the next unused one-time key, and
// removes that key from the store.
func (s *Store) Fetch(owner string) (directory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.owners[owner]
	if !ok {
		return directory.Entry{}, errdefs.New(errdefs.ErrRecipientNotFound, "directory.Fetch", directory.ErrNotFound)
	}
	var oneTime *pfs.PublicKey
	if len(r.bundle.OneTime) > 0 {
		oneTime = r.bundle.OneTime[0]
		r.bundle.OneTime = r.bundle.OneTime[1:]
	}
	info, err := pfs.NewResponderPublicInfo(r.bundle.Identity, r.bundle.LongTerm, oneTime)
	if err != nil {
		return directory.Entry{}, err
	}
	return directory.Entry{Owner: owner, Addr: r.bundle.Addr, Info: info}, nil
}

// Remaining returns how many one-time keys are left for owner.
func (s *Store) Remaining(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.owners[owner]; ok {
		return len(r.bundle.OneTime)
	}
	return 0
}

func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.owners))
	for owner := range s.owners {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out, nil
}

var _ directory.Resolver = (*Store)(nil)
