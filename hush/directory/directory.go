// Package directory defines how responders publish PFS key bundles and how
// initiators fetch them.
package directory

import (
	"errors"
	"net/netip"

	"github.com/TheusHen/hush/hush/pfs"
)

var (
	ErrNotFound     = errors.New("directory: owner not found")
	ErrInvalidOwner = errors.New("directory: empty owner")
)

// Bundle is everything a responder publishes: identity and long-term keys,
// a supply of one-time keys and an optional transport address.
type Bundle struct {
	Owner    string
	Addr     netip.AddrPort
	Identity *pfs.PublicKey
	LongTerm *pfs.PublicKey
	OneTime  []*pfs.PublicKey
}

// Entry is what one Fetch returns. OneTime is nil once the owner's supply is
// exhausted; the agreement then runs without a one-time key.
type Entry struct {
	Owner string
	Addr  netip.AddrPort
	Info  *pfs.ResponderPublicInfo
}

// Resolver stores bundles. Implementations must hand every one-time key to
// at most one Fetch.
type Resolver interface {
	Publish(b Bundle) error
	Fetch(owner string) (Entry, error)
	List() ([]string, error)
}

// BundleFor builds a bundle for r, generating n fresh one-time keys.
func BundleFor(owner string, addr netip.AddrPort, r *pfs.Responder, n int) (Bundle, error) {
	if owner == "" {
		return Bundle{}, ErrInvalidOwner
	}
	oneTime, err := r.GenerateOneTimeKeys(n)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{
		Owner:    owner,
		Addr:     addr,
		Identity: r.Identity(),
		LongTerm: r.LongTerm(),
		OneTime:  oneTime,
	}, nil
}
