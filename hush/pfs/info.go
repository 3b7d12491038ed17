package pfs

import (
	"errors"

	"github.com/TheusHen/hush/hush/errdefs"
)

var (
	ErrMissingIdentity = errors.New("pfs: identity key is required")
	ErrMissingLongTerm = errors.New("pfs: long-term key is required")
	ErrDestroyedKey    = errors.New("pfs: private key was destroyed")
)

// ResponderPublicInfo is what a responder publishes: identity and long-term
// keys, and at most one one-time key per bundle handed out.
type ResponderPublicInfo struct {
	Identity *PublicKey
	LongTerm *PublicKey
	OneTime  *PublicKey
}

// NewResponderPublicInfo validates and returns a responder bundle. oneTime
// may be nil.
func NewResponderPublicInfo(identity, longTerm, oneTime *PublicKey) (*ResponderPublicInfo, error) {
	const op = "pfs.NewResponderPublicInfo"
	if identity == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMissingIdentity)
	}
	if longTerm == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMissingLongTerm)
	}
	return &ResponderPublicInfo{Identity: identity, LongTerm: longTerm, OneTime: oneTime}, nil
}

// ResponderPrivateInfo holds the responder's private keys for one agreement.
type ResponderPrivateInfo struct {
	Identity *PrivateKey
	LongTerm *PrivateKey
	OneTime  *PrivateKey
}

// NewResponderPrivateInfo validates and returns the responder's private keys.
// oneTime may be nil.
func NewResponderPrivateInfo(identity, longTerm, oneTime *PrivateKey) (*ResponderPrivateInfo, error) {
	const op = "pfs.NewResponderPrivateInfo"
	if identity == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMissingIdentity)
	}
	if longTerm == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMissingLongTerm)
	}
	return &ResponderPrivateInfo{Identity: identity, LongTerm: longTerm, OneTime: oneTime}, nil
}

// InitiatorPrivateInfo holds the initiator's identity key. The ephemeral key
// is generated per session.
type InitiatorPrivateInfo struct {
	Identity *PrivateKey
}

// NewInitiatorPrivateInfo validates and returns the initiator's private keys.
func NewInitiatorPrivateInfo(identity *PrivateKey) (*InitiatorPrivateInfo, error) {
	if identity == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, "pfs.NewInitiatorPrivateInfo", ErrMissingIdentity)
	}
	return &InitiatorPrivateInfo{Identity: identity}, nil
}

// InitiatorPublicInfo is what the responder learns about the initiator from
// the handshake.
type InitiatorPublicInfo struct {
	Identity  *PublicKey
	Ephemeral *PublicKey
}

// NewInitiatorPublicInfo validates and returns the initiator's public keys.
func NewInitiatorPublicInfo(identity, ephemeral *PublicKey) (*InitiatorPublicInfo, error) {
	const op = "pfs.NewInitiatorPublicInfo"
	if identity == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMissingIdentity)
	}
	if ephemeral == nil {
		return nil, errdefs.Errorf(errdefs.ErrConfiguration, op, "ephemeral key is required")
	}
	return &InitiatorPublicInfo{Identity: identity, Ephemeral: ephemeral}, nil
}
