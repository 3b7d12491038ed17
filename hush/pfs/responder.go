package pfs

import (
	"go.uber.org/zap"

	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/logging"
)

type Option func(*Responder)

func WithLogger(l *zap.Logger) Option {
	return func(r *Responder) { r.log = logging.Named(l, "pfs") }
}

// Responder is the stateful responder role: it owns the identity and
// long-term keys and the one-time key registry shared by every agreement.
// It is safe for concurrent use.
type Responder struct {
	identity *PrivateKey
	longTerm *PrivateKey
	oneTime  *OneTimeKeyStore
	log      *zap.Logger
}

// NewResponder returns a responder with no one-time keys.
func NewResponder(identity, longTerm *PrivateKey, opts ...Option) (*Responder, error) {
	const op = "pfs.NewResponder"
	if identity == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMissingIdentity)
	}
	if longTerm == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMissingLongTerm)
	}
	r := &Responder{
		identity: identity,
		longTerm: longTerm,
		oneTime:  NewOneTimeKeyStore(),
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Identity returns the responder's identity public key.
func (r *Responder) Identity() *PublicKey { return r.identity.Public() }

// LongTerm returns the responder's long-term public key.
func (r *Responder) LongTerm() *PublicKey { return r.longTerm.Public() }

// OneTimeKeys exposes the one-time key registry.
func (r *Responder) OneTimeKeys() *OneTimeKeyStore { return r.oneTime }

// AddOneTimeKeys registers one-time private keys.
func (r *Responder) AddOneTimeKeys(privs ...*PrivateKey) error {
	if err := r.oneTime.Add(privs...); err != nil {
		return err
	}
	r.log.Debug("one-time keys added", zap.Int("count", len(privs)), zap.Int("available", r.oneTime.Available()))
	return nil
}

// GenerateOneTimeKeys creates and registers n one-time keys and returns
// their public halves.
func (r *Responder) GenerateOneTimeKeys(n int) ([]*PublicKey, error) {
	privs := make([]*PrivateKey, 0, n)
	pubs := make([]*PublicKey, 0, n)
	for i := 0; i < n; i++ {
		k, err := GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		privs = append(privs, k)
		pubs = append(pubs, k.Public())
	}
	if err := r.AddOneTimeKeys(privs...); err != nil {
		return nil, err
	}
	return pubs, nil
}

// PublicInfo returns a bundle for one initiator. It carries a one-time key
// that no earlier bundle carried, or none when the registry is exhausted.
func (r *Responder) PublicInfo() (*ResponderPublicInfo, error) {
	return NewResponderPublicInfo(r.identity.Public(), r.longTerm.Public(), r.oneTime.Issue())
}

// Accept completes an agreement from an initiator's handshake. A one-time
// key named by the handshake is consumed before the agreement runs and is
// never usable again, even if the agreement fails. A handshake built from
// other or stale responder keys still yields a session; its first message
// fails authentication.
func (r *Responder) Accept(hs *Handshake, additionalData []byte) (*Session, error) {
	const op = "pfs.Responder.Accept"
	if hs == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMalformedHandshake)
	}
	if hs.ResponderIdentityID != r.identity.Public().ID() || hs.ResponderLongTermID != r.longTerm.Public().ID() {
		r.log.Debug("handshake names other responder keys",
			zap.Stringer("identity_id", hs.ResponderIdentityID),
			zap.Stringer("long_term_id", hs.ResponderLongTermID))
	}
	initiator, err := hs.Initiator()
	if err != nil {
		return nil, err
	}

	priv := &ResponderPrivateInfo{Identity: r.identity, LongTerm: r.longTerm}
	if hs.OneTimeID != nil {
		ot, err := r.oneTime.Consume(*hs.OneTimeID)
		if err != nil {
			r.log.Warn("one-time key rejected",
				zap.Stringer("one_time_id", hs.OneTimeID),
				zap.Stringer("initiator", initiator.Identity.ID()),
				zap.Error(err))
			return nil, err
		}
		defer ot.Destroy()
		priv.OneTime = ot
	}

	s, err := StartResponderSession(priv, initiator, additionalData)
	if err != nil {
		return nil, err
	}
	r.log.Debug("agreement accepted",
		zap.Stringer("initiator", initiator.Identity.ID()),
		zap.Bool("one_time", hs.OneTimeID != nil),
		logging.ID("session", s.id))
	return s, nil
}
