package pfs

import (
	"github.com/TheusHen/hush/hush/crypto"
	"github.com/TheusHen/hush/hush/errdefs"
)

const (
	kdfLabel = "hush-pfs-v1"

	// SessionIDSize is the length of the identifier both sides derive.
	SessionIDSize = 32

	sessionMaterialSize = 2*crypto.KeySize + SessionIDSize
)

// transcript lists every public key of an agreement in a fixed order.
type transcript struct {
	initiatorIdentity *PublicKey
	ephemeral         *PublicKey
	responderIdentity *PublicKey
	responderLongTerm *PublicKey
	responderOneTime  *PublicKey
}

func (t transcript) info(ad []byte) []byte {
	info := make([]byte, 0, len(kdfLabel)+5*KeySize+len(ad))
	info = append(info, kdfLabel...)
	info = append(info, t.initiatorIdentity.raw[:]...)
	info = append(info, t.ephemeral.raw[:]...)
	info = append(info, t.responderIdentity.raw[:]...)
	info = append(info, t.responderLongTerm.raw[:]...)
	if t.responderOneTime != nil {
		info = append(info, t.responderOneTime.raw[:]...)
	}
	return append(info, ad...)
}

type sessionKeys struct {
	initiatorToResponder []byte
	responderToInitiator []byte
	id                   []byte
}

// derive runs HKDF-SHA-256 over the concatenated DH outputs.
func derive(secrets [][]byte, t transcript, ad []byte) (sessionKeys, error) {
	ikm := make([]byte, 0, len(secrets)*KeySize)
	for _, s := range secrets {
		ikm = append(ikm, s...)
	}
	out, err := crypto.DeriveKey(ikm, nil, t.info(ad), sessionMaterialSize)
	for i := range ikm {
		ikm[i] = 0
	}
	if err != nil {
		return sessionKeys{}, err
	}
	return sessionKeys{
		initiatorToResponder: out[:crypto.KeySize],
		responderToInitiator: out[crypto.KeySize : 2*crypto.KeySize],
		id:                   out[2*crypto.KeySize:],
	}, nil
}

type dhPair struct {
	priv *PrivateKey
	pub  *PublicKey
}

// dhAll computes the DH outputs in the order given, stopping at the first
// failure.
func dhAll(pairs []dhPair) ([][]byte, error) {
	out := make([][]byte, 0, len(pairs))
	for _, p := range pairs {
		if p.priv.destroyed() {
			return nil, ErrDestroyedKey
		}
		s, err := p.priv.dh(p.pub)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// StartInitiatorSession runs the initiator side of the agreement against a
// responder bundle and returns the session and the handshake to send. The
// DH inputs are, in order:
//
//	DH(IKi, LTr)  DH(EKi, IKr)  DH(EKi, LTr)  DH(EKi, OTr) if a one-time key is present
//
// A responder bundle that does not match the responder's real keys is not
// detected here; the first message exchanged fails authentication instead.
func StartInitiatorSession(priv *InitiatorPrivateInfo, responder *ResponderPublicInfo, additionalData []byte) (*Session, *Handshake, error) {
	const op = "pfs.StartInitiatorSession"
	if priv == nil || priv.Identity == nil {
		return nil, nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMissingIdentity)
	}
	if responder == nil || responder.Identity == nil {
		return nil, nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMissingIdentity)
	}
	if responder.LongTerm == nil {
		return nil, nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMissingLongTerm)
	}

	eph, err := GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	defer eph.Destroy()

	pairs := []dhPair{
		{priv.Identity, responder.LongTerm},
		{eph, responder.Identity},
		{eph, responder.LongTerm},
	}
	if responder.OneTime != nil {
		pairs = append(pairs, dhPair{eph, responder.OneTime})
	}
	secrets, err := dhAll(pairs)
	if err != nil {
		return nil, nil, errdefs.New(errdefs.ErrKeyDecode, op, err)
	}

	t := transcript{
		initiatorIdentity: priv.Identity.Public(),
		ephemeral:         eph.Public(),
		responderIdentity: responder.Identity,
		responderLongTerm: responder.LongTerm,
		responderOneTime:  responder.OneTime,
	}
	k, err := derive(secrets, t, additionalData)
	if err != nil {
		return nil, nil, errdefs.New(errdefs.ErrConfiguration, op, err)
	}
	s, err := newSession(RoleInitiator, k, responder.Identity)
	if err != nil {
		return nil, nil, errdefs.New(errdefs.ErrConfiguration, op, err)
	}

	hs := &Handshake{
		InitiatorIdentity:   priv.Identity.Public(),
		Ephemeral:           eph.Public(),
		ResponderIdentityID: responder.Identity.ID(),
		ResponderLongTermID: responder.LongTerm.ID(),
	}
	if responder.OneTime != nil {
		id := responder.OneTime.ID()
		hs.OneTimeID = &id
	}
	return s, hs, nil
}

// StartResponderSession repeats the agreement on the responder side. It keeps
// no state: callers that hand out one-time keys must make sure each is used
// once, which Responder does for them.
func StartResponderSession(priv *ResponderPrivateInfo, initiator *InitiatorPublicInfo, additionalData []byte) (*Session, error) {
	const op = "pfs.StartResponderSession"
	if priv == nil || priv.Identity == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMissingIdentity)
	}
	if priv.LongTerm == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMissingLongTerm)
	}
	if initiator == nil || initiator.Identity == nil || initiator.Ephemeral == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMissingIdentity)
	}

	pairs := []dhPair{
		{priv.LongTerm, initiator.Identity},
		{priv.Identity, initiator.Ephemeral},
		{priv.LongTerm, initiator.Ephemeral},
	}
	var oneTime *PublicKey
	if priv.OneTime != nil {
		pairs = append(pairs, dhPair{priv.OneTime, initiator.Ephemeral})
		oneTime = priv.OneTime.Public()
	}
	secrets, err := dhAll(pairs)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrKeyDecode, op, err)
	}

	t := transcript{
		initiatorIdentity: initiator.Identity,
		ephemeral:         initiator.Ephemeral,
		responderIdentity: priv.Identity.Public(),
		responderLongTerm: priv.LongTerm.Public(),
		responderOneTime:  oneTime,
	}
	k, err := derive(secrets, t, additionalData)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, err)
	}
	s, err := newSession(RoleResponder, k, initiator.Identity)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, err)
	}
	return s, nil
}
