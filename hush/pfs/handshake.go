package pfs

import (
	"errors"

	"golang.org/x/crypto/cryptobyte"

	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/keys"
)

const handshakeVersion = 1

var ErrMalformedHandshake = errors.New("pfs: malformed handshake")

// Handshake is the message the initiator sends so the responder can repeat the
// agreement.
//
//	u8  version
//	32  initiator identity key
//	32  initiator ephemeral key
//	8   responder identity key id
//	8   responder long-term key id
//	u8  one-time flag, followed by the 8-byte one-time key id when set
type Handshake struct {
	InitiatorIdentity   *PublicKey
	Ephemeral           *PublicKey
	ResponderIdentityID keys.KeyID
	ResponderLongTermID keys.KeyID
	OneTimeID           *keys.KeyID
}

// Initiator returns the initiator's public keys carried by h.
func (h *Handshake) Initiator() (*InitiatorPublicInfo, error) {
	return NewInitiatorPublicInfo(h.InitiatorIdentity, h.Ephemeral)
}

// Marshal encodes h.
func (h *Handshake) Marshal() ([]byte, error) {
	const op = "pfs.Handshake.Marshal"
	if h.InitiatorIdentity == nil || h.Ephemeral == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrMalformedHandshake)
	}
	b := cryptobyte.NewBuilder(make([]byte, 0, 1+2*KeySize+3*keys.KeyIDSize+1))
	b.AddUint8(handshakeVersion)
	b.AddBytes(h.InitiatorIdentity.raw[:])
	b.AddBytes(h.Ephemeral.raw[:])
	b.AddBytes(h.ResponderIdentityID[:])
	b.AddBytes(h.ResponderLongTermID[:])
	if h.OneTimeID != nil {
		b.AddUint8(1)
		b.AddBytes(h.OneTimeID[:])
	} else {
		b.AddUint8(0)
	}
	return b.Bytes()
}

// ParseHandshake decodes a handshake produced by Marshal.
func ParseHandshake(data []byte) (*Handshake, error) {
	const op = "pfs.ParseHandshake"
	var (
		in             = cryptobyte.String(data)
		version, flag  uint8
		ik, ek, rid, l []byte
	)
	if !in.ReadUint8(&version) || version != handshakeVersion ||
		!in.ReadBytes(&ik, KeySize) || !in.ReadBytes(&ek, KeySize) ||
		!in.ReadBytes(&rid, keys.KeyIDSize) || !in.ReadBytes(&l, keys.KeyIDSize) ||
		!in.ReadUint8(&flag) {
		return nil, errdefs.New(errdefs.ErrHeaderParse, op, ErrMalformedHandshake)
	}

	h := &Handshake{
		ResponderIdentityID: keys.KeyID(rid),
		ResponderLongTermID: keys.KeyID(l),
	}
	switch flag {
	case 0:
	case 1:
		var ot []byte
		if !in.ReadBytes(&ot, keys.KeyIDSize) {
			return nil, errdefs.New(errdefs.ErrHeaderParse, op, ErrMalformedHandshake)
		}
		id := keys.KeyID(ot)
		h.OneTimeID = &id
	default:
		return nil, errdefs.New(errdefs.ErrHeaderParse, op, ErrMalformedHandshake)
	}
	if !in.Empty() {
		return nil, errdefs.New(errdefs.ErrHeaderParse, op, ErrMalformedHandshake)
	}

	var err error
	if h.InitiatorIdentity, err = NewPublicKey(ik); err != nil {
		return nil, err
	}
	if h.Ephemeral, err = NewPublicKey(ek); err != nil {
		return nil, err
	}
	return h, nil
}
