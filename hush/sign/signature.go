package sign

import (
	"bytes"
	"errors"

	"golang.org/x/crypto/cryptobyte"

	"github.com/TheusHen/hush/hush/crypto"
	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/keys"
)

// signatureVersion prefixes every encoded signature.
const signatureVersion = 1

var ErrMalformedSignature = errors.New("sign: malformed signature")

// Signature is a detached signature over a stream digest.
//
// Encoding:
//
//	u8  version
//	u8  digest id
//	u8  key type
//	8   key id
//	u16 length | signature bytes
type Signature struct {
	Hash    crypto.Hash
	KeyType keys.Type
	KeyID   keys.KeyID
	Raw     []byte
}

// Marshal encodes s.
func (s *Signature) Marshal() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint8(signatureVersion)
	b.AddUint8(uint8(s.Hash))
	b.AddUint8(uint8(s.KeyType))
	b.AddBytes(s.KeyID[:])
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(s.Raw) })
	out, err := b.Bytes()
	if err != nil {
		return nil, errdefs.New(errdefs.ErrSigning, "sign.Marshal", err)
	}
	return out, nil
}

// ParseSignature decodes a signature produced by Marshal.
func ParseSignature(data []byte) (*Signature, error) {
	const op = "sign.ParseSignature"
	var (
		in              = cryptobyte.String(data)
		version, h, typ uint8
		id              []byte
		raw             cryptobyte.String
	)
	if !in.ReadUint8(&version) || !in.ReadUint8(&h) || !in.ReadUint8(&typ) ||
		!in.ReadBytes(&id, keys.KeyIDSize) || !in.ReadUint16LengthPrefixed(&raw) || !in.Empty() {
		return nil, errdefs.New(errdefs.ErrSigning, op, ErrMalformedSignature)
	}
	if version != signatureVersion || !crypto.Hash(h).Valid() || !keys.Type(typ).CanSign() {
		return nil, errdefs.New(errdefs.ErrSigning, op, ErrMalformedSignature)
	}
	s := &Signature{Hash: crypto.Hash(h), KeyType: keys.Type(typ), Raw: bytes.Clone(raw)}
	copy(s.KeyID[:], id)
	return s, nil
}
