package keys

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
)

// KeyIDSize is the length of a key identifier.
const KeyIDSize = 8

// KeyID is the stable identifier of a public key.
// It is defined as: KeyID = SHA-512(type || raw public key)[:8].
type KeyID [KeyIDSize]byte

func keyIDFor(t Type, raw []byte) KeyID {
	h := sha512.New()
	h.Write([]byte{byte(t)})
	h.Write(raw)
	var id KeyID
	copy(id[:], h.Sum(nil))
	return id
}

func ParseKeyIDHex(s string) (KeyID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return KeyID{}, err
	}
	if len(b) != KeyIDSize {
		return KeyID{}, errors.New("keys: invalid key id length")
	}
	return KeyID(b), nil
}

func (id KeyID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the identifier as a fresh slice.
func (id KeyID) Bytes() []byte {
	out := make([]byte, KeyIDSize)
	copy(out, id[:])
	return out
}

// IsZero reports whether id is unset.
func (id KeyID) IsZero() bool { return id == KeyID{} }
