package keys

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownType = errors.New("keys: unknown key type")

// Type is an asymmetric key algorithm. The numeric value is the wire id.
type Type uint8

const (
	X25519    Type = 1
	Ed25519   Type = 2
	Secp256k1 Type = 3
	MLKEM768  Type = 4
	MLDSA65   Type = 5
)

// DefaultType is used when no key type is configured.
const DefaultType = Ed25519

var typeNames = map[Type]string{
	X25519:    "x25519",
	Ed25519:   "ed25519",
	Secp256k1: "secp256k1",
	MLKEM768:  "ml-kem-768",
	MLDSA65:   "ml-dsa-65",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Valid reports whether t is a known key type.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// CanSign reports whether keys of this type produce signatures.
func (t Type) CanSign() bool {
	return t == Ed25519 || t == Secp256k1 || t == MLDSA65
}

// CanEncrypt reports whether a content key can be wrapped to keys of this type.
func (t Type) CanEncrypt() bool {
	return t == X25519 || t == Secp256k1 || t == MLKEM768
}

// ParseType maps a configuration name to a Type. The empty string selects
// DefaultType.
func ParseType(name string) (Type, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return DefaultType, nil
	}
	for t, tn := range typeNames {
		if tn == n || strings.ReplaceAll(tn, "-", "") == n {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

func (t Type) pemName() string {
	return strings.ToUpper(t.String())
}
