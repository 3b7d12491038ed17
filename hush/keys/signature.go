package keys

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

var ErrCannotSign = errors.New("keys: key type cannot sign")

// Sign signs a message digest with k.
//
//	ed25519    pure Ed25519 over the digest
//	secp256k1  ECDSA (RFC 6979 nonces), DER encoded
//	ml-dsa-65  deterministic ML-DSA-65, empty context
func (k PrivateKey) Sign(digest []byte) ([]byte, error) {
	if !k.Type.CanSign() {
		return nil, fmt.Errorf("%w: %s", ErrCannotSign, k.Type)
	}
	if err := k.validate(); err != nil {
		return nil, err
	}
	switch k.Type {
	case Ed25519:
		return ed25519.Sign(ed25519.NewKeyFromSeed(k.Raw), digest), nil
	case Secp256k1:
		sk, _ := btcec.PrivKeyFromBytes(k.Raw)
		return ecdsa.Sign(sk, digest).Serialize(), nil
	case MLDSA65:
		var sk mldsa65.PrivateKey
		if err := sk.UnmarshalBinary(k.Raw); err != nil {
			return nil, ErrMalformedKey
		}
		sig := make([]byte, mldsa65.SignatureSize)
		if err := mldsa65.SignTo(&sk, digest, nil, false, sig); err != nil {
			return nil, err
		}
		return sig, nil
	}
	return nil, ErrCannotSign
}

// Verify reports whether sig is k's signature over digest. Malformed signatures
// verify as false; only a malformed public key is an error.
func (k PublicKey) Verify(digest, sig []byte) (bool, error) {
	if !k.Type.CanSign() {
		return false, fmt.Errorf("%w: %s", ErrCannotSign, k.Type)
	}
	if err := k.validate(); err != nil {
		return false, err
	}
	switch k.Type {
	case Ed25519:
		if len(sig) != ed25519.SignatureSize {
			return false, nil
		}
		return ed25519.Verify(ed25519.PublicKey(k.Raw), digest, sig), nil
	case Secp256k1:
		pk, err := btcec.ParsePubKey(k.Raw)
		if err != nil {
			return false, ErrMalformedKey
		}
		s, err := ecdsa.ParseDERSignature(sig)
		if err != nil {
			return false, nil
		}
		return s.Verify(digest, pk), nil
	case MLDSA65:
		var pk mldsa65.PublicKey
		if err := pk.UnmarshalBinary(k.Raw); err != nil {
			return false, ErrMalformedKey
		}
		return mldsa65.Verify(&pk, digest, nil, sig), nil
	}
	return false, ErrCannotSign
}
