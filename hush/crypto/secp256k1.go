package crypto

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
)

var ErrInvalidSecp256k1Key = errors.New("crypto: invalid secp256k1 key")

// Secp256k1PrivateKeySize and Secp256k1PublicKeySize are the raw encodings used
// by hush: a 32-byte scalar and a 33-byte compressed point.
const (
	Secp256k1PrivateKeySize = 32
	Secp256k1PublicKeySize  = 33
)

// GenerateSecp256k1 returns a fresh secp256k1 scalar and its compressed point.
func GenerateSecp256k1() (priv, pub []byte, err error) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, err
	}
	return sk.Serialize(), sk.PubKey().SerializeCompressed(), nil
}

// Secp256k1Public returns the compressed public point for a raw scalar.
func Secp256k1Public(priv []byte) ([]byte, error) {
	if len(priv) != Secp256k1PrivateKeySize {
		return nil, ErrInvalidSecp256k1Key
	}
	_, pk := btcec.PrivKeyFromBytes(priv)
	return pk.SerializeCompressed(), nil
}

// ECDHSecp256k1 returns the x coordinate of priv*peer.
func ECDHSecp256k1(priv, peerPublic []byte) ([]byte, error) {
	if len(priv) != Secp256k1PrivateKeySize {
		return nil, ErrInvalidSecp256k1Key
	}
	pk, err := btcec.ParsePubKey(peerPublic)
	if err != nil {
		return nil, ErrInvalidSecp256k1Key
	}
	sk, _ := btcec.PrivKeyFromBytes(priv)
	return btcec.GenerateSharedSecret(sk, pk), nil
}
