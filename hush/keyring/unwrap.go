package keyring

import (
	"fmt"

	"github.com/TheusHen/hush/hush/crypto"
	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/keys"
	"github.com/TheusHen/hush/hush/protocol"
)

// UnwrapWithKey recovers the content key for the recipient identified by id
// using an encoded private key, decrypted with keyPassword when protected.
//
// An absent id is RecipientNotFound, an unreadable private key is KeyDecode,
// and a key that does not open the wrapped CEK is an authentication failure.
func UnwrapWithKey(ci *protocol.ContentInfo, id, privateKey, keyPassword []byte) ([]byte, error) {
	const op = "keyring.UnwrapWithKey"
	entry, ok := ci.KeyRecipient(id)
	if !ok {
		return nil, errdefs.Errorf(errdefs.ErrRecipientNotFound, op, "no recipient %x", id)
	}
	priv, err := keys.ParsePrivateKey(privateKey, keyPassword)
	if err != nil {
		return nil, err
	}
	return UnwrapWithPrivateKey(entry, priv)
}

// UnwrapWithPrivateKey recovers the content key from a single key recipient
// entry with an already parsed private key.
func UnwrapWithPrivateKey(entry *protocol.KeyRecipient, priv keys.PrivateKey) ([]byte, error) {
	const op = "keyring.UnwrapWithKey"
	if priv.Type != entry.KeyType {
		return nil, errdefs.New(errdefs.ErrAuthentication, op,
			fmt.Errorf("%w: recipient is %s, key is %s", ErrKeyMismatch, entry.KeyType, priv.Type))
	}
	pub, err := priv.Public()
	if err != nil {
		return nil, errdefs.New(errdefs.ErrKeyDecode, op, err)
	}

	var secret []byte
	switch entry.KeyType {
	case keys.X25519:
		secret, err = crypto.ECDH(priv.Raw, entry.Encapsulation)
	case keys.Secp256k1:
		secret, err = crypto.ECDHSecp256k1(priv.Raw, entry.Encapsulation)
	case keys.MLKEM768:
		secret, err = crypto.Decapsulate(priv.Raw, entry.Encapsulation)
	default:
		return nil, errdefs.New(errdefs.ErrHeaderParse, op, fmt.Errorf("%w: %s", ErrCannotEncrypt, entry.KeyType))
	}
	if err != nil {
		// A malformed encapsulation cannot have been produced for this key.
		return nil, errdefs.New(errdefs.ErrAuthentication, op, err)
	}

	kek, err := crypto.DeriveWrapKey(secret, entry.KeyType.String(), entry.Encapsulation, pub.Raw)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrKeyWrap, op, err)
	}
	cek, err := crypto.Open(kek, entry.WrappedKey, entry.ID)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrAuthentication, op, ErrKeyMismatch)
	}
	return cek, nil
}

// UnwrapWithPassword tries each password recipient in header order and returns
// the first content key that authenticates.
func UnwrapWithPassword(ci *protocol.ContentInfo, password []byte) ([]byte, error) {
	const op = "keyring.UnwrapWithPassword"
	if len(password) == 0 {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrEmptyPassword)
	}
	entries := ci.PasswordRecipients()
	if len(entries) == 0 {
		return nil, errdefs.Errorf(errdefs.ErrRecipientNotFound, op, "no password recipient")
	}
	for _, e := range entries {
		if e.Iterations == 0 || e.Iterations > MaxIterations {
			return nil, errdefs.Errorf(errdefs.ErrHeaderParse, op, "PBKDF2 iterations %d out of range", e.Iterations)
		}
		kek, err := crypto.PasswordKey(password, e.Salt, int(e.Iterations), e.Hash)
		if err != nil {
			return nil, errdefs.New(errdefs.ErrHeaderParse, op, err)
		}
		if cek, err := crypto.Open(kek, e.WrappedKey, e.Salt); err == nil {
			return cek, nil
		}
	}
	return nil, errdefs.Errorf(errdefs.ErrAuthentication, op, "wrong password")
}
