// Package keyring wraps a content encryption key (CEK) for every recipient of
// an encrypted stream and recovers it on the receiving side.
//
// Key recipients get the CEK sealed under a key-encryption key derived from an
// ephemeral agreement (X25519, secp256k1) or an ML-KEM-768 encapsulation.
// Password recipients get it sealed under a PBKDF2-derived key. The wrapped
// CEK is always sealed with ChaCha20-Poly1305 and bound to the recipient id.
package keyring

import (
	"bytes"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/TheusHen/hush/hush/crypto"
	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/keys"
	"github.com/TheusHen/hush/hush/logging"
	"github.com/TheusHen/hush/hush/protocol"
)

const (
	// DefaultIterations is the PBKDF2 iteration count for password recipients.
	DefaultIterations = 100_000
	// MinIterations is the lowest accepted iteration count when wrapping.
	MinIterations = 10_000
	// MaxIterations caps the count accepted from a header.
	MaxIterations = 10_000_000
	// DefaultHash is the PBKDF2 hash for password recipients.
	DefaultHash = crypto.SHA384

	saltSize = 16
)

var (
	ErrEmptyRecipientID   = errors.New("keyring: empty recipient id")
	ErrEmptyPassword      = errors.New("keyring: empty password")
	ErrDuplicateRecipient = errors.New("keyring: duplicate recipient id")
	ErrCannotEncrypt      = errors.New("keyring: key type cannot receive encrypted content")
	ErrNoRecipients       = errors.New("keyring: no recipients")
	ErrKeyMismatch        = errors.New("keyring: private key does not match recipient")
)

type recipient struct {
	id       []byte
	pub      keys.PublicKey
	password []byte
}

// Keyring collects the recipients of one encryption. It is not safe for
// concurrent use.
type Keyring struct {
	recipients []recipient
	hash       crypto.Hash
	iterations int
	log        *zap.Logger
}

type Option func(*Keyring)

func WithLogger(l *zap.Logger) Option {
	return func(k *Keyring) { k.log = logging.Named(l, "keyring") }
}

// WithPasswordKDF overrides the PBKDF2 hash and iteration count used for
// password recipients.
func WithPasswordKDF(h crypto.Hash, iterations int) Option {
	return func(k *Keyring) {
		k.hash = h
		k.iterations = iterations
	}
}

// New returns an empty keyring.
func New(opts ...Option) *Keyring {
	k := &Keyring{
		hash:       DefaultHash,
		iterations: DefaultIterations,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(k)
	}
	return k
}

// AddKeyRecipient adds a recipient identified by id with an encoded public key.
func (k *Keyring) AddKeyRecipient(id, publicKey []byte) error {
	pub, err := keys.ParsePublicKey(publicKey)
	if err != nil {
		return err
	}
	return k.AddPublicKey(id, pub)
}

// AddPublicKey adds a recipient identified by id with a parsed public key.
func (k *Keyring) AddPublicKey(id []byte, pub keys.PublicKey) error {
	const op = "keyring.AddKeyRecipient"
	if len(id) == 0 {
		return errdefs.New(errdefs.ErrConfiguration, op, ErrEmptyRecipientID)
	}
	if !pub.Type.CanEncrypt() {
		return errdefs.New(errdefs.ErrConfiguration, op, fmt.Errorf("%w: %s", ErrCannotEncrypt, pub.Type))
	}
	for _, r := range k.recipients {
		if r.id != nil && bytes.Equal(r.id, id) {
			return errdefs.New(errdefs.ErrConfiguration, op, fmt.Errorf("%w: %x", ErrDuplicateRecipient, id))
		}
	}
	k.recipients = append(k.recipients, recipient{id: bytes.Clone(id), pub: pub})
	k.log.Debug("key recipient added", logging.ID("recipient", id), zap.Stringer("type", pub.Type))
	return nil
}

// AddPasswordRecipient adds a password recipient.
func (k *Keyring) AddPasswordRecipient(password []byte) error {
	if len(password) == 0 {
		return errdefs.New(errdefs.ErrConfiguration, "keyring.AddPasswordRecipient", ErrEmptyPassword)
	}
	k.recipients = append(k.recipients, recipient{password: bytes.Clone(password)})
	k.log.Debug("password recipient added", logging.Redacted("password"))
	return nil
}

// Len returns the number of recipients.
func (k *Keyring) Len() int { return len(k.recipients) }

// Validate checks the keyring can wrap: at least one recipient and sane KDF
// parameters.
func (k *Keyring) Validate() error {
	const op = "keyring.Validate"
	if len(k.recipients) == 0 {
		return errdefs.New(errdefs.ErrConfiguration, op, ErrNoRecipients)
	}
	if !k.hash.Valid() || k.hash == crypto.MD5 {
		return errdefs.Errorf(errdefs.ErrConfiguration, op, "hash %s not allowed for PBKDF2", k.hash)
	}
	if k.iterations < MinIterations || k.iterations > MaxIterations {
		return errdefs.Errorf(errdefs.ErrConfiguration, op, "PBKDF2 iterations %d outside [%d, %d]", k.iterations, MinIterations, MaxIterations)
	}
	return nil
}

// Wrap seals cek for every recipient, in the order they were added.
func (k *Keyring) Wrap(cek []byte) ([]protocol.RecipientInfo, error) {
	const op = "keyring.Wrap"
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if len(cek) != crypto.KeySize {
		return nil, errdefs.Errorf(errdefs.ErrKeyWrap, op, "content key must be %d bytes", crypto.KeySize)
	}

	out := make([]protocol.RecipientInfo, 0, len(k.recipients))
	for _, r := range k.recipients {
		var (
			info protocol.RecipientInfo
			err  error
		)
		if r.password != nil {
			info, err = k.wrapPassword(cek, r.password)
		} else {
			info, err = wrapKey(cek, r.id, r.pub)
		}
		if err != nil {
			return nil, errdefs.New(errdefs.ErrKeyWrap, op, err)
		}
		out = append(out, info)
	}
	k.log.Debug("content key wrapped", zap.Int("recipients", len(out)))
	return out, nil
}

func (k *Keyring) wrapPassword(cek, password []byte) (*protocol.PasswordRecipient, error) {
	salt, err := crypto.RandomBytes(saltSize)
	if err != nil {
		return nil, err
	}
	kek, err := crypto.PasswordKey(password, salt, k.iterations, k.hash)
	if err != nil {
		return nil, err
	}
	wrapped, err := crypto.Seal(kek, cek, salt)
	if err != nil {
		return nil, err
	}
	return &protocol.PasswordRecipient{
		Hash:       k.hash,
		Salt:       salt,
		Iterations: uint32(k.iterations),
		WrappedKey: wrapped,
	}, nil
}

func wrapKey(cek, id []byte, pub keys.PublicKey) (*protocol.KeyRecipient, error) {
	var (
		secret, encap []byte
		err           error
	)
	switch pub.Type {
	case keys.X25519:
		var eph crypto.X25519KeyPair
		if eph, err = crypto.GenerateX25519(); err != nil {
			return nil, err
		}
		encap = eph.PublicKey[:]
		secret, err = crypto.ECDH(eph.PrivateKey[:], pub.Raw)
	case keys.Secp256k1:
		var ephPriv []byte
		if ephPriv, encap, err = crypto.GenerateSecp256k1(); err != nil {
			return nil, err
		}
		secret, err = crypto.ECDHSecp256k1(ephPriv, pub.Raw)
	case keys.MLKEM768:
		encap, secret, err = crypto.Encapsulate(pub.Raw)
	default:
		return nil, fmt.Errorf("%w: %s", ErrCannotEncrypt, pub.Type)
	}
	if err != nil {
		return nil, err
	}

	kek, err := crypto.DeriveWrapKey(secret, pub.Type.String(), encap, pub.Raw)
	if err != nil {
		return nil, err
	}
	wrapped, err := crypto.Seal(kek, cek, id)
	if err != nil {
		return nil, err
	}
	return &protocol.KeyRecipient{
		ID:            bytes.Clone(id),
		KeyType:       pub.Type,
		Encapsulation: encap,
		WrappedKey:    wrapped,
	}, nil
}
