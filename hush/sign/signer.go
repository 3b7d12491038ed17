// Package sign produces and checks detached signatures over streams.
//
// The stream is hashed in chunks with the configured digest and the digest is
// signed with the algorithm implied by the key type.
package sign

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/TheusHen/hush/hush/crypto"
	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/keys"
	"github.com/TheusHen/hush/hush/logging"
)

// DefaultHash is used when NewSigner is given an empty name.
const DefaultHash = crypto.SHA384

const readChunk = 64 << 10

var ErrHashMismatch = errors.New("sign: signature was made with a different digest")

var bufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, readChunk)
		return &b
	},
}

type Option func(*Signer)

func WithLogger(l *zap.Logger) Option {
	return func(s *Signer) { s.log = logging.Named(l, "sign") }
}

// Signer hashes streams with one digest. It holds no per-call state and is
// safe for concurrent use.
type Signer struct {
	hash crypto.Hash
	log  *zap.Logger
}

// NewSigner returns a Signer for the named digest: md5, sha-256, sha-384 or
// sha-512. The empty name selects sha-384.
func NewSigner(hashName string, opts ...Option) (*Signer, error) {
	h, err := crypto.ParseHash(hashName)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, "sign.NewSigner", err)
	}
	s := &Signer{hash: h, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Hash returns the configured digest.
func (s *Signer) Hash() crypto.Hash { return s.hash }

// Digest hashes src to EOF.
func (s *Signer) Digest(src io.Reader) ([]byte, error) {
	h := s.hash.New()
	buf := bufPool.Get().(*[]byte)
	defer bufPool.Put(buf)
	if _, err := io.CopyBuffer(h, onlyReader{src}, *buf); err != nil {
		return nil, errdefs.New(errdefs.ErrStreamIO, "sign.Digest", err)
	}
	return h.Sum(nil), nil
}

// Sign hashes src and signs the digest with the private key blob, decrypting
// it with keyPassword when it is protected.
func (s *Signer) Sign(src io.Reader, privateKey, keyPassword []byte) (*Signature, error) {
	const op = "sign.Sign"
	priv, err := keys.ParsePrivateKey(privateKey, keyPassword)
	if err != nil {
		return nil, err
	}
	if !priv.Type.CanSign() {
		return nil, errdefs.New(errdefs.ErrSigning, op, fmt.Errorf("%w: %s", keys.ErrCannotSign, priv.Type))
	}
	pub, err := priv.Public()
	if err != nil {
		return nil, errdefs.New(errdefs.ErrKeyDecode, op, err)
	}

	digest, err := s.Digest(src)
	if err != nil {
		return nil, err
	}
	raw, err := priv.Sign(digest)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrSigning, op, err)
	}
	s.log.Debug("signed",
		zap.Stringer("hash", s.hash),
		zap.Stringer("key_type", priv.Type),
		zap.Stringer("key_id", pub.ID()))
	return &Signature{Hash: s.hash, KeyType: priv.Type, KeyID: pub.ID(), Raw: raw}, nil
}

// Verify reports whether sig is a valid signature over src by the public key
// blob. The whole stream is consumed before anything else is checked. A
// signature that does not match, or was made with another digest or key type,
// verifies as false without error; an unreadable stream or key is an error.
func (s *Signer) Verify(sig *Signature, src io.Reader, publicKey []byte) (bool, error) {
	const op = "sign.Verify"
	digest, err := s.Digest(src)
	if err != nil {
		return false, err
	}
	pub, err := keys.ParsePublicKey(publicKey)
	if err != nil {
		return false, err
	}
	if !pub.Type.CanSign() {
		return false, errdefs.New(errdefs.ErrKeyDecode, op, fmt.Errorf("%w: %s", keys.ErrCannotSign, pub.Type))
	}
	if sig == nil {
		return false, nil
	}
	if sig.Hash != s.hash {
		s.log.Debug("digest mismatch", zap.Stringer("want", s.hash), zap.Stringer("got", sig.Hash))
		return false, nil
	}
	if sig.KeyType != pub.Type {
		s.log.Debug("key type mismatch", zap.Stringer("want", pub.Type), zap.Stringer("got", sig.KeyType))
		return false, nil
	}
	ok, err := pub.Verify(digest, sig.Raw)
	if err != nil {
		return false, errdefs.New(errdefs.ErrKeyDecode, op, err)
	}
	return ok, nil
}

// VerifyBytes is Verify for an encoded signature. A signature that does not
// parse is an error, reported after src has been consumed.
func (s *Signer) VerifyBytes(sig []byte, src io.Reader, publicKey []byte) (bool, error) {
	parsed, perr := ParseSignature(sig)
	if perr != nil {
		if _, err := s.Digest(src); err != nil {
			return false, err
		}
		return false, perr
	}
	return s.Verify(parsed, src, publicKey)
}

// onlyReader hides WriterTo so CopyBuffer always uses the pooled buffer.
type onlyReader struct{ io.Reader }
