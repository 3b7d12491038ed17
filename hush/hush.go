package hush

import (
	"bytes"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/logging"
	"github.com/TheusHen/hush/hush/protocol"
	"github.com/TheusHen/hush/hush/sign"
	"github.com/TheusHen/hush/hush/stream"
)

// ContentInfo parameters written by SignThenEncrypt.
const (
	ParamSignature = "hush-data-signature"
	ParamSignerID  = "hush-data-signer-id"
)

var (
	ErrSignerNotFound   = errors.New("hush: signer not found")
	ErrSignatureMissing = errors.New("hush: content is not signed")
	ErrInvalidSignature = errors.New("hush: signature does not verify")
)

// Recipient is a key recipient: an application chosen id and an encoded
// public key.
type Recipient struct {
	ID        []byte
	PublicKey []byte
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = logging.OrNop(l) }
}

// Engine runs stream encryption, signing and session agreement with one
// configuration. It is safe for concurrent use; every call works on its own
// cipher instance.
type Engine struct {
	cfg    Config
	signer *sign.Signer
	log    *zap.Logger
}

// New validates cfg and returns an Engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	signer, err := sign.NewSigner(cfg.Signing.Hash, sign.WithLogger(e.log))
	if err != nil {
		return nil, err
	}
	e.signer = signer
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) newCipher() (*stream.Cipher, error) {
	return stream.NewCipher(e.cfg.Stream, stream.WithLogger(e.log))
}

// EncryptStream encrypts src for the key recipients. With embedHeader the
// header precedes the body in dst; otherwise send the returned header
// (MarshalBinary) separately.
func (e *Engine) EncryptStream(src io.Reader, dst io.Writer, recipients []Recipient, embedHeader bool) (*protocol.ContentInfo, error) {
	return e.encrypt(src, dst, recipients, nil, nil, embedHeader)
}

// EncryptStreamWithPassword encrypts src for a password.
func (e *Engine) EncryptStreamWithPassword(src io.Reader, dst io.Writer, password []byte, embedHeader bool) (*protocol.ContentInfo, error) {
	return e.encrypt(src, dst, nil, password, nil, embedHeader)
}

func (e *Engine) encrypt(src io.Reader, dst io.Writer, recipients []Recipient, password []byte, params map[string][]byte, embed bool) (*protocol.ContentInfo, error) {
	c, err := e.newCipher()
	if err != nil {
		return nil, err
	}
	for _, r := range recipients {
		if err := c.AddKeyRecipient(r.ID, r.PublicKey); err != nil {
			return nil, err
		}
	}
	if len(password) > 0 {
		if err := c.AddPasswordRecipient(password); err != nil {
			return nil, err
		}
	}
	for k, v := range params {
		if err := c.SetCustomParam(k, v); err != nil {
			return nil, err
		}
	}
	return c.Encrypt(src, dst, embed)
}

// DecryptStream decrypts src for the key recipient id. contentInfo is the
// detached header, or nil when it is embedded in src.
func (e *Engine) DecryptStream(src io.Reader, dst io.Writer, id, privateKey, keyPassword, contentInfo []byte) error {
	_, err := e.decrypt(src, dst, stream.DecryptOptions{
		RecipientID: id,
		PrivateKey:  privateKey,
		KeyPassword: keyPassword,
		ContentInfo: contentInfo,
	})
	return err
}

// DecryptStreamWithPassword decrypts src for a password recipient.
func (e *Engine) DecryptStreamWithPassword(src io.Reader, dst io.Writer, password, contentInfo []byte) error {
	_, err := e.decrypt(src, dst, stream.DecryptOptions{Password: password, ContentInfo: contentInfo})
	return err
}

func (e *Engine) decrypt(src io.Reader, dst io.Writer, opts stream.DecryptOptions) (*protocol.ContentInfo, error) {
	c, err := e.newCipher()
	if err != nil {
		return nil, err
	}
	if err := c.Decrypt(src, dst, opts); err != nil {
		return nil, err
	}
	return c.ContentInfo(), nil
}

// SignStream signs src and returns the encoded signature.
func (e *Engine) SignStream(src io.Reader, privateKey, keyPassword []byte) ([]byte, error) {
	sig, err := e.signer.Sign(src, privateKey, keyPassword)
	if err != nil {
		return nil, err
	}
	return sig.Marshal()
}

// VerifyStream checks an encoded signature over src. The whole stream is
// read whatever the outcome.
func (e *Engine) VerifyStream(signature []byte, src io.Reader, publicKey []byte) (bool, error) {
	return e.signer.VerifyBytes(signature, src, publicKey)
}

// SignThenEncrypt signs data and encrypts it for the recipients. The
// signature and signerID travel inside the encrypted header's parameters.
func (e *Engine) SignThenEncrypt(data, signerKey, signerKeyPassword, signerID []byte, recipients []Recipient) ([]byte, error) {
	const op = "hush.SignThenEncrypt"
	if len(signerID) == 0 {
		return nil, errdefs.Errorf(errdefs.ErrConfiguration, op, "empty signer id")
	}
	sig, err := e.SignStream(bytes.NewReader(data), signerKey, signerKeyPassword)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	params := map[string][]byte{ParamSignature: sig, ParamSignerID: signerID}
	if _, err := e.encrypt(bytes.NewReader(data), &out, recipients, nil, params, true); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// DecryptThenVerify decrypts data produced by SignThenEncrypt and verifies
// its signature against the signer's public key found in signers under the
// embedded signer id. Plaintext is only returned when the signature holds.
func (e *Engine) DecryptThenVerify(data, id, privateKey, keyPassword []byte, signers map[string][]byte) ([]byte, error) {
	const op = "hush.DecryptThenVerify"
	var plain bytes.Buffer
	ci, err := e.decrypt(bytes.NewReader(data), &plain, stream.DecryptOptions{
		RecipientID: id,
		PrivateKey:  privateKey,
		KeyPassword: keyPassword,
	})
	if err != nil {
		return nil, err
	}
	sig, okSig := ci.Param(ParamSignature)
	signerID, okID := ci.Param(ParamSignerID)
	if !okSig || !okID {
		return nil, errdefs.New(errdefs.ErrSigning, op, ErrSignatureMissing)
	}
	pub, ok := signers[string(signerID)]
	if !ok {
		return nil, errdefs.New(errdefs.ErrRecipientNotFound, op, ErrSignerNotFound)
	}
	valid, err := e.VerifyStream(sig, bytes.NewReader(plain.Bytes()), pub)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, errdefs.New(errdefs.ErrAuthentication, op, ErrInvalidSignature)
	}
	e.log.Debug("signed content verified", logging.ID("signer", signerID))
	return plain.Bytes(), nil
}
