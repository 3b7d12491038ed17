package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/TheusHen/hush/hush/crypto"
	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/keyring"
	"github.com/TheusHen/hush/hush/keys"
	"github.com/TheusHen/hush/hush/protocol"
)

var (
	ErrNotIdle          = errors.New("stream: cipher is not idle, call Reset")
	ErrAmbiguousMode    = errors.New("stream: set exactly one of recipient id or password")
	ErrMissingFinal     = errors.New("stream: stream ended before the final chunk")
	ErrTrailingData     = errors.New("stream: data after the final chunk")
	ErrChunkSizeInvalid = errors.New("stream: header chunk size out of range")
)

// flusher is implemented by buffered writers that should be drained after each
// chunk.
type flusher interface {
	Flush() error
}

// DecryptOptions selects the decryption mode. Exactly one of RecipientID or
// Password must be set. ContentInfo supplies a detached header; when nil the
// header is read from the source (or taken from SetContentInfo).
type DecryptOptions struct {
	RecipientID []byte
	PrivateKey  []byte
	KeyPassword []byte
	Password    []byte
	ContentInfo []byte
}

// Cipher encrypts or decrypts one stream. A Cipher is single-use: after an
// operation reaches a terminal state, Reset it before the next one. It is not
// safe for concurrent use.
type Cipher struct {
	cfg     settings
	keyring *keyring.Keyring
	params  map[string][]byte

	info     *protocol.ContentInfo
	rawInfo  []byte
	detached bool
	state    State

	log *zap.Logger
}

// NewCipher validates cfg and returns an idle Cipher.
func NewCipher(cfg Config, opts ...Option) (*Cipher, error) {
	s, err := cfg.resolve()
	if err != nil {
		return nil, err
	}
	c := &Cipher{
		cfg:    s,
		params: map[string][]byte{},
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.keyring = keyring.New(
		keyring.WithLogger(c.log),
		keyring.WithPasswordKDF(s.kdfHash, s.iterations),
	)
	return c, nil
}

// State returns the current lifecycle state.
func (c *Cipher) State() State { return c.state }

// ChunkSize returns the configured plaintext chunk size.
func (c *Cipher) ChunkSize() int { return c.cfg.chunkSize }

// AddKeyRecipient adds a recipient with an encoded public key.
func (c *Cipher) AddKeyRecipient(id, publicKey []byte) error {
	if c.state != StateIdle {
		return errdefs.New(errdefs.ErrConfiguration, "stream.AddKeyRecipient", ErrNotIdle)
	}
	return c.keyring.AddKeyRecipient(id, publicKey)
}

// AddPublicKeyRecipient adds a recipient with a parsed public key.
func (c *Cipher) AddPublicKeyRecipient(id []byte, pub keys.PublicKey) error {
	if c.state != StateIdle {
		return errdefs.New(errdefs.ErrConfiguration, "stream.AddKeyRecipient", ErrNotIdle)
	}
	return c.keyring.AddPublicKey(id, pub)
}

// AddPasswordRecipient adds a password recipient.
func (c *Cipher) AddPasswordRecipient(password []byte) error {
	if c.state != StateIdle {
		return errdefs.New(errdefs.ErrConfiguration, "stream.AddPasswordRecipient", ErrNotIdle)
	}
	return c.keyring.AddPasswordRecipient(password)
}

// SetCustomParam stores an application value in the header of the next
// encryption.
func (c *Cipher) SetCustomParam(key string, value []byte) error {
	const op = "stream.SetCustomParam"
	if c.state != StateIdle {
		return errdefs.New(errdefs.ErrConfiguration, op, ErrNotIdle)
	}
	if key == "" {
		return errdefs.Errorf(errdefs.ErrConfiguration, op, "empty parameter key")
	}
	c.params[key] = bytes.Clone(value)
	return nil
}

// CustomParam returns a custom header value: from the current header if one
// was produced, parsed or set, otherwise from the pending parameters.
func (c *Cipher) CustomParam(key string) ([]byte, bool) {
	if c.info != nil {
		return c.info.Param(key)
	}
	v, ok := c.params[key]
	return bytes.Clone(v), ok
}

// ContentInfo returns a copy of the current header, or nil before one exists.
func (c *Cipher) ContentInfo() *protocol.ContentInfo {
	if c.info == nil {
		return nil
	}
	return c.info.Clone()
}

// MarshalContentInfo returns the encoding of the current header, suitable for
// detached transmission and SetContentInfo.
func (c *Cipher) MarshalContentInfo() ([]byte, error) {
	if c.rawInfo == nil {
		return nil, errdefs.Errorf(errdefs.ErrConfiguration, "stream.MarshalContentInfo", "no content info yet")
	}
	return bytes.Clone(c.rawInfo), nil
}

// SetContentInfo supplies a detached header for the next decryption.
func (c *Cipher) SetContentInfo(data []byte) error {
	if c.state != StateIdle {
		return errdefs.New(errdefs.ErrConfiguration, "stream.SetContentInfo", ErrNotIdle)
	}
	ci, err := protocol.ParseContentInfo(data)
	if err != nil {
		return err
	}
	c.info = ci
	c.rawInfo = bytes.Clone(data)
	c.detached = true
	return nil
}

// Reset returns the cipher to Idle. Recipients and custom parameters are kept;
// the header and state are cleared.
func (c *Cipher) Reset() {
	c.info = nil
	c.rawInfo = nil
	c.detached = false
	c.state = StateIdle
}

func (c *Cipher) fail(err error) error {
	c.state = StateFailed
	c.log.Debug("stream failed", zap.Error(err))
	return err
}

// Encrypt reads plaintext from src and writes the encrypted stream to dst.
// With embedHeader the encoded ContentInfo precedes the body; otherwise only
// the body is written and the header must travel separately. The returned
// ContentInfo is a copy of the header.
func (c *Cipher) Encrypt(src io.Reader, dst io.Writer, embedHeader bool) (*protocol.ContentInfo, error) {
	const op = "stream.Encrypt"
	if c.state != StateIdle || c.detached {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrNotIdle)
	}
	if err := c.keyring.Validate(); err != nil {
		return nil, c.fail(err)
	}

	cek, err := crypto.RandomBytes(crypto.KeySize)
	if err != nil {
		return nil, c.fail(errdefs.New(errdefs.ErrKeyWrap, op, err))
	}
	nonce, err := crypto.RandomBytes(crypto.NonceSize)
	if err != nil {
		return nil, c.fail(errdefs.New(errdefs.ErrKeyWrap, op, err))
	}
	recipients, err := c.keyring.Wrap(cek)
	if err != nil {
		return nil, c.fail(err)
	}

	ci := &protocol.ContentInfo{
		Version:    protocol.ContentInfoVersion,
		Cipher:     c.cfg.alg,
		ChunkSize:  uint32(c.cfg.chunkSize),
		Nonce:      nonce,
		Recipients: recipients,
	}
	if c.cfg.compression {
		ci.Compression = protocol.CompressionLZ4
	}
	if len(c.params) > 0 {
		ci.Params = make(map[string][]byte, len(c.params))
		for k, v := range c.params {
			ci.Params[k] = bytes.Clone(v)
		}
	}
	raw, err := ci.MarshalBinary()
	if err != nil {
		return nil, c.fail(err)
	}
	c.info, c.rawInfo = ci, raw

	if embedHeader {
		if _, err := dst.Write(raw); err != nil {
			return nil, c.fail(errdefs.New(errdefs.ErrStreamIO, op, err))
		}
	}
	c.state = StateHeaderWritten
	c.log.Debug("header ready",
		zap.Bool("embedded", embedHeader),
		zap.Int("recipients", len(recipients)),
		zap.Stringer("cipher", c.cfg.alg),
		zap.Int("chunk_size", c.cfg.chunkSize))

	sealer, err := crypto.NewStreamAEAD(c.cfg.alg, cek, nonce)
	if err != nil {
		return nil, c.fail(errdefs.New(errdefs.ErrConfiguration, op, err))
	}
	if err := c.sealBody(src, dst, sealer, protocol.HeaderDigest(raw)); err != nil {
		return nil, c.fail(err)
	}

	c.state = StateSucceeded
	c.log.Debug("encrypted", zap.Uint64("chunks", sealer.Chunks()))
	return ci.Clone(), nil
}

func (c *Cipher) sealBody(src io.Reader, dst io.Writer, sealer *crypto.StreamAEAD, aad []byte) error {
	const op = "stream.Encrypt"
	c.state = StateBodyStreaming

	in := poolFor(c.cfg.chunkSize)
	inBuf := in.Get()
	defer in.Put(inBuf)
	out := poolFor(c.maxSealed())
	outBuf := out.Get()
	defer out.Put(outBuf)

	var packed []byte
	if c.cfg.compression {
		packed = make([]byte, 0, c.cfg.chunkSize+1)
	}

	chunks := newChunkReader(src, (*inBuf)[:c.cfg.chunkSize])
	fl, _ := dst.(flusher)
	for {
		chunk, last, err := chunks.next()
		if err != nil {
			return errdefs.New(errdefs.ErrStreamIO, op, err)
		}
		if c.cfg.compression {
			packed = packChunk(packed[:0], chunk)
			chunk = packed
		}
		sealed, err := sealer.SealChunk((*outBuf)[:0], chunk, aad, last)
		if err != nil {
			return errdefs.New(errdefs.ErrStreamIO, op, err)
		}
		if err := writeRecord(dst, sealed, last); err != nil {
			return errdefs.New(errdefs.ErrStreamIO, op, err)
		}
		if fl != nil {
			if err := fl.Flush(); err != nil {
				return errdefs.New(errdefs.ErrStreamIO, op, err)
			}
		}
		if last {
			return nil
		}
	}
}

// maxSealed is the largest sealed chunk for the configured chunk size.
func (c *Cipher) maxSealed() int {
	return sealedLimit(c.cfg.chunkSize, c.cfg.compression)
}

func sealedLimit(chunkSize int, compression bool) int {
	n := chunkSize + crypto.TagSize
	if compression {
		n++
	}
	return n
}

// DecryptWithKey decrypts src for the key recipient identified by recipientID.
func (c *Cipher) DecryptWithKey(src io.Reader, dst io.Writer, recipientID, privateKey, keyPassword []byte) error {
	return c.Decrypt(src, dst, DecryptOptions{
		RecipientID: recipientID,
		PrivateKey:  privateKey,
		KeyPassword: keyPassword,
	})
}

// DecryptWithPassword decrypts src for a password recipient.
func (c *Cipher) DecryptWithPassword(src io.Reader, dst io.Writer, password []byte) error {
	return c.Decrypt(src, dst, DecryptOptions{Password: password})
}

// Decrypt verifies and decrypts src into dst. Each chunk is authenticated
// before any of its plaintext is written; on failure dst may hold the
// plaintext of the chunks that verified before it and must be discarded.
func (c *Cipher) Decrypt(src io.Reader, dst io.Writer, opts DecryptOptions) error {
	const op = "stream.Decrypt"
	if c.state != StateIdle {
		return errdefs.New(errdefs.ErrConfiguration, op, ErrNotIdle)
	}
	keyMode := len(opts.RecipientID) > 0
	passwordMode := len(opts.Password) > 0
	if keyMode == passwordMode {
		return errdefs.New(errdefs.ErrConfiguration, op, ErrAmbiguousMode)
	}

	switch {
	case opts.ContentInfo != nil:
		ci, err := protocol.ParseContentInfo(opts.ContentInfo)
		if err != nil {
			return c.fail(err)
		}
		c.info, c.rawInfo = ci, bytes.Clone(opts.ContentInfo)
	case c.detached:
		// header supplied through SetContentInfo
	default:
		ci, raw, err := protocol.ReadContentInfo(src)
		if err != nil {
			return c.fail(err)
		}
		c.info, c.rawInfo = ci, raw
	}
	c.state = StateHeaderParsed

	ci := c.info
	if ci.ChunkSize < MinChunkSize || ci.ChunkSize > MaxChunkSize {
		return c.fail(errdefs.New(errdefs.ErrHeaderParse, op, fmt.Errorf("%w: %d", ErrChunkSizeInvalid, ci.ChunkSize)))
	}

	var (
		cek []byte
		err error
	)
	if keyMode {
		cek, err = keyring.UnwrapWithKey(ci, opts.RecipientID, opts.PrivateKey, opts.KeyPassword)
	} else {
		cek, err = keyring.UnwrapWithPassword(ci, opts.Password)
	}
	if err != nil {
		return c.fail(err)
	}

	opener, err := crypto.NewStreamAEAD(ci.Cipher, cek, ci.Nonce)
	if err != nil {
		return c.fail(errdefs.New(errdefs.ErrHeaderParse, op, err))
	}
	if err := c.openBody(src, dst, opener, protocol.HeaderDigest(c.rawInfo)); err != nil {
		return c.fail(err)
	}

	c.state = StateSucceeded
	c.log.Debug("decrypted", zap.Uint64("chunks", opener.Chunks()), zap.Bool("detached", c.detached || opts.ContentInfo != nil))
	return nil
}

func (c *Cipher) openBody(src io.Reader, dst io.Writer, opener *crypto.StreamAEAD, aad []byte) error {
	const op = "stream.Decrypt"
	c.state = StateBodyStreaming

	chunkSize := int(c.info.ChunkSize)
	compression := c.info.Compression == protocol.CompressionLZ4
	limit := sealedLimit(chunkSize, compression)

	in := poolFor(limit)
	inBuf := in.Get()
	defer in.Put(inBuf)
	out := poolFor(limit)
	outBuf := out.Get()
	defer out.Put(outBuf)

	fl, _ := dst.(flusher)
	for {
		sealed, last, err := readRecord(src, *inBuf, limit)
		switch {
		case err == io.EOF:
			return errdefs.New(errdefs.ErrAuthentication, op, ErrMissingFinal)
		case errors.Is(err, errShortRecord):
			return errdefs.New(errdefs.ErrAuthentication, op, err)
		case err != nil:
			return errdefs.New(errdefs.ErrStreamIO, op, err)
		}

		plain, err := opener.OpenChunk((*outBuf)[:0], sealed, aad, last)
		if err != nil {
			return errdefs.New(errdefs.ErrAuthentication, op, fmt.Errorf("chunk %d: %w", opener.Chunks(), err))
		}
		if compression {
			if plain, err = unpackChunk(plain, chunkSize); err != nil {
				return errdefs.New(errdefs.ErrAuthentication, op, err)
			}
		}
		if len(plain) > chunkSize {
			return errdefs.New(errdefs.ErrAuthentication, op, ErrChunkSizeInvalid)
		}
		if _, err := dst.Write(plain); err != nil {
			return errdefs.New(errdefs.ErrStreamIO, op, err)
		}
		if fl != nil {
			if err := fl.Flush(); err != nil {
				return errdefs.New(errdefs.ErrStreamIO, op, err)
			}
		}
		if last {
			return checkDrained(src)
		}
	}
}

// checkDrained fails if src holds anything after the final chunk.
func checkDrained(src io.Reader) error {
	const op = "stream.Decrypt"
	var probe [1]byte
	for {
		n, err := src.Read(probe[:])
		if n > 0 {
			return errdefs.New(errdefs.ErrAuthentication, op, ErrTrailingData)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errdefs.New(errdefs.ErrStreamIO, op, err)
		}
	}
}
