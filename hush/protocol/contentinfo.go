package protocol

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/cryptobyte"

	"github.com/TheusHen/hush/hush/crypto"
	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/keys"
)

// ContentInfoVersion is the only header version this package writes and reads.
const ContentInfoVersion = 1

// MaxRecipients bounds the recipient list of a single header.
const MaxRecipients = 4096

// headerPreambleSize is magic (4) + version (1) + body length (4).
const headerPreambleSize = 9

var headerMagic = [4]byte{'H', 'U', 'S', 'H'}

var (
	ErrBadMagic           = errors.New("protocol: not a hush header")
	ErrUnsupportedVersion = errors.New("protocol: unsupported header version")
	ErrTrailingData       = errors.New("protocol: trailing bytes in header")
	ErrDuplicateRecipient = errors.New("protocol: duplicate recipient id")
	ErrTruncated          = errors.New("protocol: truncated header field")
)

// RecipientInfo is one entry of a ContentInfo recipient list. The concrete
// types are *KeyRecipient and *PasswordRecipient.
type RecipientInfo interface {
	Kind() RecipientKind
	marshal(b *cryptobyte.Builder)
	clone() RecipientInfo
}

// KeyRecipient is a content key wrapped to a public key. Encapsulation is the
// ephemeral public key for DH key types or the KEM ciphertext for ML-KEM.
type KeyRecipient struct {
	ID            []byte
	KeyType       keys.Type
	Encapsulation []byte
	WrappedKey    []byte
}

func (*KeyRecipient) Kind() RecipientKind { return RecipientKindKey }

func (r *KeyRecipient) marshal(b *cryptobyte.Builder) {
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(r.ID) })
	b.AddUint8(uint8(r.KeyType))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(r.Encapsulation) })
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(r.WrappedKey) })
}

func (r *KeyRecipient) clone() RecipientInfo {
	return &KeyRecipient{
		ID:            bytes.Clone(r.ID),
		KeyType:       r.KeyType,
		Encapsulation: bytes.Clone(r.Encapsulation),
		WrappedKey:    bytes.Clone(r.WrappedKey),
	}
}

// PasswordRecipient is a content key wrapped under a PBKDF2-derived key.
type PasswordRecipient struct {
	Hash       crypto.Hash
	Salt       []byte
	Iterations uint32
	WrappedKey []byte
}

func (*PasswordRecipient) Kind() RecipientKind { return RecipientKindPassword }

func (r *PasswordRecipient) marshal(b *cryptobyte.Builder) {
	b.AddUint8(uint8(r.Hash))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(r.Salt) })
	b.AddUint32(r.Iterations)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(r.WrappedKey) })
}

func (r *PasswordRecipient) clone() RecipientInfo {
	return &PasswordRecipient{
		Hash:       r.Hash,
		Salt:       bytes.Clone(r.Salt),
		Iterations: r.Iterations,
		WrappedKey: bytes.Clone(r.WrappedKey),
	}
}

// ContentInfo is the header of an encrypted stream: everything a recipient
// needs to recover the content key and decrypt the body, plus optional custom
// parameters. Treat a ContentInfo as immutable once produced; Clone before
// modifying.
type ContentInfo struct {
	Version     uint8
	Cipher      crypto.Algorithm
	ChunkSize   uint32
	Compression Compression
	Nonce       []byte
	Recipients  []RecipientInfo
	Params      map[string][]byte
}

// Clone returns a deep copy of ci.
func (ci *ContentInfo) Clone() *ContentInfo {
	out := *ci
	out.Nonce = bytes.Clone(ci.Nonce)
	out.Recipients = make([]RecipientInfo, len(ci.Recipients))
	for i, r := range ci.Recipients {
		out.Recipients[i] = r.clone()
	}
	if ci.Params != nil {
		out.Params = make(map[string][]byte, len(ci.Params))
		for k, v := range ci.Params {
			out.Params[k] = bytes.Clone(v)
		}
	}
	return &out
}

// KeyRecipient returns the key recipient entry with the given id.
func (ci *ContentInfo) KeyRecipient(id []byte) (*KeyRecipient, bool) {
	for _, r := range ci.Recipients {
		if kr, ok := r.(*KeyRecipient); ok && bytes.Equal(kr.ID, id) {
			return kr, true
		}
	}
	return nil, false
}

// PasswordRecipients returns the password entries in header order.
func (ci *ContentInfo) PasswordRecipients() []*PasswordRecipient {
	var out []*PasswordRecipient
	for _, r := range ci.Recipients {
		if pr, ok := r.(*PasswordRecipient); ok {
			out = append(out, pr)
		}
	}
	return out
}

// Param returns a copy of the custom parameter stored under key.
func (ci *ContentInfo) Param(key string) ([]byte, bool) {
	v, ok := ci.Params[key]
	return bytes.Clone(v), ok
}

// Validate checks structural invariants: known cipher, nonce size, non-empty
// recipient list with unique key ids.
func (ci *ContentInfo) Validate() error {
	if !ci.Cipher.Valid() {
		return crypto.ErrUnknownAlgorithm
	}
	if len(ci.Nonce) != crypto.NonceSize {
		return fmt.Errorf("protocol: nonce must be %d bytes", crypto.NonceSize)
	}
	if ci.ChunkSize == 0 {
		return errors.New("protocol: chunk size must be positive")
	}
	if ci.Compression != CompressionNone && ci.Compression != CompressionLZ4 {
		return fmt.Errorf("protocol: unknown compression %d", ci.Compression)
	}
	if len(ci.Recipients) == 0 {
		return errors.New("protocol: no recipients")
	}
	if len(ci.Recipients) > MaxRecipients {
		return fmt.Errorf("protocol: %d recipients exceeds limit", len(ci.Recipients))
	}
	seen := make(map[string]struct{}, len(ci.Recipients))
	for _, r := range ci.Recipients {
		kr, ok := r.(*KeyRecipient)
		if !ok {
			continue
		}
		if _, dup := seen[string(kr.ID)]; dup {
			return fmt.Errorf("%w: %x", ErrDuplicateRecipient, kr.ID)
		}
		seen[string(kr.ID)] = struct{}{}
	}
	return nil
}

// MarshalBinary encodes ci as a self-delimiting header:
//
//	4 bytes: "HUSH"
//	1 byte: version
//	4 bytes: body length (big endian)
//	N bytes: body
//
// The encoding is deterministic: params are written in key order.
func (ci *ContentInfo) MarshalBinary() ([]byte, error) {
	if err := ci.Validate(); err != nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, "protocol.MarshalContentInfo", err)
	}

	var b cryptobyte.Builder
	b.AddUint8(uint8(ci.Cipher))
	b.AddUint32(ci.ChunkSize)
	b.AddUint8(uint8(ci.Compression))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(ci.Nonce) })
	b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, r := range ci.Recipients {
			b.AddUint8(uint8(r.Kind()))
			b.AddUint16LengthPrefixed(r.marshal)
		}
	})
	keysSorted := make([]string, 0, len(ci.Params))
	for k := range ci.Params {
		keysSorted = append(keysSorted, k)
	}
	sort.Strings(keysSorted)
	b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, k := range keysSorted {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes([]byte(k)) })
			b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(ci.Params[k]) })
		}
	})
	body, err := b.Bytes()
	if err != nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, "protocol.MarshalContentInfo", err)
	}
	if len(body) > MaxFramePayload {
		return nil, errdefs.New(errdefs.ErrConfiguration, "protocol.MarshalContentInfo", ErrFrameTooLarge)
	}

	out := make([]byte, headerPreambleSize+len(body))
	copy(out, headerMagic[:])
	out[4] = ContentInfoVersion
	binary.BigEndian.PutUint32(out[5:9], uint32(len(body)))
	copy(out[headerPreambleSize:], body)
	return out, nil
}

// HeaderDigest returns SHA-256 over an encoded header exactly as it was
// written or received. Every body chunk is authenticated against it.
func HeaderDigest(raw []byte) []byte {
	sum := sha256.Sum256(raw)
	return sum[:]
}

// ParseContentInfo decodes a complete header produced by MarshalBinary.
// Trailing bytes are rejected.
func ParseContentInfo(data []byte) (*ContentInfo, error) {
	const op = "protocol.ParseContentInfo"
	if len(data) < headerPreambleSize {
		return nil, errdefs.New(errdefs.ErrHeaderParse, op, ErrTruncated)
	}
	bodyLen, err := checkPreamble(data[:headerPreambleSize])
	if err != nil {
		return nil, errdefs.New(errdefs.ErrHeaderParse, op, err)
	}
	if len(data)-headerPreambleSize != int(bodyLen) {
		if len(data)-headerPreambleSize < int(bodyLen) {
			return nil, errdefs.New(errdefs.ErrHeaderParse, op, ErrTruncated)
		}
		return nil, errdefs.New(errdefs.ErrHeaderParse, op, ErrTrailingData)
	}
	ci, err := parseBody(data[headerPreambleSize:])
	if err != nil {
		return nil, errdefs.New(errdefs.ErrHeaderParse, op, err)
	}
	return ci, nil
}

// WriteContentInfo writes the header encoding of ci to w.
func WriteContentInfo(w io.Writer, ci *ContentInfo) error {
	enc, err := ci.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(enc); err != nil {
		return errdefs.New(errdefs.ErrStreamIO, "protocol.WriteContentInfo", err)
	}
	return nil
}

// ReadContentInfo reads exactly one header from r and returns it with its raw
// encoding. It never reads past the header.
func ReadContentInfo(r io.Reader) (*ContentInfo, []byte, error) {
	const op = "protocol.ReadContentInfo"
	pre := make([]byte, headerPreambleSize)
	if _, err := io.ReadFull(r, pre); err != nil {
		return nil, nil, readError(op, err)
	}
	bodyLen, err := checkPreamble(pre)
	if err != nil {
		return nil, nil, errdefs.New(errdefs.ErrHeaderParse, op, err)
	}
	raw := make([]byte, headerPreambleSize+int(bodyLen))
	copy(raw, pre)
	if _, err := io.ReadFull(r, raw[headerPreambleSize:]); err != nil {
		return nil, nil, readError(op, err)
	}
	ci, err := parseBody(raw[headerPreambleSize:])
	if err != nil {
		return nil, nil, errdefs.New(errdefs.ErrHeaderParse, op, err)
	}
	return ci, raw, nil
}

// readError classifies a failed header read: a short stream is a malformed
// header, anything else is an I/O failure.
func readError(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errdefs.New(errdefs.ErrHeaderParse, op, ErrTruncated)
	}
	return errdefs.New(errdefs.ErrStreamIO, op, err)
}

func checkPreamble(pre []byte) (uint32, error) {
	if !bytes.Equal(pre[:4], headerMagic[:]) {
		return 0, ErrBadMagic
	}
	if pre[4] != ContentInfoVersion {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, pre[4])
	}
	n := binary.BigEndian.Uint32(pre[5:9])
	if n > MaxFramePayload {
		return 0, fmt.Errorf("%w: %d", ErrFrameTooLarge, n)
	}
	return n, nil
}

func parseBody(body []byte) (*ContentInfo, error) {
	s := cryptobyte.String(body)
	ci := &ContentInfo{Version: ContentInfoVersion}

	var cipherID, compression uint8
	var nonce, recipients, params cryptobyte.String
	if !s.ReadUint8(&cipherID) ||
		!s.ReadUint32(&ci.ChunkSize) ||
		!s.ReadUint8(&compression) ||
		!s.ReadUint8LengthPrefixed(&nonce) ||
		!s.ReadUint24LengthPrefixed(&recipients) ||
		!s.ReadUint24LengthPrefixed(&params) {
		return nil, ErrTruncated
	}
	if !s.Empty() {
		return nil, ErrTrailingData
	}
	ci.Cipher = crypto.Algorithm(cipherID)
	ci.Compression = Compression(compression)
	ci.Nonce = bytes.Clone(nonce)

	for !recipients.Empty() {
		var kind uint8
		var entry cryptobyte.String
		if !recipients.ReadUint8(&kind) || !recipients.ReadUint16LengthPrefixed(&entry) {
			return nil, ErrTruncated
		}
		r, err := parseRecipient(RecipientKind(kind), entry)
		if err != nil {
			return nil, err
		}
		ci.Recipients = append(ci.Recipients, r)
	}

	for !params.Empty() {
		var k, v cryptobyte.String
		if !params.ReadUint16LengthPrefixed(&k) || !params.ReadUint24LengthPrefixed(&v) {
			return nil, ErrTruncated
		}
		if ci.Params == nil {
			ci.Params = make(map[string][]byte)
		}
		ci.Params[string(k)] = bytes.Clone(v)
	}

	if err := ci.Validate(); err != nil {
		return nil, err
	}
	return ci, nil
}

func parseRecipient(kind RecipientKind, s cryptobyte.String) (RecipientInfo, error) {
	switch kind {
	case RecipientKindKey:
		var id, encap, wrapped cryptobyte.String
		var keyType uint8
		if !s.ReadUint16LengthPrefixed(&id) ||
			!s.ReadUint8(&keyType) ||
			!s.ReadUint16LengthPrefixed(&encap) ||
			!s.ReadUint16LengthPrefixed(&wrapped) ||
			!s.Empty() {
			return nil, ErrTruncated
		}
		return &KeyRecipient{
			ID:            bytes.Clone(id),
			KeyType:       keys.Type(keyType),
			Encapsulation: bytes.Clone(encap),
			WrappedKey:    bytes.Clone(wrapped),
		}, nil
	case RecipientKindPassword:
		var salt, wrapped cryptobyte.String
		var hash uint8
		var iterations uint32
		if !s.ReadUint8(&hash) ||
			!s.ReadUint8LengthPrefixed(&salt) ||
			!s.ReadUint32(&iterations) ||
			!s.ReadUint16LengthPrefixed(&wrapped) ||
			!s.Empty() {
			return nil, ErrTruncated
		}
		return &PasswordRecipient{
			Hash:       crypto.Hash(hash),
			Salt:       bytes.Clone(salt),
			Iterations: iterations,
			WrappedKey: bytes.Clone(wrapped),
		}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown recipient kind %d", kind)
	}
}
