package pfs

import (
	"bytes"
	"errors"
	"sync"

	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/pfs/ratchet"
)

// Role is the side of the agreement a session was created on.
type Role uint8

const (
	RoleInitiator Role = iota + 1
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

var ErrSessionClosed = errors.New("pfs: session closed")

// Session is an established forward-secure session. Each direction runs its
// own ratchet, so both sides may send concurrently. Methods are safe for
// concurrent use.
type Session struct {
	mu     sync.Mutex
	role   Role
	id     []byte
	peer   *PublicKey
	send   *ratchet.Chain
	recv   *ratchet.Receiver
	closed bool
}

func newSession(role Role, k sessionKeys, peer *PublicKey) (*Session, error) {
	sendKey, recvKey := k.initiatorToResponder, k.responderToInitiator
	if role == RoleResponder {
		sendKey, recvKey = recvKey, sendKey
	}
	send, err := ratchet.NewChain(sendKey)
	if err != nil {
		return nil, err
	}
	recv, err := ratchet.NewReceiver(recvKey, ratchet.DefaultMaxSkip)
	if err != nil {
		return nil, err
	}
	for i := range k.initiatorToResponder {
		k.initiatorToResponder[i] = 0
		k.responderToInitiator[i] = 0
	}
	return &Session{role: role, id: k.id, peer: peer, send: send, recv: recv}, nil
}

// Role returns the side this session was created on.
func (s *Session) Role() Role { return s.role }

// ID returns the session identifier. Both sides derive the same value when
// their keys match, but a matching ID is not authentication: only a message
// that decrypts proves the agreement.
func (s *Session) ID() []byte { return bytes.Clone(s.id) }

// Peer returns the remote party's identity key.
func (s *Session) Peer() *PublicKey { return s.peer }

// SendGeneration returns the number of messages sent so far.
func (s *Session) SendGeneration() uint64 { return s.send.Generation() }

// Encrypt seals plaintext for the peer. ad is authenticated but not
// encrypted and must be passed unchanged to Decrypt.
func (s *Session) Encrypt(plaintext, ad []byte) ([]byte, error) {
	const op = "pfs.Session.Encrypt"
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrSessionClosed)
	}
	msg, err := s.send.Seal(plaintext, s.bind(ad))
	if err != nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, err)
	}
	return msg.Encode(), nil
}

// Decrypt opens a message from the peer. Any failure, including a session
// whose keys do not match the peer's, is an authentication failure.
func (s *Session) Decrypt(ciphertext, ad []byte) ([]byte, error) {
	const op = "pfs.Session.Decrypt"
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, errdefs.New(errdefs.ErrConfiguration, op, ErrSessionClosed)
	}
	msg, err := ratchet.DecodeEncryptedMessage(ciphertext)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrAuthentication, op, err)
	}
	pt, err := s.recv.Open(msg, s.bind(ad))
	if err != nil {
		return nil, errdefs.New(errdefs.ErrAuthentication, op, err)
	}
	return pt, nil
}

// Close stops the session. Later calls to Encrypt and Decrypt fail.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// bind prefixes caller data with the session id.
func (s *Session) bind(ad []byte) []byte {
	out := make([]byte, 0, len(s.id)+len(ad))
	out = append(out, s.id...)
	return append(out, ad...)
}
