// Package transport carries PFS handshakes, detached ContentInfo headers and
// session messages between two parties as length-prefixed frames.
//
// A Conn works over any ordered byte stream; package quic supplies one backed
// by a QUIC stream.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/logging"
	"github.com/TheusHen/hush/hush/pfs"
	"github.com/TheusHen/hush/hush/protocol"
)

var (
	ErrUnexpectedFrame = errors.New("transport: unexpected frame type")
	ErrPeerClosed      = errors.New("transport: peer closed the conversation")
)

type Option func(*Conn)

func WithLogger(l *zap.Logger) Option {
	return func(c *Conn) { c.log = logging.Named(l, "transport") }
}

// Conn exchanges frames over rw. Sends and receives may run concurrently
// with each other; concurrent sends are serialised.
type Conn struct {
	rw  io.ReadWriter
	wmu sync.Mutex
	rmu sync.Mutex
	log *zap.Logger
}

// NewConn wraps rw.
func NewConn(rw io.ReadWriter, opts ...Option) *Conn {
	c := &Conn{rw: rw, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Conn) send(t protocol.MessageType, payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := protocol.WriteFrame(c.rw, protocol.Frame{Type: t, Payload: payload}); err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			return errdefs.New(errdefs.ErrConfiguration, "transport.send", err)
		}
		return errdefs.New(errdefs.ErrStreamIO, "transport.send", err)
	}
	c.log.Debug("frame sent", zap.Stringer("type", t), zap.Int("len", len(payload)))
	return nil
}

// expect reads one frame and checks its type. A Close frame from the peer
// is reported as ErrPeerClosed.
func (c *Conn) expect(t protocol.MessageType) ([]byte, error) {
	const op = "transport.receive"
	c.rmu.Lock()
	defer c.rmu.Unlock()
	f, err := protocol.ReadFrame(c.rw)
	if err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) || errors.Is(err, protocol.ErrInvalidType) {
			return nil, errdefs.New(errdefs.ErrHeaderParse, op, err)
		}
		return nil, errdefs.New(errdefs.ErrStreamIO, op, err)
	}
	c.log.Debug("frame received", zap.Stringer("type", f.Type), zap.Int("len", len(f.Payload)))
	if f.Type == protocol.MessageTypeClose && t != protocol.MessageTypeClose {
		return nil, errdefs.New(errdefs.ErrStreamIO, op, ErrPeerClosed)
	}
	if f.Type != t {
		return nil, errdefs.New(errdefs.ErrHeaderParse, op, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedFrame, f.Type, t))
	}
	return f.Payload, nil
}

// SendHandshake sends an initiator handshake.
func (c *Conn) SendHandshake(hs *pfs.Handshake) error {
	b, err := hs.Marshal()
	if err != nil {
		return err
	}
	return c.send(protocol.MessageTypeHandshake, b)
}

// ReceiveHandshake reads an initiator handshake.
func (c *Conn) ReceiveHandshake() (*pfs.Handshake, error) {
	b, err := c.expect(protocol.MessageTypeHandshake)
	if err != nil {
		return nil, err
	}
	return pfs.ParseHandshake(b)
}

// SendContentInfo sends an encoded, detached ContentInfo header.
func (c *Conn) SendContentInfo(raw []byte) error {
	return c.send(protocol.MessageTypeContentInfo, raw)
}

// ReceiveContentInfo reads a detached header and checks that it parses. The
// raw encoding is returned as well since it authenticates the body.
func (c *Conn) ReceiveContentInfo() (*protocol.ContentInfo, []byte, error) {
	raw, err := c.expect(protocol.MessageTypeContentInfo)
	if err != nil {
		return nil, nil, err
	}
	ci, err := protocol.ParseContentInfo(raw)
	if err != nil {
		return nil, nil, err
	}
	return ci, raw, nil
}

// SendSessionData sends one encrypted session message.
func (c *Conn) SendSessionData(msg []byte) error {
	return c.send(protocol.MessageTypeSessionData, msg)
}

// ReceiveSessionData reads one encrypted session message.
func (c *Conn) ReceiveSessionData() ([]byte, error) {
	return c.expect(protocol.MessageTypeSessionData)
}

// SendAck acknowledges a message; payload is application defined.
func (c *Conn) SendAck(payload []byte) error {
	return c.send(protocol.MessageTypeAck, payload)
}

// ReceiveAck waits for an acknowledgement.
func (c *Conn) ReceiveAck() ([]byte, error) {
	return c.expect(protocol.MessageTypeAck)
}

// SendClose tells the peer no more frames follow.
func (c *Conn) SendClose(reason string) error {
	return c.send(protocol.MessageTypeClose, []byte(reason))
}

// ReceiveClose waits for the peer's Close frame and returns its reason.
func (c *Conn) ReceiveClose() (string, error) {
	b, err := c.expect(protocol.MessageTypeClose)
	return string(b), err
}

// Writer exposes the underlying stream, for sending an encrypted body after
// its detached header. Callers must not interleave it with frame sends.
func (c *Conn) Writer() io.Writer { return c.rw }

// Reader exposes the underlying stream for reading a raw encrypted body.
func (c *Conn) Reader() io.Reader { return c.rw }
