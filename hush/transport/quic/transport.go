// Package quic runs transport.Conn over QUIC streams. Each conversation (one
// handshake, one detached header plus body, ...) uses its own bidirectional
// stream.
package quic

import (
	"context"
	"net"
	"time"

	q "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/transport"
)

const idleTimeout = 30 * time.Second

func config() *q.Config {
	return &q.Config{MaxIdleTimeout: idleTimeout}
}

type Listener struct {
	inner *q.Listener
}

func Listen(addr string) (*Listener, error) {
	tlsConf, err := NewServerTLSConfig()
	if err != nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, "quic.Listen", err)
	}
	ln, err := q.ListenAddr(addr, tlsConf, config())
	if err != nil {
		return nil, errdefs.New(errdefs.ErrStreamIO, "quic.Listen", err)
	}
	return &Listener{inner: ln}, nil
}

func (l *Listener) Accept(ctx context.Context) (q.Connection, error) {
	c, err := l.inner.Accept(ctx)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrStreamIO, "quic.Accept", err)
	}
	return c, nil
}

func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

func (l *Listener) AddrString() string {
	if l.inner == nil {
		return ""
	}
	return l.inner.Addr().String()
}

func (l *Listener) Close() error { return l.inner.Close() }

func Dial(ctx context.Context, addr string) (q.Connection, error) {
	tlsConf, err := NewClientTLSConfig()
	if err != nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, "quic.Dial", err)
	}
	c, err := q.DialAddr(ctx, addr, tlsConf, config())
	if err != nil {
		return nil, errdefs.New(errdefs.ErrStreamIO, "quic.Dial", err)
	}
	return c, nil
}

// Stream is a transport.Conn bound to one QUIC stream. Close ends the
// sending side, which the peer observes as EOF after the last frame or body.
type Stream struct {
	*transport.Conn
	stream q.Stream
}

func (s *Stream) Close() error { return s.stream.Close() }

// OpenStream opens a new conversation on c.
func OpenStream(ctx context.Context, c q.Connection, log *zap.Logger) (*Stream, error) {
	st, err := c.OpenStreamSync(ctx)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrStreamIO, "quic.OpenStream", err)
	}
	return &Stream{Conn: transport.NewConn(st, transport.WithLogger(log)), stream: st}, nil
}

// AcceptStream waits for the peer's next conversation on c.
func AcceptStream(ctx context.Context, c q.Connection, log *zap.Logger) (*Stream, error) {
	st, err := c.AcceptStream(ctx)
	if err != nil {
		return nil, errdefs.New(errdefs.ErrStreamIO, "quic.AcceptStream", err)
	}
	return &Stream{Conn: transport.NewConn(st, transport.WithLogger(log)), stream: st}, nil
}
