package hush

import (
	"context"
	"errors"
	"net/netip"

	q "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/TheusHen/hush/hush/directory"
	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/logging"
	"github.com/TheusHen/hush/hush/pfs"
	"github.com/TheusHen/hush/hush/transport"
	"github.com/TheusHen/hush/hush/transport/quic"
)

const (
	closeNoStream         q.ApplicationErrorCode = 1
	closeAgreementFailure q.ApplicationErrorCode = 2
)

var (
	ErrNotListening = errors.New("hush: peer is not listening")
	ErrNoAddress    = errors.New("hush: directory entry has no address")
)

// Initiate runs the initiator side of a PFS agreement over conn: it derives
// the session from the responder's bundle and sends the handshake.
func Initiate(conn *transport.Conn, identity *pfs.PrivateKey, bundle *pfs.ResponderPublicInfo, additionalData []byte) (*pfs.Session, error) {
	priv, err := pfs.NewInitiatorPrivateInfo(identity)
	if err != nil {
		return nil, err
	}
	sess, hs, err := pfs.StartInitiatorSession(priv, bundle, additionalData)
	if err != nil {
		return nil, err
	}
	if err := conn.SendHandshake(hs); err != nil {
		return nil, err
	}
	return sess, nil
}

// Respond reads a handshake from conn and completes the agreement, consuming
// the one-time key it names.
func Respond(conn *transport.Conn, responder *pfs.Responder, additionalData []byte) (*pfs.Session, error) {
	hs, err := conn.ReceiveHandshake()
	if err != nil {
		return nil, err
	}
	return responder.Accept(hs, additionalData)
}

// Channel is an agreed session bound to one transport stream.
type Channel struct {
	Session *pfs.Session
	stream  *quic.Stream
}

// Send encrypts msg and sends it to the peer.
func (c *Channel) Send(msg []byte) error {
	ct, err := c.Session.Encrypt(msg, nil)
	if err != nil {
		return err
	}
	return c.stream.SendSessionData(ct)
}

// Receive waits for the peer's next message and decrypts it.
func (c *Channel) Receive() ([]byte, error) {
	ct, err := c.stream.ReceiveSessionData()
	if err != nil {
		return nil, err
	}
	return c.Session.Decrypt(ct, nil)
}

// Close ends the session and the sending side of the stream.
func (c *Channel) Close() error {
	c.Session.Close()
	_ = c.stream.SendClose("")
	return c.stream.Close()
}

// Peer is a high-level helper that combines the QUIC transport with PFS
// agreement. It stays small so applications can plug in their own directory.
type Peer struct {
	engine    *Engine
	identity  *pfs.PrivateKey
	responder *pfs.Responder
	listener  *quic.Listener
	log       *zap.Logger
}

// NewPeer creates a peer with identity and long-term keys. The peer answers
// agreements as a responder and starts them as an initiator.
func (e *Engine) NewPeer(identity, longTerm *pfs.PrivateKey) (*Peer, error) {
	r, err := pfs.NewResponder(identity, longTerm, pfs.WithLogger(e.log))
	if err != nil {
		return nil, err
	}
	return &Peer{
		engine:    e,
		identity:  identity,
		responder: r,
		log:       logging.Named(e.log, "peer"),
	}, nil
}

// Responder returns the peer's responder state.
func (p *Peer) Responder() *pfs.Responder { return p.responder }

func (p *Peer) additionalData() []byte {
	return []byte(p.engine.cfg.Session.AdditionalData)
}

func (p *Peer) Listen(addr string) error {
	ln, err := quic.Listen(addr)
	if err != nil {
		return err
	}
	p.listener = ln
	return nil
}

func (p *Peer) Close() error {
	if p.listener == nil {
		return nil
	}
	return p.listener.Close()
}

func (p *Peer) ListenAddr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.AddrString()
}

// Publish generates n one-time keys and publishes the peer's bundle under
// owner, with its listening address when it has one.
func (p *Peer) Publish(dir directory.Resolver, owner string, n int) error {
	var addr netip.AddrPort
	if p.listener != nil {
		if ap, err := netip.ParseAddrPort(p.listener.AddrString()); err == nil {
			addr = ap
		}
	}
	b, err := directory.BundleFor(owner, addr, p.responder, n)
	if err != nil {
		return errdefs.Wrap(errdefs.ErrConfiguration, "hush.Publish", err)
	}
	return dir.Publish(b)
}

// Accept waits for one incoming connection and answers its agreement.
func (p *Peer) Accept(ctx context.Context) (*Channel, error) {
	if p.listener == nil {
		return nil, errdefs.New(errdefs.ErrConfiguration, "hush.Accept", ErrNotListening)
	}
	conn, err := p.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	st, err := quic.AcceptStream(ctx, conn, p.log)
	if err != nil {
		_ = conn.CloseWithError(closeNoStream, "no stream")
		return nil, err
	}
	sess, err := Respond(st.Conn, p.responder, p.additionalData())
	if err != nil {
		_ = conn.CloseWithError(closeAgreementFailure, "agreement failed")
		return nil, err
	}
	p.log.Debug("session accepted", zap.Stringer("peer", sess.Peer().ID()))
	return &Channel{Session: sess, stream: st}, nil
}

// Dial connects to the address in entry and runs the agreement against its
// bundle.
func (p *Peer) Dial(ctx context.Context, entry directory.Entry) (*Channel, error) {
	if !entry.Addr.IsValid() {
		return nil, errdefs.New(errdefs.ErrConfiguration, "hush.Dial", ErrNoAddress)
	}
	conn, err := quic.Dial(ctx, entry.Addr.String())
	if err != nil {
		return nil, err
	}
	st, err := quic.OpenStream(ctx, conn, p.log)
	if err != nil {
		_ = conn.CloseWithError(closeNoStream, "no stream")
		return nil, err
	}
	sess, err := Initiate(st.Conn, p.identity, entry.Info, p.additionalData())
	if err != nil {
		_ = conn.CloseWithError(closeAgreementFailure, "agreement failed")
		return nil, err
	}
	p.log.Debug("session initiated", zap.String("owner", entry.Owner))
	return &Channel{Session: sess, stream: st}, nil
}
