package hush

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/TheusHen/hush/hush/directory"
	"github.com/TheusHen/hush/hush/directory/memory"
	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/pfs"
	"github.com/TheusHen/hush/hush/transport"
)

func mustPFSKey(t *testing.T) *pfs.PrivateKey {
	t.Helper()
	k, err := pfs.GenerateKeyPair()
	require.NoError(t, err)
	return k
}

func TestInitiateRespondOverPipe(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	responder, err := pfs.NewResponder(mustPFSKey(t), mustPFSKey(t))
	require.NoError(t, err)
	_, _ = responder.GenerateOneTimeKeys(1)
	bundle, _ := responder.PublicInfo()

	var g errgroup.Group
	var rs *pfs.Session
	g.Go(func() error {
		var err error
		rs, err = Respond(transport.NewConn(b), responder, []byte("ad"))
		return err
	})
	is, err := Initiate(transport.NewConn(a), mustPFSKey(t), bundle, []byte("ad"))
	require.NoError(t, err)
	require.NoError(t, g.Wait())
	assert.Equal(t, is.ID(), rs.ID())

	// Replaying the same bundle on a new conversation hits the consumed key.
	c, d := net.Pipe()
	defer c.Close()
	defer d.Close()
	g.Go(func() error {
		_, err := Respond(transport.NewConn(d), responder, []byte("ad"))
		return err
	})
	_, err = Initiate(transport.NewConn(c), mustPFSKey(t), bundle, []byte("ad"))
	require.NoError(t, err)
	require.ErrorIs(t, g.Wait(), errdefs.ErrKeyReuse)
}

func TestPeersOverQUIC(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := Config{Session: SessionConfig{AdditionalData: "test/v1"}}
	e, err := New(cfg)
	require.NoError(t, err)

	bob, err := e.NewPeer(mustPFSKey(t), mustPFSKey(t))
	require.NoError(t, err)
	require.NoError(t, bob.Listen("127.0.0.1:0"))
	defer bob.Close()

	dir := memory.New()
	require.NoError(t, bob.Publish(dir, "bob", 2))

	alice, err := e.NewPeer(mustPFSKey(t), mustPFSKey(t))
	require.NoError(t, err)
	entry, err := dir.Fetch("bob")
	require.NoError(t, err)
	require.NotNil(t, entry.Info.OneTime)

	var g errgroup.Group
	g.Go(func() error {
		ch, err := bob.Accept(ctx)
		if err != nil {
			return err
		}
		msg, err := ch.Receive()
		if err != nil {
			return err
		}
		return ch.Send(append([]byte("echo: "), msg...))
	})

	ch, err := alice.Dial(ctx, entry)
	require.NoError(t, err)
	require.NoError(t, ch.Send([]byte("hi bob")))
	reply, err := ch.Receive()
	require.NoError(t, err)
	assert.Equal(t, "echo: hi bob", string(reply))
	require.NoError(t, g.Wait())
	require.NoError(t, ch.Close())

	assert.Equal(t, 1, bob.Responder().OneTimeKeys().Available())
}

func TestPeerErrors(t *testing.T) {
	e, _ := New(Config{})
	p, err := e.NewPeer(mustPFSKey(t), mustPFSKey(t))
	require.NoError(t, err)
	_, err = p.Accept(context.Background())
	require.ErrorIs(t, err, errdefs.ErrConfiguration)
	_, err = p.Dial(context.Background(), dirEntryWithoutAddr(t))
	require.ErrorIs(t, err, errdefs.ErrConfiguration)
	_, err = e.NewPeer(nil, mustPFSKey(t))
	require.ErrorIs(t, err, errdefs.ErrConfiguration)

	err = p.Publish(memory.New(), "", 1)
	require.ErrorIs(t, err, errdefs.ErrConfiguration)
	require.ErrorIs(t, err, directory.ErrInvalidOwner)
}

func dirEntryWithoutAddr(t *testing.T) directory.Entry {
	t.Helper()
	k := mustPFSKey(t)
	info, err := pfs.NewResponderPublicInfo(k.Public(), k.Public(), nil)
	require.NoError(t, err)
	return directory.Entry{Owner: "nowhere", Info: info}
}
