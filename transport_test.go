package enginetransport

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-engine-transport/pkg/interfaces"
	"github.com/dep2p/go-engine-transport/pkg/types"
)

// newTestTransport 在回环地址上启动测试传输
func newTestTransport(t *testing.T) *Transport {
	t.Helper()

	tr, err := New(
		WithListenAddr("127.0.0.1:0"),
		WithDialTimeout(5*time.Second),
	)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

// waitIncoming 从监听器取出下一条入站连接
func waitIncoming(t *testing.T, ctx context.Context, ln interfaces.Listener) interfaces.Connection {
	t.Helper()
	for {
		ev, err := ln.Next(ctx)
		require.NoError(t, err)
		if ev.Kind == interfaces.EventIncoming {
			return ev.Conn
		}
	}
}

func TestTransport_TicketRoundTrip(t *testing.T) {
	a := newTestTransport(t)
	b := newTestTransport(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	ln, err := b.Listen(b.LocalMultiaddr())
	require.NoError(t, err)

	ticket, err := b.Ticket()
	require.NoError(t, err)

	// 凭票据拨号
	conn, err := a.DialTicket(ctx, ticket)
	require.NoError(t, err)
	assert.True(t, conn.RemoteID().Equal(b.LocalID()))
	assert.Equal(t, types.FromNodeID(b.LocalID()), conn.RemoteMultiaddr())

	s, err := conn.OpenStream(ctx)
	require.NoError(t, err)
	_, err = s.Write([]byte("via-ticket"))
	require.NoError(t, err)
	require.NoError(t, s.CloseWrite())

	in := waitIncoming(t, ctx, ln)
	rs, err := in.AcceptStream(ctx)
	require.NoError(t, err)
	rs.SetReadDeadline(time.Now().Add(5 * time.Second))
	data, err := io.ReadAll(rs)
	require.NoError(t, err)
	assert.Equal(t, "via-ticket", string(data))
}

func TestTransport_DialByMultiaddr(t *testing.T) {
	a := newTestTransport(t)
	b := newTestTransport(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := b.Listen("")
	require.NoError(t, err)

	// 没有任何地址提示时不可达
	_, err = a.Dial(ctx, b.LocalMultiaddr())
	require.ErrorIs(t, err, types.ErrPeerUnreachable)

	// 登记提示后仅凭 /p2p 地址即可拨通
	a.AddAddressHints(types.NodeAddr{ID: b.LocalID(), DirectHints: b.DirectAddrs()})
	conn, err := a.Dial(ctx, b.LocalMultiaddr())
	require.NoError(t, err)
	assert.True(t, conn.RemoteID().Equal(b.LocalID()))
}

func TestTransport_DialValidation(t *testing.T) {
	a := newTestTransport(t)
	ctx := context.Background()

	_, err := a.Dial(ctx, types.Multiaddr("/ip4/127.0.0.1/udp/1/quic-v1"))
	require.ErrorIs(t, err, ErrUnsupportedProtocol)

	_, err = a.Dial(ctx, types.Multiaddr("127.0.0.1:4001"))
	require.ErrorIs(t, err, ErrNotMultiaddrFormat)

	_, err = a.DialTicket(ctx, "not-a-ticket")
	require.Error(t, err)
}

func TestTransport_ListenAddrValidation(t *testing.T) {
	a := newTestTransport(t)
	b := newTestTransport(t)

	// 空地址与本地身份地址均可监听
	ln, err := a.Listen("")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	ln, err = a.Listen(a.LocalMultiaddr())
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	// 他人身份被拒绝
	_, err = a.Listen(b.LocalMultiaddr())
	require.ErrorIs(t, err, ErrInvalidMultiaddr)

	// 非身份地址被拒绝
	_, err = a.Listen(types.Multiaddr("127.0.0.1:4001"))
	require.ErrorIs(t, err, ErrNotMultiaddrFormat)

	_, err = a.Listen(types.Multiaddr("/ip4/127.0.0.1/udp/4001/quic-v1"))
	require.ErrorIs(t, err, ErrUnsupportedProtocol)
}

func TestTransport_Close(t *testing.T) {
	a := newTestTransport(t)
	b := newTestTransport(t)

	ln, err := a.Listen("")
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())

	// 关闭后监听器进入终态，新的操作被拒绝
	assert.Equal(t, types.ListenerClosed, ln.State())

	_, err = a.Listen("")
	assert.ErrorIs(t, err, ErrEngineClosed)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = a.Dial(ctx, b.LocalMultiaddr())
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestTransport_FixedIdentity(t *testing.T) {
	// 同一私钥重启后 NodeID 不变
	first := newTestTransport(t)
	priv := first.engine.Identity().PrivateKey()
	id := first.LocalID()
	require.NoError(t, first.Close())

	second, err := New(
		WithListenAddr("127.0.0.1:0"),
		WithPrivateKey(priv),
	)
	require.NoError(t, err)
	defer second.Close()

	assert.True(t, second.LocalID().Equal(id))
}
