package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-engine-transport/internal/core/identity"
	"github.com/dep2p/go-engine-transport/pkg/interfaces"
	"github.com/dep2p/go-engine-transport/pkg/types"
)

// newTestEngine 在回环地址上启动测试引擎
func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	id, err := identity.Generate()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.BindAddr = "127.0.0.1:0"
	cfg.DialTimeout = 5 * time.Second

	e, err := New(id, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// nodeAddr 构造带直连提示的引擎地址
func nodeAddr(e *Engine) types.NodeAddr {
	return types.NodeAddr{ID: e.LocalID(), DirectHints: e.DirectAddrs()}
}

func TestEngine_DialAccept(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	acceptedCh := make(chan interfaces.Connection, 1)
	go func() {
		conn, err := b.Accept(ctx)
		if err == nil {
			acceptedCh <- conn
		}
	}()

	out, err := a.Connect(ctx, nodeAddr(b))
	require.NoError(t, err)
	assert.True(t, out.RemoteID().Equal(b.LocalID()))
	assert.Equal(t, types.DirOutbound, out.Direction())

	// 打开流并写入，触发对端的流接受
	s, err := out.OpenStream(ctx)
	require.NoError(t, err)
	_, err = s.Write([]byte("ping"))
	require.NoError(t, err)

	in := <-acceptedCh
	assert.True(t, in.RemoteID().Equal(a.LocalID()))
	assert.Equal(t, types.DirInbound, in.Direction())

	rs, err := in.AcceptStream(ctx)
	require.NoError(t, err)

	buf := make([]byte, 4)
	require.NoError(t, rs.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := rs.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}

func TestEngine_IdentityMismatch(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)

	// 期望身份与实际监听者不符
	other, err := identity.Generate()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wrong := types.NodeAddr{ID: other.NodeID(), DirectHints: b.DirectAddrs()}
	_, err = a.Connect(ctx, wrong)
	require.ErrorIs(t, err, types.ErrIdentityMismatch)
}

func TestEngine_NoAddressHints(t *testing.T) {
	a := newTestEngine(t)

	other, err := identity.Generate()
	require.NoError(t, err)

	_, err = a.Connect(context.Background(), types.NewNodeAddr(other.NodeID()))
	require.ErrorIs(t, err, types.ErrPeerUnreachable)
	assert.ErrorIs(t, err, types.ErrNoAddressHints)
}

func TestEngine_DialSelf(t *testing.T) {
	a := newTestEngine(t)
	_, err := a.Connect(context.Background(), nodeAddr(a))
	require.Error(t, err)
}

func TestEngine_ClosedErrors(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	require.NoError(t, a.Close())

	_, err := a.Connect(context.Background(), nodeAddr(b))
	assert.ErrorIs(t, err, types.ErrEngineClosed)

	_, err = a.Accept(context.Background())
	assert.ErrorIs(t, err, types.ErrEngineClosed)

	// 重复关闭幂等
	assert.NoError(t, a.Close())
}

func TestEngine_CloseReason(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	acceptedCh := make(chan interfaces.Connection, 1)
	go func() {
		conn, err := b.Accept(ctx)
		if err == nil {
			acceptedCh <- conn
		}
	}()

	out, err := a.Connect(ctx, nodeAddr(b))
	require.NoError(t, err)
	in := <-acceptedCh

	assert.Equal(t, types.CloseReasonNone, out.CloseReason())

	// 本地关闭
	require.NoError(t, out.Close())
	assert.True(t, out.IsClosed())
	assert.Equal(t, types.CloseReasonLocal, out.CloseReason())
	assert.True(t, out.CloseReason().IsNormal())

	// 对端视角为远端关闭
	require.Eventually(t, in.IsClosed, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, types.CloseReasonRemote, in.CloseReason())
	assert.True(t, in.CloseReason().IsNormal())

	// 关闭后的操作返回连接已关闭
	_, err = out.OpenStream(ctx)
	assert.ErrorIs(t, err, types.ErrConnectionClosed)
}

func TestEngine_IdleTimeout(t *testing.T) {
	// 空闲超时是正常关闭，不是错误。
	// 默认配置不保活：零流量的连接必须在超时后被回收。
	newIdleEngine := func() *Engine {
		id, err := identity.Generate()
		require.NoError(t, err)

		cfg := DefaultConfig()
		cfg.BindAddr = "127.0.0.1:0"
		cfg.MaxIdleTimeout = time.Second

		e, err := New(id, cfg)
		require.NoError(t, err)
		t.Cleanup(func() { e.Close() })
		return e
	}

	a := newIdleEngine()
	b := newIdleEngine()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	go func() {
		b.Accept(ctx)
	}()

	out, err := a.Connect(ctx, nodeAddr(b))
	require.NoError(t, err)

	require.Eventually(t, out.IsClosed, 10*time.Second, 100*time.Millisecond)
	assert.Equal(t, types.CloseReasonIdle, out.CloseReason())
	assert.True(t, out.CloseReason().IsNormal())
}

func TestEngine_KeepAliveMustUndercutIdleTimeout(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	// 保活间隔不小于空闲超时时拒绝启动：这样的连接永远不会空闲
	cfg := DefaultConfig()
	cfg.BindAddr = "127.0.0.1:0"
	cfg.MaxIdleTimeout = time.Second
	cfg.KeepAlivePeriod = time.Second

	_, err = New(id, cfg)
	require.ErrorIs(t, err, types.ErrEngineInit)

	// 合法的保活配置可以启动
	cfg.KeepAlivePeriod = 200 * time.Millisecond
	e, err := New(id, cfg)
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestEngine_AddrEvents(t *testing.T) {
	a := newTestEngine(t)

	addrs := a.DirectAddrs()
	require.NotEmpty(t, addrs)

	// 订阅先收到当前地址快照
	ch := a.AddrEvents()
	select {
	case ev := <-ch:
		assert.False(t, ev.Removed)
		assert.Contains(t, addrs, ev.Addr)
	case <-time.After(time.Second):
		t.Fatal("未收到初始地址事件")
	}

	// 引擎关闭后通道关闭
	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, 5*time.Second, 50*time.Millisecond)
}

func TestEngine_AddrEventsLargeSnapshot(t *testing.T) {
	a := newTestEngine(t)

	// 注入远超通道缓冲的地址集，订阅调用不得阻塞
	a.mu.Lock()
	for i := 0; i < 200; i++ {
		a.addrs[fmt.Sprintf("10.9.0.%d:4001", i)] = struct{}{}
	}
	total := len(a.addrs)
	a.mu.Unlock()

	subscribed := make(chan (<-chan types.AddrEvent), 1)
	go func() { subscribed <- a.AddrEvents() }()

	var ch <-chan types.AddrEvent
	select {
	case ch = <-subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("订阅调用阻塞")
	}

	// 快照完整交付
	for i := 0; i < total; i++ {
		select {
		case ev := <-ch:
			assert.False(t, ev.Removed)
		case <-time.After(time.Second):
			t.Fatalf("快照不完整：已收 %d / %d", i, total)
		}
	}
}

func TestEngine_AddrBookDial(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() {
		for {
			if _, err := b.Accept(ctx); err != nil {
				return
			}
		}
	}()

	// 登记提示后仅凭 NodeID 即可拨通
	a.AddAddressHints(b.LocalID(), b.DirectAddrs())

	conn, err := a.Connect(ctx, types.NewNodeAddr(b.LocalID()))
	require.NoError(t, err)
	assert.True(t, conn.RemoteID().Equal(b.LocalID()))
}

func TestAddrBook(t *testing.T) {
	book := newAddrBook(16, time.Minute)

	id, err := identity.Generate()
	require.NoError(t, err)
	nid := id.NodeID()

	t.Run("合并去重", func(t *testing.T) {
		book.Add(nid, []string{"10.0.0.1:4001", "10.0.0.1:4001"})
		book.Add(nid, []string{"10.0.0.2:4001"})

		hints := book.Lookup(nid)
		assert.Len(t, hints, 2)
		// 新提示排在前面
		assert.Equal(t, "10.0.0.2:4001", hints[0])
	})

	t.Run("忽略非法地址", func(t *testing.T) {
		book.Add(nid, []string{"not-an-addr"})
		for _, h := range book.Lookup(nid) {
			assert.NotEqual(t, "not-an-addr", h)
		}
	})

	t.Run("上限截断", func(t *testing.T) {
		for i := 0; i < maxHintsPerNode*2; i++ {
			book.Add(nid, []string{"10.1.0.1:" + string(rune('0'+i%10)) + "000"})
		}
		assert.LessOrEqual(t, len(book.Lookup(nid)), maxHintsPerNode)
	})

	t.Run("删除", func(t *testing.T) {
		book.Remove(nid)
		assert.Empty(t, book.Lookup(nid))
	})
}
