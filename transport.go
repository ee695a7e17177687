package enginetransport

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/fx"

	"github.com/dep2p/go-engine-transport/internal/core/engine"
	"github.com/dep2p/go-engine-transport/internal/core/identity"
	"github.com/dep2p/go-engine-transport/internal/core/transport"
	"github.com/dep2p/go-engine-transport/internal/util/logger"
	"github.com/dep2p/go-engine-transport/pkg/interfaces"
	"github.com/dep2p/go-engine-transport/pkg/types"
)

var log = logger.Logger("facade")

// 确保实现了接口
var _ interfaces.Transport = (*Transport)(nil)

// ============================================================================
//                          传输门面
// ============================================================================

// Transport 按身份寻址的传输门面
//
// 组合身份、引擎与传输层，生命周期由 fx 管理。
// 所有方法并发安全。
type Transport struct {
	app    *fx.App
	engine *engine.Engine
	dialer *transport.Dialer
	opts   *options

	mu        sync.Mutex
	listeners []*transport.Listener
	closed    bool
}

// New 创建并启动传输
func New(opts ...Option) (*Transport, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(o)
	}

	t := &Transport{opts: o}
	app := fx.New(
		fx.NopLogger,
		fx.Supply(&o.identityCfg, &o.engineCfg, &o.transportCfg),
		identity.Module(),
		engine.Module(),
		transport.Module(),
		fx.Populate(&t.engine, &t.dialer),
	)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrEngineInit, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.startTimeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrEngineInit, err)
	}

	t.app = app
	log.Info("transport started", "node_id", t.engine.LocalID().ShortString())
	return t, nil
}

// LocalID 本地节点身份
func (t *Transport) LocalID() types.NodeID {
	return t.engine.LocalID()
}

// LocalMultiaddr 本地节点地址
func (t *Transport) LocalMultiaddr() types.Multiaddr {
	return types.FromNodeID(t.engine.LocalID())
}

// DirectAddrs 当前已知的本地直连地址
func (t *Transport) DirectAddrs() []string {
	return t.engine.DirectAddrs()
}

// Engine 底层引擎句柄
//
// 供覆盖网等上层协议直接使用引擎能力（地址事件、提示簿）。
func (t *Transport) Engine() interfaces.Engine {
	return t.engine
}

// Dial 按地址拨号远端节点
//
// raddr 必须是 /p2p/<NodeID> 形式。不做拨号去重：
// 并发拨同一节点产生独立连接。
func (t *Transport) Dial(ctx context.Context, raddr types.Multiaddr) (interfaces.Connection, error) {
	if t.isClosed() {
		return nil, types.ErrEngineClosed
	}
	return t.dialer.Dial(ctx, raddr)
}

// DialAddr 按引擎地址拨号（带直连提示）
func (t *Transport) DialAddr(ctx context.Context, addr types.NodeAddr) (interfaces.Connection, error) {
	if t.isClosed() {
		return nil, types.ErrEngineClosed
	}
	return t.dialer.DialAddr(ctx, addr)
}

// DialTicket 凭连接票据拨号
//
// 票据中的地址提示登记进提示簿后按身份拨号。
func (t *Transport) DialTicket(ctx context.Context, ticket string) (interfaces.Connection, error) {
	tk, err := types.DecodeConnectionTicket(ticket)
	if err != nil {
		return nil, err
	}
	addr, err := tk.NodeAddr()
	if err != nil {
		return nil, err
	}
	t.AddAddressHints(addr)
	return t.DialAddr(ctx, addr)
}

// Listen 开始监听入站连接
//
// laddr 为空时监听本地身份地址；非空时必须是本地的
// /p2p/<NodeID> 地址。每次调用返回独立的监听器，
// 各自有独立的事件序列。
func (t *Transport) Listen(laddr types.Multiaddr) (interfaces.Listener, error) {
	if laddr != "" {
		parsed, err := types.ParseMultiaddr(string(laddr))
		if err != nil {
			return nil, err
		}
		if !parsed.PeerID().Equal(t.engine.LocalID()) {
			return nil, fmt.Errorf("%w: listen address %s does not match local identity %s",
				types.ErrInvalidMultiaddr, laddr, t.engine.LocalID().ShortString())
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, types.ErrEngineClosed
	}

	ln := transport.NewListener(t.engine, t.opts.transportCfg.MaxStreams)
	t.listeners = append(t.listeners, ln)
	return ln, nil
}

// Ticket 生成包含本地身份与直连地址的连接票据
func (t *Transport) Ticket() (string, error) {
	return types.NewConnectionTicket(t.engine.LocalID(), t.engine.DirectAddrs()).Encode()
}

// AddAddressHints 登记远端节点的直连地址提示
func (t *Transport) AddAddressHints(addr types.NodeAddr) {
	t.engine.AddAddressHints(addr.ID, addr.DirectHints)
}

// isClosed 传输是否已关闭
func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close 关闭传输
//
// 幂等。先终止所有监听器，再停止底层模块。
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	listeners := t.listeners
	t.listeners = nil
	t.mu.Unlock()

	for _, ln := range listeners {
		ln.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.opts.startTimeout)
	defer cancel()
	if err := t.app.Stop(ctx); err != nil {
		return fmt.Errorf("stop transport: %w", err)
	}

	log.Info("transport closed", "node_id", t.engine.LocalID().ShortString())
	return nil
}
