package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-engine-transport/internal/core/identity"
	"github.com/dep2p/go-engine-transport/internal/util/logger"
	"github.com/dep2p/go-engine-transport/pkg/interfaces"
	"github.com/dep2p/go-engine-transport/pkg/types"
)

var log = logger.Logger("engine")

// 确保实现了接口
var _ interfaces.Engine = (*Engine)(nil)

// ============================================================================
//                          配置
// ============================================================================

// Config 引擎配置
type Config struct {
	// BindAddr UDP 绑定地址，默认 "0.0.0.0:0"（随机端口）
	BindAddr string

	// DialTimeout 拨号默认超时（ctx 未带截止时间时生效）
	DialTimeout time.Duration

	// MaxIdleTimeout 连接空闲超时
	//
	// 空闲关闭属于正常生命周期事件，不是错误。
	MaxIdleTimeout time.Duration

	// KeepAlivePeriod 保活间隔，0（默认）表示不保活
	//
	// 保活会让零流量的连接永不空闲，因此默认关闭，
	// 空闲超时才能按预期回收闲置连接。显式开启时
	// 必须小于 MaxIdleTimeout，否则保活包发不出去
	// 连接就已被判定空闲。
	KeepAlivePeriod time.Duration

	// MaxIncomingStreams 单连接入站流上限
	MaxIncomingStreams int64

	// AddrRefreshInterval 本地地址刷新间隔
	AddrRefreshInterval time.Duration

	// AddrBookSize 地址提示簿容量
	AddrBookSize int

	// AddrBookTTL 地址提示过期时间
	AddrBookTTL time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BindAddr:            "0.0.0.0:0",
		DialTimeout:         20 * time.Second,
		MaxIdleTimeout:      60 * time.Second,
		KeepAlivePeriod:     0,
		MaxIncomingStreams:  1024,
		AddrRefreshInterval: 30 * time.Second,
		AddrBookSize:        1024,
		AddrBookTTL:         time.Hour,
	}
}

// withDefaults 补齐零值字段
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BindAddr == "" {
		c.BindAddr = def.BindAddr
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.MaxIdleTimeout <= 0 {
		c.MaxIdleTimeout = def.MaxIdleTimeout
	}
	if c.MaxIncomingStreams <= 0 {
		c.MaxIncomingStreams = def.MaxIncomingStreams
	}
	if c.AddrRefreshInterval <= 0 {
		c.AddrRefreshInterval = def.AddrRefreshInterval
	}
	if c.AddrBookSize <= 0 {
		c.AddrBookSize = def.AddrBookSize
	}
	if c.AddrBookTTL <= 0 {
		c.AddrBookTTL = def.AddrBookTTL
	}
	return c
}

// ============================================================================
//                          引擎
// ============================================================================

// Engine 连通性引擎
//
// 监听与拨号共享同一个 UDP 套接字：打洞时必须使用
// 与监听相同的本地端口，否则 NAT 会分配新的外部映射。
type Engine struct {
	cfg      Config
	identity *identity.Identity
	localID  types.NodeID

	clientTLS *tls.Config
	quicConf  *quic.Config

	udpConn       *net.UDPConn
	quicTransport *quic.Transport
	listener      *quic.Listener

	book *addrBook

	mu     sync.Mutex
	closed bool

	// addrs 当前已知的本地直连地址
	addrs map[string]struct{}
	subs  map[int]chan types.AddrEvent
	seq   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建并启动引擎
//
// 绑定 UDP 套接字、生成身份 TLS、开始接受入站连接，
// 并启动本地地址刷新循环。
func New(id *identity.Identity, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	if cfg.KeepAlivePeriod > 0 && cfg.KeepAlivePeriod >= cfg.MaxIdleTimeout {
		return nil, fmt.Errorf("%w: keep-alive period %v must be below idle timeout %v",
			types.ErrEngineInit, cfg.KeepAlivePeriod, cfg.MaxIdleTimeout)
	}

	serverTLS, clientTLS, err := newTLSConfigs(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrEngineInit, err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve bind addr %q: %w", types.ErrEngineInit, cfg.BindAddr, err)
	}

	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen udp: %w", types.ErrEngineInit, err)
	}

	quicConf := &quic.Config{
		MaxIdleTimeout:     cfg.MaxIdleTimeout,
		KeepAlivePeriod:    cfg.KeepAlivePeriod,
		MaxIncomingStreams: cfg.MaxIncomingStreams,
	}

	tr := &quic.Transport{Conn: udpConn}
	ln, err := tr.Listen(serverTLS, quicConf)
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("%w: quic listen: %w", types.ErrEngineInit, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:           cfg,
		identity:      id,
		localID:       id.NodeID(),
		clientTLS:     clientTLS,
		quicConf:      quicConf,
		udpConn:       udpConn,
		quicTransport: tr,
		listener:      ln,
		book:          newAddrBook(cfg.AddrBookSize, cfg.AddrBookTTL),
		addrs:         make(map[string]struct{}),
		subs:          make(map[int]chan types.AddrEvent),
		ctx:           ctx,
		cancel:        cancel,
	}

	// 初始地址快照
	e.refreshAddrs()

	e.wg.Add(1)
	go e.addrRefreshLoop()

	log.Info("engine started",
		"node_id", e.localID.ShortString(),
		"bind", udpConn.LocalAddr().String())
	return e, nil
}

// LocalID 本地节点身份
func (e *Engine) LocalID() types.NodeID {
	return e.localID
}

// Identity 本地身份（含私钥）
func (e *Engine) Identity() *identity.Identity {
	return e.identity
}

// ============================================================================
//                          拨号
// ============================================================================

// Connect 按身份拨号远端节点
//
// 依次尝试 addr.DirectHints 与地址提示簿中的已知地址。
// 握手成功后验证远端身份：不一致立即关闭连接并返回
// types.ErrIdentityMismatch，不再尝试其他地址。
func (e *Engine) Connect(ctx context.Context, addr types.NodeAddr) (interfaces.Connection, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, types.ErrEngineClosed
	}
	e.mu.Unlock()

	if addr.ID.IsEmpty() {
		return nil, fmt.Errorf("%w: empty node id", types.ErrInvalidMultiaddr)
	}
	if addr.ID.Equal(e.localID) {
		return nil, fmt.Errorf("cannot dial self (%s)", e.localID.ShortString())
	}

	// 直连提示优先，其次是提示簿中的历史地址
	hints := make([]string, 0, len(addr.DirectHints)+4)
	seen := make(map[string]struct{})
	for _, h := range append(append([]string{}, addr.DirectHints...), e.book.Lookup(addr.ID)...) {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		hints = append(hints, h)
	}

	if len(hints) == 0 {
		return nil, fmt.Errorf("%w: %w for %s",
			types.ErrPeerUnreachable, types.ErrNoAddressHints, addr.ID.ShortString())
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.DialTimeout)
		defer cancel()
	}

	var lastErr error
	for _, hint := range hints {
		conn, err := e.dialHint(ctx, addr.ID, hint)
		if err == nil {
			e.book.Add(addr.ID, []string{hint})
			log.Debug("dial succeeded",
				"remote", addr.ID.ShortString(), "addr", hint)
			return conn, nil
		}

		// 身份不匹配是致命错误：地址上有节点但不是目标节点
		if errors.Is(err, types.ErrIdentityMismatch) {
			return nil, err
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: dialing %s: %w",
			types.ErrDialTimeout, addr.ID.ShortString(), lastErr)
	}
	return nil, fmt.Errorf("%w: dialing %s: %w",
		types.ErrPeerUnreachable, addr.ID.ShortString(), lastErr)
}

// dialHint 向单个 host:port 地址拨号并验证身份
func (e *Engine) dialHint(ctx context.Context, expected types.NodeID, hint string) (interfaces.Connection, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", hint)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", hint, err)
	}

	qconn, err := e.quicTransport.Dial(ctx, udpAddr, e.clientTLS, e.quicConf)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", hint, err)
	}

	remoteID, err := extractNodeID(qconn.ConnectionState().TLS)
	if err != nil {
		qconn.CloseWithError(1, "identity extraction failed")
		return nil, err
	}

	if !remoteID.Equal(expected) {
		qconn.CloseWithError(1, "identity mismatch")
		return nil, fmt.Errorf("%w: expected %s, got %s at %s",
			types.ErrIdentityMismatch,
			expected.ShortString(), remoteID.ShortString(), hint)
	}

	return newConn(qconn, remoteID, types.DirOutbound), nil
}

// ============================================================================
//                          接受
// ============================================================================

// Accept 接受下一条入站连接
func (e *Engine) Accept(ctx context.Context) (interfaces.Connection, error) {
	for {
		qconn, err := e.listener.Accept(ctx)
		if err != nil {
			if e.isClosed() || errors.Is(err, quic.ErrServerClosed) {
				return nil, types.ErrEngineClosed
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: accept: %w", types.ErrEngineFailure, err)
		}

		remoteID, err := extractNodeID(qconn.ConnectionState().TLS)
		if err != nil {
			// 握手通过但无法提取身份的连接直接丢弃
			qconn.CloseWithError(1, "identity extraction failed")
			log.Warn("dropped inbound connection", "err", err)
			continue
		}

		// 记住对端来源地址，便于之后回拨
		e.book.Add(remoteID, []string{qconn.RemoteAddr().String()})

		log.Debug("inbound connection",
			"remote", remoteID.ShortString(), "addr", qconn.RemoteAddr())
		return newConn(qconn, remoteID, types.DirInbound), nil
	}
}

// ============================================================================
//                          地址发现
// ============================================================================

// DirectAddrs 当前已知的本地直连地址
func (e *Engine) DirectAddrs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.addrs))
	for a := range e.addrs {
		out = append(out, a)
	}
	return out
}

// AddrEvents 订阅本地地址变化
//
// 返回的通道先收到当前全部地址的新增事件，之后是增量变化。
// 引擎关闭时通道关闭。
func (e *Engine) AddrEvents() <-chan types.AddrEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	// 缓冲至少容纳全部当前地址：快照写入不会阻塞订阅调用
	ch := make(chan types.AddrEvent, len(e.addrs)+64)
	if e.closed {
		close(ch)
		return ch
	}

	for a := range e.addrs {
		ch <- types.AddrEvent{Addr: a}
	}

	e.seq++
	e.subs[e.seq] = ch
	return ch
}

// AddAddressHints 登记远端的直连地址提示
func (e *Engine) AddAddressHints(id types.NodeID, hints []string) {
	e.book.Add(id, hints)
}

// addrRefreshLoop 周期性刷新本地地址并广播变化
func (e *Engine) addrRefreshLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.AddrRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.refreshAddrs()
		}
	}
}

// refreshAddrs 重新枚举本地地址，对比差异并广播事件
func (e *Engine) refreshAddrs() {
	current := e.enumerateAddrs()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	var events []types.AddrEvent
	for a := range current {
		if _, ok := e.addrs[a]; !ok {
			events = append(events, types.AddrEvent{Addr: a})
		}
	}
	for a := range e.addrs {
		if _, ok := current[a]; !ok {
			events = append(events, types.AddrEvent{Addr: a, Removed: true})
		}
	}
	e.addrs = current

	for _, ev := range events {
		for _, ch := range e.subs {
			select {
			case ch <- ev:
			default:
				// 订阅者长期不消费时丢弃增量，地址可通过 DirectAddrs 兜底
				log.Debug("addr event dropped", "addr", ev.Addr, "removed", ev.Removed)
			}
		}
	}
}

// enumerateAddrs 枚举可用的本地 host:port 地址
//
// 绑定到具体 IP 时只有一个地址；绑定通配地址时
// 展开为所有启用网卡的地址（含回环，便于本机测试）。
func (e *Engine) enumerateAddrs() map[string]struct{} {
	out := make(map[string]struct{})

	local, ok := e.udpConn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return out
	}
	port := fmt.Sprintf("%d", local.Port)

	if !local.IP.IsUnspecified() {
		out[net.JoinHostPort(local.IP.String(), port)] = struct{}{}
		return out
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		log.Warn("enumerate interfaces", "err", err)
		return out
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP
			if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
				continue
			}
			out[net.JoinHostPort(ip.String(), port)] = struct{}{}
		}
	}
	return out
}

// ============================================================================
//                          关闭
// ============================================================================

// isClosed 引擎是否已关闭
func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close 关闭引擎
//
// 幂等。关闭监听器、QUIC 传输与 UDP 套接字，
// 所有地址事件订阅通道被关闭。
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	e.cancel()

	e.listener.Close()
	e.quicTransport.Close()
	err := e.udpConn.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	e.wg.Wait()

	for _, ch := range subs {
		close(ch)
	}

	log.Info("engine closed", "node_id", e.localID.ShortString())
	return err
}
