package dht

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-engine-transport/internal/util/logger"
	"github.com/dep2p/go-engine-transport/pkg/interfaces"
	"github.com/dep2p/go-engine-transport/pkg/types"
)

var log = logger.Logger("dht")

// ErrNotFound 键不存在
var ErrNotFound = errors.New("dht: key not found")

// ============================================================================
//                          配置
// ============================================================================

// Config 覆盖网配置
type Config struct {
	// K 桶容量与存储副本数
	K int

	// Alpha 每轮查找的并发度
	Alpha int

	// RequestTimeout 单次请求超时
	RequestTimeout time.Duration

	// DataDir 持久化目录，为空时使用内存存储
	DataDir string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		K:              defaultBucketSize,
		Alpha:          3,
		RequestTimeout: 10 * time.Second,
	}
}

// withDefaults 补齐零值字段
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.K <= 0 {
		c.K = def.K
	}
	if c.Alpha <= 0 {
		c.Alpha = def.Alpha
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	return c
}

// ============================================================================
//                          覆盖网节点
// ============================================================================

// Transport 覆盖网需要的传输能力
//
// 根包的传输门面满足该接口。
type Transport interface {
	LocalID() types.NodeID
	DirectAddrs() []string
	DialAddr(ctx context.Context, addr types.NodeAddr) (interfaces.Connection, error)
	DialTicket(ctx context.Context, ticket string) (interfaces.Connection, error)
	Listen(laddr types.Multiaddr) (interfaces.Listener, error)
	AddAddressHints(addr types.NodeAddr)
}

// DHT 发现覆盖网节点
type DHT struct {
	cfg     Config
	tp      Transport
	localID types.NodeID
	store   ValueStore
	rt      *routingTable

	mu     sync.Mutex
	conns  map[types.NodeID]interfaces.Connection
	ln     interfaces.Listener
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建覆盖网节点
//
// cfg.DataDir 非空时使用 Badger 持久化存储，否则使用内存存储。
func New(tp Transport, cfg Config) (*DHT, error) {
	cfg = cfg.withDefaults()

	var store ValueStore
	if cfg.DataDir != "" {
		var err error
		store, err = NewBadgerStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
	} else {
		store = NewMemoryStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &DHT{
		cfg:     cfg,
		tp:      tp,
		localID: tp.LocalID(),
		store:   store,
		rt:      newRoutingTable(tp.LocalID(), cfg.K),
		conns:   make(map[types.NodeID]interfaces.Connection),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start 开始服务入站请求
func (d *DHT) Start() error {
	ln, err := d.tp.Listen("")
	if err != nil {
		return fmt.Errorf("dht listen: %w", err)
	}

	d.mu.Lock()
	d.ln = ln
	d.mu.Unlock()

	d.wg.Add(1)
	go d.eventLoop(ln)

	log.Info("dht started", "node_id", d.localID.ShortString())
	return nil
}

// RoutingSize 路由表中的节点数
func (d *DHT) RoutingSize() int {
	return d.rt.Len()
}

// selfRecord 本节点的路由记录
func (d *DHT) selfRecord() PeerRecord {
	return newPeerRecord(d.localID, d.tp.DirectAddrs())
}

// ============================================================================
//                          引导
// ============================================================================

// Bootstrap 凭连接票据加入覆盖网
//
// 拨通引导节点后以本节点为目标做一次 FIND_NODE，
// 填充路由表。
func (d *DHT) Bootstrap(ctx context.Context, ticket string) error {
	tk, err := types.DecodeConnectionTicket(ticket)
	if err != nil {
		return err
	}
	addr, err := tk.NodeAddr()
	if err != nil {
		return err
	}

	conn, err := d.tp.DialTicket(ctx, ticket)
	if err != nil {
		return fmt.Errorf("bootstrap dial: %w", err)
	}

	d.mu.Lock()
	d.conns[conn.RemoteID()] = conn
	d.mu.Unlock()

	rec := newPeerRecord(addr.ID, addr.DirectHints)
	d.rt.Add(rec)

	// 自查找填充路由表
	if _, err := d.findNode(ctx, [32]byte(d.localID)); err != nil {
		return fmt.Errorf("bootstrap lookup: %w", err)
	}

	log.Info("bootstrap complete",
		"via", addr.ID.ShortString(), "routing_size", d.rt.Len())
	return nil
}

// ============================================================================
//                          键值操作
// ============================================================================

// Put 存储键值
//
// 本地总是保留一份，并复制到距键最近的 K 个节点。
func (d *DHT) Put(ctx context.Context, key string, value []byte) error {
	if err := d.store.Put(key, value); err != nil {
		return err
	}

	target := keyDigest(key)
	closest, err := d.findNode(ctx, target)
	if err != nil {
		return err
	}

	req := &Message{
		Type:  MsgStore,
		Key:   key,
		Value: value,
	}

	stored := 0
	for _, rec := range closest {
		resp, err := d.request(ctx, rec, req)
		if err != nil {
			continue
		}
		if resp.Type == MsgStoreResult && resp.Error == "" {
			stored++
		}
	}

	log.Debug("value stored", "key", key, "replicas", stored)
	return nil
}

// Get 读取键值
//
// 先查本地，未命中时沿 XOR 距离迭代查找。
func (d *DHT) Get(ctx context.Context, key string) ([]byte, error) {
	if value, ok, err := d.store.Get(key); err != nil {
		return nil, err
	} else if ok {
		return value, nil
	}

	value, _, err := d.lookup(ctx, keyDigest(key), key)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return value, nil
}

// findNode 查找距目标最近的节点集合
func (d *DHT) findNode(ctx context.Context, target [32]byte) ([]PeerRecord, error) {
	_, peers, err := d.lookup(ctx, target, "")
	return peers, err
}

// ============================================================================
//                          迭代查找
// ============================================================================

// lookup 迭代式查找
//
// key 非空时执行 FIND_VALUE，命中即返回值；
// 否则执行 FIND_NODE，返回距目标最近的 K 个节点。
// 无新节点可查询且无更近结果时收敛。
func (d *DHT) lookup(ctx context.Context, target [32]byte, key string) ([]byte, []PeerRecord, error) {
	shortlist := make(map[string]PeerRecord)
	queried := make(map[string]bool)

	for _, rec := range d.rt.Closest(target, d.cfg.K) {
		shortlist[rec.NodeID] = rec
	}
	if len(shortlist) == 0 {
		return nil, nil, nil
	}

	for round := 0; round < 16; round++ {
		batch := d.nextBatch(shortlist, queried, target)
		if len(batch) == 0 {
			break
		}

		for _, rec := range batch {
			queried[rec.NodeID] = true

			var req *Message
			if key != "" {
				req = &Message{Type: MsgFindValue, Key: key}
			} else {
				req = &Message{Type: MsgFindNode, Target: targetString(target)}
			}

			resp, err := d.request(ctx, rec, req)
			if err != nil {
				delete(shortlist, rec.NodeID)
				continue
			}

			if key != "" && resp.Found {
				return resp.Value, nil, nil
			}
			for _, p := range resp.Peers {
				if p.NodeID == d.localID.String() {
					continue
				}
				d.rt.Add(p)
				if _, ok := shortlist[p.NodeID]; !ok {
					shortlist[p.NodeID] = p
				}
			}

			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
		}
	}

	out := make([]PeerRecord, 0, len(shortlist))
	for _, rec := range shortlist {
		out = append(out, rec)
	}
	sortByDistance(out, target)
	if len(out) > d.cfg.K {
		out = out[:d.cfg.K]
	}
	return nil, out, nil
}

// nextBatch 选出下一轮要查询的最近未查询节点
func (d *DHT) nextBatch(shortlist map[string]PeerRecord, queried map[string]bool, target [32]byte) []PeerRecord {
	candidates := make([]PeerRecord, 0, len(shortlist))
	for _, rec := range shortlist {
		if !queried[rec.NodeID] {
			candidates = append(candidates, rec)
		}
	}
	sortByDistance(candidates, target)
	if len(candidates) > d.cfg.Alpha {
		candidates = candidates[:d.cfg.Alpha]
	}
	return candidates
}

// sortByDistance 按与目标的 XOR 距离排序
func sortByDistance(recs []PeerRecord, target [32]byte) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0; j-- {
			dj := distance(target, recordDigest(recs[j]))
			dp := distance(target, recordDigest(recs[j-1]))
			if bytes.Compare(dj[:], dp[:]) < 0 {
				recs[j], recs[j-1] = recs[j-1], recs[j]
			} else {
				break
			}
		}
	}
}

// targetString FIND_NODE 目标的线上表示
func targetString(target [32]byte) string {
	return types.NodeID(target).String()
}

// ============================================================================
//                          请求发送
// ============================================================================

// request 向节点发起一次请求并等待应答
//
// 一条流承载一次请求与应答。失败的节点从路由表
// 与连接缓存中移除，交给后续通信重新发现。
func (d *DHT) request(ctx context.Context, rec PeerRecord, req *Message) (*Message, error) {
	addr, err := rec.NodeAddr()
	if err != nil {
		return nil, err
	}

	conn, err := d.getConn(ctx, addr)
	if err != nil {
		d.rt.Remove(addr.ID)
		return nil, err
	}

	req.RequestID = uuid.NewString()
	req.From = d.localID.String()
	req.FromHints = d.tp.DirectAddrs()

	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	s, err := conn.OpenStream(reqCtx)
	if err != nil {
		d.dropConn(addr.ID)
		d.rt.Remove(addr.ID)
		return nil, err
	}
	defer s.Close()

	s.SetDeadline(time.Now().Add(d.cfg.RequestTimeout))

	if err := writeMessage(s, req); err != nil {
		d.dropConn(addr.ID)
		d.rt.Remove(addr.ID)
		return nil, err
	}
	if err := s.CloseWrite(); err != nil {
		return nil, err
	}

	resp, err := readMessage(s)
	if err != nil {
		d.dropConn(addr.ID)
		d.rt.Remove(addr.ID)
		return nil, err
	}

	d.rt.Add(newPeerRecord(addr.ID, addr.DirectHints))
	return resp, nil
}

// getConn 取出或建立到节点的连接
func (d *DHT) getConn(ctx context.Context, addr types.NodeAddr) (interfaces.Connection, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, types.ErrEngineClosed
	}
	if conn, ok := d.conns[addr.ID]; ok && !conn.IsClosed() {
		d.mu.Unlock()
		return conn, nil
	}
	d.mu.Unlock()

	conn, err := d.tp.DialAddr(ctx, addr)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.conns[addr.ID] = conn
	d.mu.Unlock()
	return conn, nil
}

// dropConn 丢弃缓存的连接
func (d *DHT) dropConn(id types.NodeID) {
	d.mu.Lock()
	conn, ok := d.conns[id]
	if ok {
		delete(d.conns, id)
	}
	d.mu.Unlock()

	if ok {
		conn.Close()
	}
}

// ============================================================================
//                          关闭
// ============================================================================

// Close 关闭覆盖网节点
//
// 幂等。终止监听、关闭全部缓存连接与存储。
func (d *DHT) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	ln := d.ln
	conns := d.conns
	d.conns = nil
	d.mu.Unlock()

	d.cancel()
	if ln != nil {
		ln.Close()
	}
	for _, conn := range conns {
		conn.Close()
	}
	d.wg.Wait()

	err := d.store.Close()
	log.Info("dht closed", "node_id", d.localID.ShortString())
	return err
}
