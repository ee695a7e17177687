package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-engine-transport/pkg/interfaces"
	"github.com/dep2p/go-engine-transport/pkg/types"
)

// 确保实现了接口
var _ interfaces.Listener = (*Listener)(nil)

// ============================================================================
//                          监听器
// ============================================================================

// defaultAcceptRate 入站连接速率上限（连接/秒）
const defaultAcceptRate = 64

// defaultAcceptBurst 入站连接突发上限
const defaultAcceptBurst = 128

// Listener 入站连接监听器
//
// 事件按产生顺序进入无界队列，在被 Next 取走前不丢弃。
// 入站速率超限时推迟接受而不是丢弃连接：握手完成的连接
// 绝不会被限流器关闭。
// 同一引擎上的多个监听器共享入站连接来源：
// 每条入站连接只交付给其中一个监听器。
type Listener struct {
	id         string
	engine     interfaces.Engine
	maxStreams int
	limiter    *rate.Limiter

	mu     sync.Mutex
	queue  []interfaces.ListenerEvent
	state  types.ListenerState
	notify chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewListener 创建监听器并开始接受入站连接
func NewListener(engine interfaces.Engine, maxStreams int) *Listener {
	return newListenerWithLimiter(engine, maxStreams,
		rate.NewLimiter(rate.Limit(defaultAcceptRate), defaultAcceptBurst))
}

// newListenerWithLimiter 以指定限流器创建监听器
func newListenerWithLimiter(engine interfaces.Engine, maxStreams int, limiter *rate.Limiter) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		id:         uuid.NewString(),
		engine:     engine,
		maxStreams: maxStreams,
		limiter:    limiter,
		state:      types.ListenerListening,
		notify:     make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	l.wg.Add(2)
	go l.acceptLoop()
	go l.addrLoop()

	log.Debug("listener started", "listener_id", l.id)
	return l
}

// ID 监听器实例标识
func (l *Listener) ID() string {
	return l.id
}

// Multiaddr 监听地址
func (l *Listener) Multiaddr() types.Multiaddr {
	return types.FromNodeID(l.engine.LocalID())
}

// State 当前状态
func (l *Listener) State() types.ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Next 取出下一个事件
//
// 队列为空时阻塞，直到有事件、ctx 取消或监听器终止。
// 终态事件 EventClosed 交付一次，之后返回
// types.ErrListenerClosed。
func (l *Listener) Next(ctx context.Context) (interfaces.ListenerEvent, error) {
	for {
		l.mu.Lock()
		if len(l.queue) > 0 {
			ev := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			return ev, nil
		}
		closed := l.state == types.ListenerClosed
		l.mu.Unlock()

		if closed {
			return interfaces.ListenerEvent{}, types.ErrListenerClosed
		}

		select {
		case <-ctx.Done():
			return interfaces.ListenerEvent{}, ctx.Err()
		case <-l.notify:
		case <-l.ctx.Done():
			// 终止信号到达后再走一轮，交付残留事件
		}
	}
}

// push 入队事件并唤醒等待者
func (l *Listener) push(ev interfaces.ListenerEvent) {
	l.mu.Lock()
	if l.state == types.ListenerClosed {
		// 终止后到达的入站连接直接关闭
		l.mu.Unlock()
		if ev.Conn != nil {
			ev.Conn.Close()
		}
		return
	}
	l.queue = append(l.queue, ev)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// acceptLoop 从引擎拉取入站连接
func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		// 节流不丢弃：超限时推迟下一次接受，
		// 已握手的连接在引擎队列里排队等待
		if err := l.limiter.Wait(l.ctx); err != nil {
			return
		}

		conn, err := l.engine.Accept(l.ctx)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			// 引擎侧的接受失败是终态：监听随之终止
			l.terminate(err)
			return
		}

		l.push(interfaces.ListenerEvent{
			Kind: interfaces.EventIncoming,
			Conn: newMuxedConn(conn, l.maxStreams),
		})
	}
}

// addrLoop 转发引擎的地址变化事件
func (l *Listener) addrLoop() {
	defer l.wg.Done()

	events := l.engine.AddrEvents()
	for {
		select {
		case <-l.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			kind := interfaces.EventNewAddress
			if ev.Removed {
				kind = interfaces.EventExpiredAddress
			}
			l.push(interfaces.ListenerEvent{Kind: kind, Addr: ev.Addr})
		}
	}
}

// terminate 进入终态：清理队列、入队 EventClosed
func (l *Listener) terminate(cause error) {
	l.mu.Lock()
	if l.state == types.ListenerClosed {
		l.mu.Unlock()
		return
	}
	l.state = types.ListenerClosed

	// 未取走的入站连接关闭，地址事件作废。
	// 带原因终止时先交付一次错误事件，再交付终态事件。
	pending := l.queue
	l.queue = nil
	if cause != nil {
		l.queue = append(l.queue, interfaces.ListenerEvent{Kind: interfaces.EventError, Err: cause})
	}
	l.queue = append(l.queue, interfaces.ListenerEvent{Kind: interfaces.EventClosed, Err: cause})
	l.mu.Unlock()

	for _, ev := range pending {
		if ev.Conn != nil {
			ev.Conn.Close()
		}
	}

	l.cancel()
	select {
	case l.notify <- struct{}{}:
	default:
	}

	log.Debug("listener closed", "listener_id", l.id)
}

// Close 终止监听
//
// 幂等；队列中未取走的入站连接被关闭，
// Next 交付一次 EventClosed 后返回 types.ErrListenerClosed。
func (l *Listener) Close() error {
	l.terminate(nil)
	l.wg.Wait()
	return nil
}
