package interfaces

import (
	"context"

	"github.com/dep2p/go-engine-transport/pkg/types"
)

// ============================================================================
//                          监听器
// ============================================================================

// ListenerEventKind 监听器事件类型
type ListenerEventKind int

const (
	// EventNewAddress 新增一个可达地址
	EventNewAddress ListenerEventKind = iota

	// EventExpiredAddress 一个地址不再可达
	EventExpiredAddress

	// EventIncoming 新入站连接
	EventIncoming

	// EventError 引擎故障导致监听终止时的错误事件
	//
	// 错误是终态：此事件之后紧跟 EventClosed。
	EventError

	// EventClosed 监听器终止（终态事件）
	EventClosed
)

// String 返回事件类型名称
func (k ListenerEventKind) String() string {
	switch k {
	case EventNewAddress:
		return "new_address"
	case EventExpiredAddress:
		return "expired_address"
	case EventIncoming:
		return "incoming"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ListenerEvent 监听器产生的单个事件
//
// 按事件类型填充对应字段，其余字段为零值。
type ListenerEvent struct {
	Kind ListenerEventKind

	// Addr 对应 EventNewAddress / EventExpiredAddress
	Addr string

	// Conn 对应 EventIncoming
	Conn Connection

	// Err 对应 EventError / EventClosed（关闭原因，可为 nil）
	Err error
}

// Listener 入站连接监听器
//
// 事件按产生顺序交付，不丢弃：入站连接在被 Next 取走前
// 在内部队列中排队。监听器终止后 Next 返回
// types.ErrListenerClosed。
type Listener interface {
	// ID 监听器实例标识
	ID() string

	// Multiaddr 监听地址（/p2p/<本地 NodeID>）
	Multiaddr() types.Multiaddr

	// Next 取出下一个事件
	//
	// 阻塞直到有事件、ctx 取消或监听器终止。
	Next(ctx context.Context) (ListenerEvent, error)

	// State 当前状态
	State() types.ListenerState

	// Close 终止监听
	//
	// 幂等；队列中未取走的入站连接被关闭。
	Close() error
}

// ============================================================================
//                          传输门面
// ============================================================================

// Transport 按身份寻址的传输门面
//
// 对外只暴露 /p2p/<NodeID> 形式的地址；
// 实际路径选择（直连、打洞）由引擎负责。
type Transport interface {
	// LocalID 本地节点身份
	LocalID() types.NodeID

	// LocalMultiaddr 本地节点地址
	LocalMultiaddr() types.Multiaddr

	// Dial 按地址拨号远端节点
	//
	// raddr 必须是 /p2p/<NodeID> 形式，否则返回地址格式错误。
	Dial(ctx context.Context, raddr types.Multiaddr) (Connection, error)

	// Listen 开始监听入站连接
	//
	// laddr 为空时等同于监听本地身份地址；非空时必须是
	// 本地的 /p2p/<NodeID> 地址，其余输入返回地址格式错误。
	// 身份地址不携带位置信息，实际绑定端口由引擎决定。
	Listen(laddr types.Multiaddr) (Listener, error)

	// Ticket 生成包含本地身份与直连地址的连接票据
	Ticket() (string, error)

	// AddAddressHints 登记远端节点的直连地址提示
	AddAddressHints(addr types.NodeAddr)

	// Close 关闭传输（连同底层引擎）
	Close() error
}
