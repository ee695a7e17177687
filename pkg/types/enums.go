package types

// ============================================================================
//                              Direction - 连接方向
// ============================================================================

// Direction 连接方向
type Direction int

const (
	// DirUnknown 未知方向
	DirUnknown Direction = iota
	// DirInbound 入站连接
	DirInbound
	// DirOutbound 出站连接
	DirOutbound
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              CloseReason - 关闭原因
// ============================================================================

// CloseReason 连接关闭原因
//
// 空闲超时是正常关闭，必须与异常中断区分开来：
// 上层据此决定是否告警或重连。
type CloseReason int

const (
	// CloseReasonNone 尚未关闭
	CloseReasonNone CloseReason = iota
	// CloseReasonLocal 本端主动关闭
	CloseReasonLocal
	// CloseReasonRemote 对端主动关闭
	CloseReasonRemote
	// CloseReasonIdle 空闲超时（正常关闭）
	CloseReasonIdle
	// CloseReasonError 引擎检测到故障
	CloseReasonError
)

// String 返回关闭原因的字符串表示
func (r CloseReason) String() string {
	switch r {
	case CloseReasonLocal:
		return "local"
	case CloseReasonRemote:
		return "remote"
	case CloseReasonIdle:
		return "idle-timeout"
	case CloseReasonError:
		return "error"
	default:
		return "none"
	}
}

// IsNormal 是否属于正常关闭
//
// 本端关闭、对端关闭、空闲超时都是正常生命周期的一部分。
func (r CloseReason) IsNormal() bool {
	return r == CloseReasonLocal || r == CloseReasonRemote || r == CloseReasonIdle
}

// ============================================================================
//                              ListenerState - 监听器状态
// ============================================================================

// ListenerState 监听器状态机
//
// 状态转换仅由引擎就绪/故障事件驱动，与调用方的轮询节奏无关。
// Closed 是终态：监听器不可重启。
type ListenerState int

const (
	// ListenerIdle 尚未产生任何监听地址
	ListenerIdle ListenerState = iota
	// ListenerListening 至少持有一个可用监听地址
	ListenerListening
	// ListenerClosed 已关闭（终态）
	ListenerClosed
)

// String 返回状态的字符串表示
func (s ListenerState) String() string {
	switch s {
	case ListenerListening:
		return "listening"
	case ListenerClosed:
		return "closed"
	default:
		return "idle"
	}
}

// ============================================================================
//                              AddrEvent - 地址事件
// ============================================================================

// AddrEvent 引擎本地地址变化事件
//
// 引擎每发现一条新的可用路径（新直连地址、新分配的中继路径）
// 都会产生一个事件；路径失效时产生 Removed 事件。
type AddrEvent struct {
	// Addr 路径地址（"host:port"）
	Addr string

	// Removed true 表示该路径已失效
	Removed bool
}
