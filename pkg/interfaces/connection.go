// Package interfaces 定义核心组件间的接口契约
//
// 接口位于独立包中，避免实现包之间的循环依赖：
// 上层（传输门面、发现覆盖网）只依赖接口，不依赖具体实现。
package interfaces

import (
	"context"
	"io"
	"time"

	"github.com/dep2p/go-engine-transport/pkg/types"
)

// ============================================================================
//                          连接与流
// ============================================================================

// Connection 与单个远端节点的已验证连接
//
// 身份保证：连接建立后 RemoteID 即为 TLS 握手验证过的节点身份，
// 上层无需再次验证。
type Connection interface {
	// RemoteID 远端节点身份
	RemoteID() types.NodeID

	// RemoteMultiaddr 远端节点地址（/p2p/<NodeID> 形式）
	RemoteMultiaddr() types.Multiaddr

	// Direction 连接方向（主动拨号 / 被动接受）
	Direction() types.Direction

	// OpenStream 打开出站流
	//
	// 连接已关闭时返回 types.ErrConnectionClosed；
	// 本地流数达到上限时返回 types.ErrStreamLimitReached。
	OpenStream(ctx context.Context) (Stream, error)

	// AcceptStream 接受远端打开的入站流
	//
	// 阻塞直到有新流到达、ctx 取消或连接关闭。
	AcceptStream(ctx context.Context) (Stream, error)

	// Close 主动关闭连接
	//
	// 幂等；已打开的流全部失效。
	Close() error

	// IsClosed 连接是否已关闭
	IsClosed() bool

	// CloseReason 连接关闭原因
	//
	// 连接未关闭时返回 types.CloseReasonNone。
	CloseReason() types.CloseReason
}

// Stream 连接内的双向字节流
//
// 各流相互独立：关闭或重置一条流不影响同一连接上的其他流。
type Stream interface {
	io.Reader
	io.Writer

	// ID 流在连接内的标识
	ID() types.StreamID

	// Close 关闭整条流（读写两侧）
	Close() error

	// CloseRead 关闭读侧，丢弃后续到达的数据
	CloseRead() error

	// CloseWrite 关闭写侧，向远端发送 FIN
	CloseWrite() error

	// Reset 异常终止流
	//
	// 远端的读写将收到 types.ErrStreamReset。
	Reset() error

	// SetDeadline 设置读写截止时间
	SetDeadline(t time.Time) error

	// SetReadDeadline 设置读截止时间
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline 设置写截止时间
	SetWriteDeadline(t time.Time) error
}
