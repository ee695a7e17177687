package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-engine-transport/pkg/interfaces"
	"github.com/dep2p/go-engine-transport/pkg/types"
)

// 确保实现了接口
var _ interfaces.Connection = (*Conn)(nil)

// ============================================================================
//                          连接
// ============================================================================

// Conn 引擎级连接
//
// 包装一条 QUIC 连接，远端身份已在 TLS 握手中验证。
type Conn struct {
	qconn  quic.Connection
	remote types.NodeID
	dir    types.Direction

	closeOnce sync.Once

	// localClosed 本地是否主动调用过 Close
	mu          sync.Mutex
	localClosed bool
	reason      types.CloseReason
}

// newConn 创建连接包装
func newConn(qconn quic.Connection, remote types.NodeID, dir types.Direction) *Conn {
	return &Conn{
		qconn:  qconn,
		remote: remote,
		dir:    dir,
	}
}

// RemoteID 远端节点身份
func (c *Conn) RemoteID() types.NodeID {
	return c.remote
}

// RemoteMultiaddr 远端节点地址
func (c *Conn) RemoteMultiaddr() types.Multiaddr {
	return types.FromNodeID(c.remote)
}

// Direction 连接方向
func (c *Conn) Direction() types.Direction {
	return c.dir
}

// RemoteNetAddr 远端的底层网络地址（host:port）
func (c *Conn) RemoteNetAddr() string {
	return c.qconn.RemoteAddr().String()
}

// OpenStream 打开出站流
func (c *Conn) OpenStream(ctx context.Context) (interfaces.Stream, error) {
	if c.IsClosed() {
		return nil, types.ErrConnectionClosed
	}
	qs, err := c.qconn.OpenStreamSync(ctx)
	if err != nil {
		return nil, mapConnErr(err)
	}
	return newStream(qs), nil
}

// AcceptStream 接受入站流
func (c *Conn) AcceptStream(ctx context.Context) (interfaces.Stream, error) {
	qs, err := c.qconn.AcceptStream(ctx)
	if err != nil {
		return nil, mapConnErr(err)
	}
	return newStream(qs), nil
}

// Close 主动关闭连接
//
// 幂等；使用错误码 0 表示正常关闭。
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.localClosed = true
		c.mu.Unlock()
		err = c.qconn.CloseWithError(0, "connection closed")
	})
	return err
}

// IsClosed 连接是否已关闭
func (c *Conn) IsClosed() bool {
	select {
	case <-c.qconn.Context().Done():
		return true
	default:
		return false
	}
}

// CloseReason 连接关闭原因
//
// 从 QUIC 连接的终止原因分类：
//   - 本地主动关闭 → CloseReasonLocal
//   - 远端错误码 0 关闭 → CloseReasonRemote
//   - 空闲超时 → CloseReasonIdle
//   - 其他 → CloseReasonError
func (c *Conn) CloseReason() types.CloseReason {
	if !c.IsClosed() {
		return types.CloseReasonNone
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reason != types.CloseReasonNone {
		return c.reason
	}
	c.reason = classifyClose(context.Cause(c.qconn.Context()), c.localClosed)
	return c.reason
}

// classifyClose 将 QUIC 终止原因映射为 CloseReason
func classifyClose(cause error, localClosed bool) types.CloseReason {
	var idleErr *quic.IdleTimeoutError
	if errors.As(cause, &idleErr) {
		return types.CloseReasonIdle
	}

	var appErr *quic.ApplicationError
	if errors.As(cause, &appErr) {
		switch {
		case appErr.Remote && appErr.ErrorCode == 0:
			return types.CloseReasonRemote
		case appErr.Remote:
			return types.CloseReasonError
		case localClosed || appErr.ErrorCode == 0:
			return types.CloseReasonLocal
		}
		return types.CloseReasonError
	}

	if localClosed {
		return types.CloseReasonLocal
	}
	return types.CloseReasonError
}
