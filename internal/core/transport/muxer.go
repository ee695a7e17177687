// Package transport 提供按身份寻址的拨号器、监听器与流复用
//
// 本包位于引擎之上：引擎负责路径选择与身份验证，
// 本包负责地址翻译、入站事件交付与流生命周期管理。
package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-engine-transport/internal/util/logger"
	"github.com/dep2p/go-engine-transport/pkg/interfaces"
	"github.com/dep2p/go-engine-transport/pkg/types"
)

var log = logger.Logger("transport")

// streamPreamble 流建立时发送的单字节前导
//
// QUIC 流是惰性的：仅打开流不产生任何网络数据，
// 对端的 AcceptStream 不会返回。打开方先写一个字节，
// 接受方读掉它，保证流在两端同时可见。
const streamPreamble byte = 0x00

// DefaultMaxStreams 单连接本地流数默认上限
const DefaultMaxStreams = 256

// 确保实现了接口
var _ interfaces.Connection = (*muxedConn)(nil)

// ============================================================================
//                          复用连接
// ============================================================================

// muxedConn 带流管理的连接
//
// 包装引擎连接：本地打开的流计数并受上限约束，
// 流建立时处理单字节前导。
type muxedConn struct {
	inner      interfaces.Connection
	maxStreams int64

	// localStreams 本地打开且未关闭的流数
	localStreams atomic.Int64
}

// newMuxedConn 包装引擎连接
func newMuxedConn(inner interfaces.Connection, maxStreams int) *muxedConn {
	if maxStreams <= 0 {
		maxStreams = DefaultMaxStreams
	}
	return &muxedConn{inner: inner, maxStreams: int64(maxStreams)}
}

// RemoteID 远端节点身份
func (c *muxedConn) RemoteID() types.NodeID {
	return c.inner.RemoteID()
}

// RemoteMultiaddr 远端节点地址
func (c *muxedConn) RemoteMultiaddr() types.Multiaddr {
	return c.inner.RemoteMultiaddr()
}

// Direction 连接方向
func (c *muxedConn) Direction() types.Direction {
	return c.inner.Direction()
}

// OpenStream 打开出站流
//
// 写入前导字节后返回；达到本地流数上限时返回
// types.ErrStreamLimitReached。
func (c *muxedConn) OpenStream(ctx context.Context) (interfaces.Stream, error) {
	if c.inner.IsClosed() {
		return nil, types.ErrConnectionClosed
	}

	if c.localStreams.Add(1) > c.maxStreams {
		c.localStreams.Add(-1)
		return nil, fmt.Errorf("%w: %d local streams open",
			types.ErrStreamLimitReached, c.maxStreams)
	}

	s, err := c.inner.OpenStream(ctx)
	if err != nil {
		c.localStreams.Add(-1)
		return nil, err
	}

	if _, err := s.Write([]byte{streamPreamble}); err != nil {
		c.localStreams.Add(-1)
		s.Reset()
		return nil, fmt.Errorf("write stream preamble: %w", err)
	}

	return &muxedStream{Stream: s, release: c.releaseStream}, nil
}

// AcceptStream 接受入站流
//
// 读掉打开方写入的前导字节后返回。
func (c *muxedConn) AcceptStream(ctx context.Context) (interfaces.Stream, error) {
	s, err := c.inner.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}

	var preamble [1]byte
	if _, err := s.Read(preamble[:]); err != nil {
		s.Reset()
		return nil, fmt.Errorf("read stream preamble: %w", err)
	}

	// 入站流不计入本地上限，由引擎的入站流配额约束
	return &muxedStream{Stream: s, release: func() {}}, nil
}

// releaseStream 本地流关闭时归还配额
func (c *muxedConn) releaseStream() {
	c.localStreams.Add(-1)
}

// Close 关闭连接
func (c *muxedConn) Close() error {
	return c.inner.Close()
}

// IsClosed 连接是否已关闭
func (c *muxedConn) IsClosed() bool {
	return c.inner.IsClosed()
}

// CloseReason 连接关闭原因
func (c *muxedConn) CloseReason() types.CloseReason {
	return c.inner.CloseReason()
}

// ============================================================================
//                          复用流
// ============================================================================

// muxedStream 带配额归还的流
//
// Close/Reset 只归还一次配额，重复关闭安全。
type muxedStream struct {
	interfaces.Stream

	once    sync.Once
	release func()
}

// Close 关闭整条流
func (s *muxedStream) Close() error {
	err := s.Stream.Close()
	s.once.Do(s.release)
	return err
}

// Reset 异常终止流
func (s *muxedStream) Reset() error {
	err := s.Stream.Reset()
	s.once.Do(s.release)
	return err
}
