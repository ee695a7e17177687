package engine

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-engine-transport/pkg/interfaces"
	"github.com/dep2p/go-engine-transport/pkg/types"
)

// 确保实现了接口
var _ interfaces.Stream = (*Stream)(nil)

// streamResetCode 主动重置流时使用的错误码
const streamResetCode quic.StreamErrorCode = 0

// ============================================================================
//                          流
// ============================================================================

// Stream 引擎级流
//
// 包装一条 QUIC 双向流。各流相互独立：
// 重置或关闭一条流不影响同一连接上的其他流。
type Stream struct {
	qs quic.Stream
}

// newStream 创建流包装
func newStream(qs quic.Stream) *Stream {
	return &Stream{qs: qs}
}

// ID 流标识
func (s *Stream) ID() types.StreamID {
	return types.StreamID(s.qs.StreamID())
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.qs.Read(p)
	return n, mapStreamErr(err)
}

func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.qs.Write(p)
	return n, mapStreamErr(err)
}

// Close 关闭整条流（读写两侧）
func (s *Stream) Close() error {
	s.qs.CancelRead(streamResetCode)
	return mapStreamErr(s.qs.Close())
}

// CloseRead 关闭读侧
func (s *Stream) CloseRead() error {
	s.qs.CancelRead(streamResetCode)
	return nil
}

// CloseWrite 关闭写侧，向远端发送 FIN
func (s *Stream) CloseWrite() error {
	return mapStreamErr(s.qs.Close())
}

// Reset 异常终止流
//
// 远端读写将收到 types.ErrStreamReset。
func (s *Stream) Reset() error {
	s.qs.CancelWrite(streamResetCode)
	s.qs.CancelRead(streamResetCode)
	return nil
}

// SetDeadline 设置读写截止时间
func (s *Stream) SetDeadline(t time.Time) error {
	return s.qs.SetDeadline(t)
}

// SetReadDeadline 设置读截止时间
func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.qs.SetReadDeadline(t)
}

// SetWriteDeadline 设置写截止时间
func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.qs.SetWriteDeadline(t)
}

// ============================================================================
//                          错误映射
// ============================================================================

// mapStreamErr 将 QUIC 流错误映射为统一错误
func mapStreamErr(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}

	var streamErr *quic.StreamError
	if errors.As(err, &streamErr) {
		return errors.Join(types.ErrStreamReset, err)
	}

	return mapConnErr(err)
}

// mapConnErr 将 QUIC 连接错误映射为统一错误
func mapConnErr(err error) error {
	if err == nil {
		return nil
	}

	var idleErr *quic.IdleTimeoutError
	var appErr *quic.ApplicationError
	switch {
	case errors.As(err, &idleErr), errors.As(err, &appErr):
		return errors.Join(types.ErrConnectionClosed, err)
	case errors.Is(err, net.ErrClosed):
		return errors.Join(types.ErrConnectionClosed, err)
	}
	return err
}
