package transport

import (
	"context"
	"fmt"

	"github.com/dep2p/go-engine-transport/pkg/interfaces"
	"github.com/dep2p/go-engine-transport/pkg/types"
)

// ============================================================================
//                          拨号器
// ============================================================================

// Dialer 按身份寻址的拨号器
//
// 只接受 /p2p/<NodeID> 形式的地址，路径选择交给引擎。
// 不做拨号去重：并发拨同一节点产生独立连接，
// 由上层按需复用。
type Dialer struct {
	engine     interfaces.Engine
	maxStreams int
}

// NewDialer 创建拨号器
func NewDialer(engine interfaces.Engine, maxStreams int) *Dialer {
	return &Dialer{engine: engine, maxStreams: maxStreams}
}

// Dial 按地址拨号远端节点
//
// raddr 必须是 /p2p/<NodeID>；其他 multiaddr 协议
// 返回 types.ErrUnsupportedProtocol。
func (d *Dialer) Dial(ctx context.Context, raddr types.Multiaddr) (interfaces.Connection, error) {
	parsed, err := types.ParseMultiaddr(raddr.String())
	if err != nil {
		return nil, err
	}

	id := parsed.PeerID()
	if id.Equal(d.engine.LocalID()) {
		return nil, fmt.Errorf("cannot dial self (%s)", id.ShortString())
	}

	conn, err := d.engine.Connect(ctx, types.NewNodeAddr(id))
	if err != nil {
		return nil, err
	}

	log.Debug("dialed peer", "remote", id.ShortString())
	return newMuxedConn(conn, d.maxStreams), nil
}

// DialAddr 按引擎地址拨号（带直连提示）
//
// 票据引导场景使用：提示随地址一起传给引擎。
func (d *Dialer) DialAddr(ctx context.Context, addr types.NodeAddr) (interfaces.Connection, error) {
	conn, err := d.engine.Connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	return newMuxedConn(conn, d.maxStreams), nil
}
