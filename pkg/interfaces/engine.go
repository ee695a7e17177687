package interfaces

import (
	"context"

	"github.com/dep2p/go-engine-transport/pkg/types"
)

// ============================================================================
//                          连通性引擎
// ============================================================================

// Engine 连通性引擎句柄
//
// 封装底层 QUIC 端点：共享 UDP 套接字、身份 TLS、
// 地址发现与地址提示簿。所有拨号与监听最终都经由引擎完成。
type Engine interface {
	// LocalID 本地节点身份
	LocalID() types.NodeID

	// Connect 按身份拨号远端节点
	//
	// 依次尝试 addr.DirectHints 与地址提示簿中的已知地址；
	// 无任何可用地址时返回 types.ErrNoAddressHints。
	// 握手后验证远端身份与 addr.ID 一致，不一致返回
	// types.ErrIdentityMismatch。
	Connect(ctx context.Context, addr types.NodeAddr) (Connection, error)

	// Accept 接受下一条入站连接
	//
	// 阻塞直到有新连接、ctx 取消或引擎关闭。
	// 引擎关闭后返回 types.ErrEngineClosed。
	Accept(ctx context.Context) (Connection, error)

	// DirectAddrs 当前已知的本地直连地址（host:port）
	DirectAddrs() []string

	// AddrEvents 本地地址变化事件流
	//
	// 每次订阅返回独立通道；引擎关闭时通道关闭。
	AddrEvents() <-chan types.AddrEvent

	// AddAddressHints 向地址提示簿登记远端的直连地址
	AddAddressHints(id types.NodeID, hints []string)

	// Close 关闭引擎
	//
	// 幂等；关闭后所有连接失效，Connect/Accept 返回
	// types.ErrEngineClosed。
	Close() error
}
