package enginetransport

import "github.com/dep2p/go-engine-transport/pkg/types"

// ============================================================================
//                          错误导出
// ============================================================================

// 统一错误在 pkg/types 中定义，这里按类别重新导出，
// 调用方无需直接依赖内部包即可用 errors.Is 判断。
var (
	// 地址错误
	ErrEmptyMultiaddr      = types.ErrEmptyMultiaddr
	ErrNotMultiaddrFormat  = types.ErrNotMultiaddrFormat
	ErrInvalidMultiaddr    = types.ErrInvalidMultiaddr
	ErrUnsupportedProtocol = types.ErrUnsupportedProtocol

	// 拨号错误
	ErrDialTimeout      = types.ErrDialTimeout
	ErrPeerUnreachable  = types.ErrPeerUnreachable
	ErrIdentityMismatch = types.ErrIdentityMismatch
	ErrNoAddressHints   = types.ErrNoAddressHints

	// 连接与流错误
	ErrConnectionClosed   = types.ErrConnectionClosed
	ErrStreamClosed       = types.ErrStreamClosed
	ErrStreamReset        = types.ErrStreamReset
	ErrStreamLimitReached = types.ErrStreamLimitReached

	// 监听与引擎错误
	ErrListenerClosed = types.ErrListenerClosed
	ErrEngineFailure  = types.ErrEngineFailure
	ErrEngineClosed   = types.ErrEngineClosed
	ErrEngineInit     = types.ErrEngineInit
)
