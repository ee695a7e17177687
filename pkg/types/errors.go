package types

// 本文件定义所有公共错误。适配层只报告终态：
// 引擎内部的中继回退、打洞重试等瞬态问题永远不会以错误形式上浮。

import "errors"

// ============================================================================
//                              拨号相关错误
// ============================================================================

var (
	// ErrDialTimeout 拨号超时
	ErrDialTimeout = errors.New("dial timeout")

	// ErrPeerUnreachable 对端不可达
	//
	// 引擎穷尽所有路径（直连提示、地址簿）后仍无法建立连接。
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrIdentityMismatch 身份不匹配
	//
	// 握手成功但对端出示的身份与拨号目标不一致。
	// 此错误总是致命的，绝不重试：防止静默连上占用陈旧地址的冒名节点。
	ErrIdentityMismatch = errors.New("remote identity does not match dialed target")
)

// ============================================================================
//                              连接/流相关错误
// ============================================================================

var (
	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("connection closed")

	// ErrStreamClosed 流已关闭
	ErrStreamClosed = errors.New("stream closed")

	// ErrStreamReset 流已重置
	ErrStreamReset = errors.New("stream reset")

	// ErrStreamLimitReached 达到每连接最大流数
	ErrStreamLimitReached = errors.New("stream limit reached")
)

// ============================================================================
//                              监听相关错误
// ============================================================================

var (
	// ErrListenerClosed 监听器已关闭
	//
	// 监听器关闭后事件序列永久终止，恢复监听必须创建新监听器。
	ErrListenerClosed = errors.New("listener closed")

	// ErrEngineFailure 引擎故障导致监听终止
	ErrEngineFailure = errors.New("engine failure")
)

// ============================================================================
//                              引擎相关错误
// ============================================================================

var (
	// ErrEngineClosed 引擎已关闭
	ErrEngineClosed = errors.New("engine closed")

	// ErrEngineInit 引擎初始化失败（密钥或 socket 绑定失败）
	ErrEngineInit = errors.New("engine init failed")

	// ErrNoAddressHints 没有任何可用的直连地址提示
	ErrNoAddressHints = errors.New("no address hints for peer")
)
