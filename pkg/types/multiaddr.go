package types

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
//                              Multiaddr - 身份地址
// ============================================================================

// Multiaddr 身份寻址的 multiaddr（值对象）
//
// 本传输的地址是纯身份地址：单一 /p2p/<NodeID> 段，不包含 host/port。
// 到对端的实际网络路径（直连、中继、打洞）由底层连接引擎自行解析，
// 上层协议只见到稳定的身份地址。
//
// 约束：
//   - String() 必须始终返回 canonical multiaddr（以 "/" 开头）
//   - 编码是确定且无损的：不同的 NodeID 不会产生相同的地址
//   - 非法输入必须显式失败，绝不静默修正
//
// 格式示例：
//   - /p2p/5Q2STWvBFnfXU7kW7BMeWxFeyHbFQcauuSsNnsC28jqs
type Multiaddr string

// Multiaddr 错误定义
var (
	// ErrInvalidMultiaddr 无效的 multiaddr 格式
	ErrInvalidMultiaddr = errors.New("invalid multiaddr format")

	// ErrEmptyMultiaddr 空 multiaddr
	ErrEmptyMultiaddr = errors.New("empty multiaddr")

	// ErrNotMultiaddrFormat 不是 multiaddr 格式（不以 / 开头）
	ErrNotMultiaddrFormat = errors.New("not multiaddr format: must start with /")

	// ErrUnsupportedProtocol 不支持的协议段
	//
	// 本传输只接受 /p2p/<NodeID> 形式的身份地址。
	ErrUnsupportedProtocol = errors.New("unsupported multiaddr protocol: only /p2p/<NodeID> is accepted")
)

// ============================================================================
//                              解析/构建
// ============================================================================

// ParseMultiaddr 解析并校验身份地址
//
// 仅接受单段 /p2p/<NodeID> 格式。任何其他 scheme（ip4/tcp/dns 等）
// 都返回 ErrUnsupportedProtocol：位置寻址不属于本传输的地址空间。
//
// 示例：
//   - "/p2p/5Q2STWvB..." → Multiaddr
//   - "/ip4/1.2.3.4/udp/4001" → ErrUnsupportedProtocol
//   - "1.2.3.4:4001" → ErrNotMultiaddrFormat
func ParseMultiaddr(s string) (Multiaddr, error) {
	if s == "" {
		return "", ErrEmptyMultiaddr
	}

	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, "/") {
		return "", ErrNotMultiaddrFormat
	}

	parts := strings.Split(s, "/")
	// 期望形如 ["", "p2p", "<NodeID>"]
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected single /p2p/<NodeID> segment", ErrInvalidMultiaddr)
	}

	if parts[1] != "p2p" {
		return "", fmt.Errorf("%w: got %q", ErrUnsupportedProtocol, parts[1])
	}

	nodeID, err := ParseNodeID(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad node ID %q", ErrInvalidMultiaddr, parts[2])
	}

	// 规范化：以解析出的 NodeID 重新渲染，保证 canonical 形式
	return FromNodeID(nodeID), nil
}

// MustParseMultiaddr 解析 multiaddr，失败时 panic
//
// 仅用于常量初始化或测试代码，生产代码应使用 ParseMultiaddr。
func MustParseMultiaddr(s string) Multiaddr {
	ma, err := ParseMultiaddr(s)
	if err != nil {
		panic(fmt.Sprintf("MustParseMultiaddr(%q): %v", s, err))
	}
	return ma
}

// FromNodeID 从 NodeID 构建身份地址
func FromNodeID(id NodeID) Multiaddr {
	if id.IsEmpty() {
		return ""
	}
	return Multiaddr("/p2p/" + id.String())
}

// ============================================================================
//                              访问方法
// ============================================================================

// String 返回 canonical multiaddr 字符串
func (m Multiaddr) String() string {
	return string(m)
}

// PeerID 返回嵌入的 NodeID
//
// 对于非法或空地址返回 EmptyNodeID。
func (m Multiaddr) PeerID() NodeID {
	if m.IsEmpty() {
		return EmptyNodeID
	}

	parts := strings.Split(string(m), "/")
	if len(parts) != 3 || parts[1] != "p2p" {
		return EmptyNodeID
	}

	nodeID, err := ParseNodeID(parts[2])
	if err != nil {
		return EmptyNodeID
	}
	return nodeID
}

// Bytes 返回地址的字节表示
func (m Multiaddr) Bytes() []byte {
	return []byte(m)
}

// IsEmpty 是否为空
func (m Multiaddr) IsEmpty() bool {
	return m == ""
}

// Equal 比较两个 Multiaddr 是否相等
func (m Multiaddr) Equal(other Multiaddr) bool {
	return m == other
}

// ============================================================================
//                              NodeAddr - 引擎级地址
// ============================================================================

// NodeAddr 引擎级节点地址
//
// 在身份之外携带可选的直连路径提示。提示只是加速手段：
// 为空时引擎依赖地址簿或上层发现机制解析路径。
// 适配层边界之外不应解读此结构。
type NodeAddr struct {
	// ID 目标节点身份（必需）
	ID NodeID

	// DirectHints 直连地址提示（"host:port"，可选）
	DirectHints []string
}

// NewNodeAddr 创建仅含身份的引擎地址
func NewNodeAddr(id NodeID) NodeAddr {
	return NodeAddr{ID: id}
}

// Multiaddr 返回对应的身份地址
func (a NodeAddr) Multiaddr() Multiaddr {
	return FromNodeID(a.ID)
}

// String 返回可读表示（身份 + 提示数）
func (a NodeAddr) String() string {
	if len(a.DirectHints) == 0 {
		return a.Multiaddr().String()
	}
	return fmt.Sprintf("%s(+%d hints)", a.Multiaddr(), len(a.DirectHints))
}

// IsEmpty 检查地址是否为空
func (a NodeAddr) IsEmpty() bool {
	return a.ID.IsEmpty()
}
