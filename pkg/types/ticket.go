package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// ============================================================================
//                          ConnectionTicket
// ============================================================================

// TicketPrefix 票据字符串前缀
const TicketPrefix = "dep2p://"

// ConnectionTicket 连接票据
//
// 用户友好的连接信息格式，便于分享（聊天/二维码/环境变量）。
// 在发现覆盖网可用之前，票据是唯一的引导手段。
//
// 设计理念：
//   - NodeID 是唯一必需字段（身份优先）
//   - AddressHints 是可选提示（加速连接）
type ConnectionTicket struct {
	// NodeID 节点身份（必需）
	NodeID string `json:"node_id"`

	// AddressHints 直连地址提示（可选）
	//
	// 为空时通过发现覆盖网解析路径。
	AddressHints []string `json:"address_hints,omitempty"`

	// Timestamp 生成时间（可选，用于过期检查）
	Timestamp int64 `json:"timestamp,omitempty"`
}

// NewConnectionTicket 创建连接票据
func NewConnectionTicket(id NodeID, addressHints []string) *ConnectionTicket {
	return &ConnectionTicket{
		NodeID:       id.String(),
		AddressHints: addressHints,
		Timestamp:    time.Now().Unix(),
	}
}

// Encode 编码为字符串
//
// 格式：dep2p://base64url(json(ticket))
func (t *ConnectionTicket) Encode() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal ticket: %w", err)
	}
	return TicketPrefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// NodeAddr 返回票据对应的引擎地址
func (t *ConnectionTicket) NodeAddr() (NodeAddr, error) {
	id, err := ParseNodeID(t.NodeID)
	if err != nil {
		return NodeAddr{}, fmt.Errorf("ticket node_id: %w", err)
	}
	return NodeAddr{ID: id, DirectHints: t.AddressHints}, nil
}

// DecodeConnectionTicket 从字符串解码连接票据
//
// 安全检查：
//   - 前缀验证
//   - 长度上限（防止超长攻击）
//   - NodeID 格式验证（Base58、32 字节）
//   - 地址提示必须是合法的 host:port
func DecodeConnectionTicket(s string) (*ConnectionTicket, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("invalid ticket: empty string")
	}

	if !strings.HasPrefix(s, TicketPrefix) {
		return nil, fmt.Errorf("invalid ticket format: missing %s prefix", TicketPrefix)
	}

	encoded := strings.TrimPrefix(s, TicketPrefix)
	if encoded == "" {
		return nil, fmt.Errorf("invalid ticket: empty payload")
	}

	// Base64 编码的合理票据不应超过 2KB
	if len(encoded) > 2048 {
		return nil, fmt.Errorf("invalid ticket: payload too long (%d > 2048)", len(encoded))
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}

	var ticket ConnectionTicket
	if err := json.Unmarshal(data, &ticket); err != nil {
		return nil, fmt.Errorf("unmarshal ticket: %w", err)
	}

	if _, err := ParseNodeID(ticket.NodeID); err != nil {
		return nil, fmt.Errorf("invalid ticket: %w", err)
	}

	for _, hint := range ticket.AddressHints {
		if _, _, err := net.SplitHostPort(hint); err != nil {
			return nil, fmt.Errorf("invalid ticket: bad address hint %q", hint)
		}
	}

	return &ticket, nil
}
