// Package dht 实现基于传输层的发现覆盖网
//
// 一个简化的 Kademlia：按 XOR 距离组织路由表，
// 提供节点发现（FIND_NODE）与键值存取（STORE / FIND_VALUE）。
// 所有消息走传输层的流：一条流承载一次请求与应答。
package dht

import (
	"time"

	"github.com/dep2p/go-engine-transport/pkg/types"
)

// ============================================================================
//                          协议消息
// ============================================================================

// MessageType 消息类型
type MessageType string

const (
	// MsgPing 活性探测
	MsgPing MessageType = "PING"
	// MsgPong 活性应答
	MsgPong MessageType = "PONG"

	// MsgFindNode 查找最近节点
	MsgFindNode MessageType = "FIND_NODE"
	// MsgFindNodeResult 最近节点应答
	MsgFindNodeResult MessageType = "FIND_NODE_RESULT"

	// MsgStore 存储键值
	MsgStore MessageType = "STORE"
	// MsgStoreResult 存储应答
	MsgStoreResult MessageType = "STORE_RESULT"

	// MsgFindValue 查找键值
	MsgFindValue MessageType = "FIND_VALUE"
	// MsgFindValueResult 键值应答
	MsgFindValueResult MessageType = "FIND_VALUE_RESULT"
)

// Message 覆盖网消息
//
// 请求与应答共用同一结构，按 Type 区分；
// 未用字段省略编码。
type Message struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id"`

	// From 发送方身份与直连提示，接收方用于回填路由表
	From      string   `json:"from"`
	FromHints []string `json:"from_hints,omitempty"`

	// Key / Value 键值操作载荷
	Key   string `json:"key,omitempty"`
	Value []byte `json:"value,omitempty"`

	// Target 查找目标（FIND_NODE）
	Target string `json:"target,omitempty"`

	// Peers 应答中携带的最近节点
	Peers []PeerRecord `json:"peers,omitempty"`

	// Found 键是否命中（FIND_VALUE_RESULT）
	Found bool `json:"found,omitempty"`

	// Error 处理失败时的错误描述
	Error string `json:"error,omitempty"`
}

// ============================================================================
//                          节点记录
// ============================================================================

// PeerRecord 路由表中的节点记录
type PeerRecord struct {
	// NodeID 节点身份（Base58）
	NodeID string `json:"node_id"`

	// AddressHints 直连地址提示
	AddressHints []string `json:"address_hints,omitempty"`

	// LastSeen 最近一次通信时间（Unix 秒）
	LastSeen int64 `json:"last_seen,omitempty"`
}

// NodeAddr 转换为引擎地址
func (r PeerRecord) NodeAddr() (types.NodeAddr, error) {
	id, err := types.ParseNodeID(r.NodeID)
	if err != nil {
		return types.NodeAddr{}, err
	}
	return types.NodeAddr{ID: id, DirectHints: r.AddressHints}, nil
}

// newPeerRecord 构造当前时刻的节点记录
func newPeerRecord(id types.NodeID, hints []string) PeerRecord {
	return PeerRecord{
		NodeID:       id.String(),
		AddressHints: hints,
		LastSeen:     time.Now().Unix(),
	}
}
