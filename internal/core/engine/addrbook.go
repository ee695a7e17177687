package engine

import (
	"net"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dep2p/go-engine-transport/pkg/types"
)

// ============================================================================
//                          地址提示簿
// ============================================================================

// maxHintsPerNode 单个节点保留的地址提示上限
const maxHintsPerNode = 8

// addrBook 远端节点的直连地址提示簿
//
// 基于带过期的 LRU：长时间未更新的条目自动淘汰，
// 避免陈旧地址无限累积。并发安全。
type addrBook struct {
	mu    sync.Mutex
	cache *expirable.LRU[types.NodeID, []string]
}

// newAddrBook 创建地址提示簿
func newAddrBook(size int, ttl time.Duration) *addrBook {
	return &addrBook{
		cache: expirable.NewLRU[types.NodeID, []string](size, nil, ttl),
	}
}

// Add 登记节点的直连地址提示
//
// 与已有提示合并去重，非法的 host:port 被忽略；
// 新提示排在前面（更可能有效）。
func (b *addrBook) Add(id types.NodeID, hints []string) {
	if id.IsEmpty() || len(hints) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, _ := b.cache.Get(id)

	merged := make([]string, 0, len(hints)+len(existing))
	seen := make(map[string]struct{}, len(hints)+len(existing))
	for _, h := range hints {
		if _, _, err := net.SplitHostPort(h); err != nil {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		merged = append(merged, h)
	}
	for _, h := range existing {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		merged = append(merged, h)
	}

	if len(merged) == 0 {
		return
	}
	if len(merged) > maxHintsPerNode {
		merged = merged[:maxHintsPerNode]
	}
	b.cache.Add(id, merged)
}

// Lookup 返回节点的已知地址提示（副本）
func (b *addrBook) Lookup(id types.NodeID) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	hints, ok := b.cache.Get(id)
	if !ok {
		return nil
	}
	out := make([]string, len(hints))
	copy(out, hints)
	return out
}

// Remove 删除节点的全部提示
func (b *addrBook) Remove(id types.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Remove(id)
}

// Len 当前条目数
func (b *addrBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Len()
}
