package dht

import (
	"bytes"
	"crypto/sha256"
	"math/bits"
	"sort"
	"sync"

	"github.com/dep2p/go-engine-transport/pkg/types"
)

// ============================================================================
//                          路由表
// ============================================================================

// defaultBucketSize 单个桶的容量（Kademlia 的 k）
const defaultBucketSize = 20

// routingTable 按 XOR 距离组织的路由表
//
// 256 个桶对应与本节点 ID 的公共前缀长度。
// 并发安全。
type routingTable struct {
	self types.NodeID
	k    int

	mu      sync.Mutex
	buckets [256][]PeerRecord
}

// newRoutingTable 创建路由表
func newRoutingTable(self types.NodeID, k int) *routingTable {
	if k <= 0 {
		k = defaultBucketSize
	}
	return &routingTable{self: self, k: k}
}

// Add 登记或刷新节点记录
//
// 已存在的节点移到桶首并合并地址提示；
// 桶满时淘汰最久未见的节点。
func (rt *routingTable) Add(rec PeerRecord) {
	id, err := types.ParseNodeID(rec.NodeID)
	if err != nil || id.Equal(rt.self) {
		return
	}

	idx := bucketIndex(rt.self, id)

	rt.mu.Lock()
	defer rt.mu.Unlock()

	bucket := rt.buckets[idx]
	for i, existing := range bucket {
		if existing.NodeID == rec.NodeID {
			if len(rec.AddressHints) == 0 {
				rec.AddressHints = existing.AddressHints
			}
			// 移到桶首
			copy(bucket[1:i+1], bucket[:i])
			bucket[0] = rec
			return
		}
	}

	bucket = append([]PeerRecord{rec}, bucket...)
	if len(bucket) > rt.k {
		bucket = bucket[:rt.k]
	}
	rt.buckets[idx] = bucket
}

// Remove 删除节点记录
func (rt *routingTable) Remove(id types.NodeID) {
	idx := bucketIndex(rt.self, id)

	rt.mu.Lock()
	defer rt.mu.Unlock()

	bucket := rt.buckets[idx]
	for i, rec := range bucket {
		if rec.NodeID == id.String() {
			rt.buckets[idx] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// Closest 返回距目标最近的 n 个节点
func (rt *routingTable) Closest(target [32]byte, n int) []PeerRecord {
	rt.mu.Lock()
	all := make([]PeerRecord, 0, 64)
	for _, bucket := range rt.buckets {
		all = append(all, bucket...)
	}
	rt.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		di := distance(target, recordDigest(all[i]))
		dj := distance(target, recordDigest(all[j]))
		return bytes.Compare(di[:], dj[:]) < 0
	})

	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Len 路由表中的节点总数
func (rt *routingTable) Len() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	total := 0
	for _, bucket := range rt.buckets {
		total += len(bucket)
	}
	return total
}

// ============================================================================
//                          距离计算
// ============================================================================

// distance 两个 32 字节标识的 XOR 距离
func distance(a, b [32]byte) [32]byte {
	var d [32]byte
	for i := range d {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// bucketIndex 按公共前缀长度定位桶
func bucketIndex(self, other types.NodeID) int {
	d := distance([32]byte(self), [32]byte(other))
	for i, bt := range d {
		if bt != 0 {
			return i*8 + bits.LeadingZeros8(bt)
		}
	}
	return 255
}

// keyDigest 键的查找目标
func keyDigest(key string) [32]byte {
	return sha256.Sum256([]byte(key))
}

// recordDigest 记录在距离空间中的位置
func recordDigest(rec PeerRecord) [32]byte {
	id, err := types.ParseNodeID(rec.NodeID)
	if err != nil {
		return sha256.Sum256([]byte(rec.NodeID))
	}
	return [32]byte(id)
}
