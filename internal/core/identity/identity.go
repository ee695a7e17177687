// Package identity 提供节点身份管理
//
// 身份模块负责：
// - Ed25519 密钥对生成与加载
// - NodeID 派生（NodeID 即原始公钥）
// - 签名和验证
// - 身份持久化
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/dep2p/go-engine-transport/pkg/types"
)

// ============================================================================
//                          身份
// ============================================================================

// Identity 节点身份
//
// 身份即密钥对：NodeID 直接取 Ed25519 公钥的 32 字节，
// 无需哈希，公钥可从任何 NodeID 无损还原。
type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	id   types.NodeID
}

// Generate 生成新的随机身份
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return fromKeyPair(pub, priv)
}

// FromPrivateKey 从已有私钥构造身份
func FromPrivateKey(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key length: %d", len(priv))
	}
	return fromKeyPair(priv.Public().(ed25519.PublicKey), priv)
}

// FromSeed 从 32 字节种子构造确定性身份
//
// 主要用于测试：同一种子总是产生同一 NodeID。
func FromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid ed25519 seed length: %d", len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return fromKeyPair(priv.Public().(ed25519.PublicKey), priv)
}

func fromKeyPair(pub ed25519.PublicKey, priv ed25519.PrivateKey) (*Identity, error) {
	id, err := types.NodeIDFromBytes(pub)
	if err != nil {
		return nil, err
	}
	return &Identity{priv: priv, pub: pub, id: id}, nil
}

// NodeID 返回节点身份标识
func (i *Identity) NodeID() types.NodeID {
	return i.id
}

// PublicKey 返回公钥
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.pub
}

// PrivateKey 返回私钥
func (i *Identity) PrivateKey() ed25519.PrivateKey {
	return i.priv
}

// Sign 用私钥签名消息
func (i *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(i.priv, msg)
}

// Verify 验证指定节点对消息的签名
func Verify(id types.NodeID, msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(id.Bytes()), msg, sig)
}
