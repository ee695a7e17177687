package types

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testNodeID 生成一个真实公钥派生的 NodeID
func testNodeID(t *testing.T) NodeID {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := NodeIDFromBytes(pub)
	require.NoError(t, err)
	return id
}

func TestMultiaddr_RoundTrip(t *testing.T) {
	// 编码 → 解码必须还原同一地址
	for i := 0; i < 16; i++ {
		id := testNodeID(t)
		addr := FromNodeID(id)

		parsed, err := ParseMultiaddr(addr.String())
		require.NoError(t, err)
		assert.True(t, parsed.Equal(addr))
		assert.True(t, parsed.PeerID().Equal(id))
	}
}

func TestMultiaddr_DistinctIDsDistinctAddrs(t *testing.T) {
	// 不同身份不得产生相同编码
	seen := make(map[Multiaddr]struct{})
	for i := 0; i < 64; i++ {
		addr := FromNodeID(testNodeID(t))
		_, dup := seen[addr]
		require.False(t, dup, "地址编码冲突: %s", addr)
		seen[addr] = struct{}{}
	}
}

func TestParseMultiaddr_Malformed(t *testing.T) {
	valid := FromNodeID(testNodeID(t)).String()

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"空字符串", "", ErrEmptyMultiaddr},
		{"host:port 格式", "1.2.3.4:4001", ErrNotMultiaddrFormat},
		{"ip4 地址", "/ip4/127.0.0.1/udp/4001/quic-v1", ErrUnsupportedProtocol},
		{"dns 地址", "/dns4/example.com/tcp/443", ErrUnsupportedProtocol},
		{"缺少 NodeID", "/p2p", ErrInvalidMultiaddr},
		{"多余路径段", valid + "/p2p-circuit", ErrInvalidMultiaddr},
		{"非法 Base58", "/p2p/0OIl-not-base58", ErrInvalidMultiaddr},
		{"长度不足", "/p2p/abc", ErrInvalidMultiaddr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ma, err := ParseMultiaddr(tt.input)
			require.ErrorIs(t, err, tt.wantErr)
			// 失败不得留下部分状态
			assert.True(t, ma.IsEmpty())
		})
	}
}

func TestMultiaddr_PeerID_Invalid(t *testing.T) {
	assert.True(t, Multiaddr("").PeerID().IsEmpty())
	assert.True(t, Multiaddr("/ip4/1.2.3.4").PeerID().IsEmpty())
	assert.True(t, Multiaddr("/p2p/not-valid").PeerID().IsEmpty())
}

func TestNodeAddr_String(t *testing.T) {
	id := testNodeID(t)

	bare := NewNodeAddr(id)
	assert.Equal(t, bare.Multiaddr().String(), bare.String())

	hinted := NodeAddr{ID: id, DirectHints: []string{"127.0.0.1:4001", "10.0.0.2:4001"}}
	assert.Contains(t, hinted.String(), "+2 hints")
}
