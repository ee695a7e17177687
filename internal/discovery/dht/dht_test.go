package dht

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginetransport "github.com/dep2p/go-engine-transport"
	"github.com/dep2p/go-engine-transport/internal/core/identity"
	"github.com/dep2p/go-engine-transport/pkg/types"
)

// testNode 一个带覆盖网的完整节点
type testNode struct {
	tp  *enginetransport.Transport
	dht *DHT
}

// newTestNode 在回环地址上启动节点
func newTestNode(t *testing.T, cfg Config) *testNode {
	t.Helper()

	tp, err := enginetransport.New(
		enginetransport.WithListenAddr("127.0.0.1:0"),
		enginetransport.WithDialTimeout(5*time.Second),
	)
	require.NoError(t, err)

	d, err := New(tp, cfg)
	require.NoError(t, err)
	require.NoError(t, d.Start())

	n := &testNode{tp: tp, dht: d}
	t.Cleanup(func() { n.close() })
	return n
}

func (n *testNode) close() {
	n.dht.Close()
	n.tp.Close()
}

func TestDHT_ThreeNodeStoreGet(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	n1 := newTestNode(t, Config{})
	n2 := newTestNode(t, Config{})
	n3 := newTestNode(t, Config{})

	ticket, err := n1.tp.Ticket()
	require.NoError(t, err)

	require.NoError(t, n2.dht.Bootstrap(ctx, ticket))
	require.NoError(t, n3.dht.Bootstrap(ctx, ticket))

	// 引导后互相可见
	assert.GreaterOrEqual(t, n2.dht.RoutingSize(), 1)
	assert.GreaterOrEqual(t, n3.dht.RoutingSize(), 2)

	// n2 写入，n3 读取
	require.NoError(t, n2.dht.Put(ctx, "greeting", []byte("hello")))

	value, err := n3.dht.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), value)

	// 不存在的键
	_, err = n3.dht.Get(ctx, "absent")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDHT_SurvivesWriterChurn(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	n1 := newTestNode(t, Config{})
	n2 := newTestNode(t, Config{})
	n3 := newTestNode(t, Config{})

	ticket, err := n1.tp.Ticket()
	require.NoError(t, err)
	require.NoError(t, n2.dht.Bootstrap(ctx, ticket))
	require.NoError(t, n3.dht.Bootstrap(ctx, ticket))

	require.NoError(t, n2.dht.Put(ctx, "persistent", []byte("survives")))

	// 写入方离网
	n2.close()

	// 其余节点仍能取到值（副本在 n1 / n3 上）
	value, err := n3.dht.Get(ctx, "persistent")
	require.NoError(t, err)
	assert.Equal(t, []byte("survives"), value)

	// 离网后写入仍然可用
	require.NoError(t, n3.dht.Put(ctx, "after-churn", []byte("ok")))
	value, err = n1.dht.Get(ctx, "after-churn")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), value)

	// 初始节点也离网，由全新节点顶替：
	// 从幸存节点引导后，最初写入的值依然可取
	n1.close()

	survivorTicket, err := n3.tp.Ticket()
	require.NoError(t, err)

	n4 := newTestNode(t, Config{})
	require.NoError(t, n4.dht.Bootstrap(ctx, survivorTicket))

	value, err = n4.dht.Get(ctx, "persistent")
	require.NoError(t, err)
	assert.Equal(t, []byte("survives"), value)
}

func TestDHT_BootstrapInvalidTicket(t *testing.T) {
	n1 := newTestNode(t, Config{})

	err := n1.dht.Bootstrap(context.Background(), "garbage")
	require.Error(t, err)
}

func TestRoutingTable(t *testing.T) {
	self := testID(t)
	rt := newRoutingTable(self, 4)

	t.Run("忽略自身", func(t *testing.T) {
		rt.Add(newPeerRecord(self, nil))
		assert.Equal(t, 0, rt.Len())
	})

	t.Run("添加与刷新", func(t *testing.T) {
		id := testID(t)
		rt.Add(newPeerRecord(id, []string{"10.0.0.1:1"}))
		rt.Add(newPeerRecord(id, nil))
		assert.Equal(t, 1, rt.Len())

		// 刷新保留已知提示
		closest := rt.Closest([32]byte(id), 1)
		require.Len(t, closest, 1)
		assert.Equal(t, []string{"10.0.0.1:1"}, closest[0].AddressHints)
	})

	t.Run("最近节点排序", func(t *testing.T) {
		rt := newRoutingTable(self, 8)
		ids := make([]types.NodeID, 8)
		for i := range ids {
			ids[i] = testID(t)
			rt.Add(newPeerRecord(ids[i], nil))
		}

		target := [32]byte(ids[0])
		closest := rt.Closest(target, 3)
		require.Len(t, closest, 3)
		// 目标自身距离为零，必然排第一
		assert.Equal(t, ids[0].String(), closest[0].NodeID)
	})

	t.Run("删除", func(t *testing.T) {
		rt := newRoutingTable(self, 4)
		id := testID(t)
		rt.Add(newPeerRecord(id, nil))
		rt.Remove(id)
		assert.Equal(t, 0, rt.Len())
	})
}

func TestCodec_RoundTrip(t *testing.T) {
	msg := &Message{
		Type:      MsgFindValue,
		RequestID: "req-1",
		From:      testID(t).String(),
		FromHints: []string{"127.0.0.1:4001"},
		Key:       "some-key",
	}

	var buf bytes.Buffer
	require.NoError(t, writeMessage(&buf, msg))

	decoded, err := readMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestCodec_RejectsBadLength(t *testing.T) {
	// 长度前缀超过上限
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, err := readMessage(&buf)
	require.Error(t, err)

	// 零长度
	buf.Reset()
	buf.Write([]byte{0, 0, 0, 0})
	_, err = readMessage(&buf)
	require.Error(t, err)
}

// testID 生成测试 NodeID
func testID(t *testing.T) types.NodeID {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	return id.NodeID()
}
