package identity

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	// 不同身份必须有不同 NodeID
	assert.False(t, a.NodeID().Equal(b.NodeID()))

	// NodeID 就是公钥本身
	assert.Equal(t, []byte(a.PublicKey()), a.NodeID().Bytes())
}

func TestFromSeed_Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{42}, 32)

	a, err := FromSeed(seed)
	require.NoError(t, err)
	b, err := FromSeed(seed)
	require.NoError(t, err)

	assert.True(t, a.NodeID().Equal(b.NodeID()))

	_, err = FromSeed([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestSignVerify(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	msg := []byte("hello dep2p")
	sig := id.Sign(msg)

	assert.True(t, Verify(id.NodeID(), msg, sig))
	assert.False(t, Verify(id.NodeID(), []byte("tampered"), sig))

	other, err := Generate()
	require.NoError(t, err)
	assert.False(t, Verify(other.NodeID(), msg, sig))
}

func TestStorage_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "node.pem")

	created, err := LoadOrCreate(path)
	require.NoError(t, err)

	// 第二次加载必须得到同一身份
	loaded, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created.NodeID().Equal(loaded.NodeID()))

	direct, err := Load(path)
	require.NoError(t, err)
	assert.True(t, created.NodeID().Equal(direct.NodeID()))
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.pem"))
	assert.Error(t, err)
}
