package types

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeID_ParseRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	id, err := NodeIDFromBytes(pub)
	require.NoError(t, err)

	parsed, err := ParseNodeID(id.String())
	require.NoError(t, err)
	assert.True(t, parsed.Equal(id))
	assert.Equal(t, []byte(pub), parsed.Bytes())
}

func TestNodeID_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"空字符串", ""},
		{"非法字符", "0OIl+/=="},
		{"长度不足", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseNodeID(tt.input)
			require.ErrorIs(t, err, ErrInvalidNodeID)
			assert.True(t, id.IsEmpty())
		})
	}

	_, err := NodeIDFromBytes(make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidNodeID)
}

func TestNodeID_ShortString(t *testing.T) {
	id := NodeID{1, 2, 3, 4, 5}
	assert.Len(t, id.ShortString(), 8)
	assert.Equal(t, "", EmptyNodeID.String())
	assert.Equal(t, "", EmptyNodeID.ShortString())
}
