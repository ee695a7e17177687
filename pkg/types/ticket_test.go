package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionTicket_EncodeDecode(t *testing.T) {
	id := testNodeID(t)
	hints := []string{"127.0.0.1:4001", "[::1]:4001"}

	ticket := NewConnectionTicket(id, hints)
	encoded, err := ticket.Encode()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, TicketPrefix))

	decoded, err := DecodeConnectionTicket(encoded)
	require.NoError(t, err)
	assert.Equal(t, id.String(), decoded.NodeID)
	assert.Equal(t, hints, decoded.AddressHints)

	addr, err := decoded.NodeAddr()
	require.NoError(t, err)
	assert.True(t, addr.ID.Equal(id))
	assert.Equal(t, hints, addr.DirectHints)
}

func TestDecodeConnectionTicket_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"空字符串", ""},
		{"缺少前缀", "eyJub2RlX2lkIjoiYWJjIn0"},
		{"空载荷", TicketPrefix},
		{"非法 Base64", TicketPrefix + "%%%%"},
		{"非法 JSON", TicketPrefix + "bm90LWpzb24"},
		{"超长载荷", TicketPrefix + strings.Repeat("A", 4096)},
		{"非法地址提示", func() string {
			tk := NewConnectionTicket(NodeID{1}, []string{"no-port"})
			s, _ := tk.Encode()
			return s
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConnectionTicket(tt.input)
			assert.Error(t, err)
		})
	}
}
