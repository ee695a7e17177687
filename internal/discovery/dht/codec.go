package dht

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// ============================================================================
//                          消息编解码
// ============================================================================

// maxMessageSize 单条消息上限
//
// 覆盖网消息都很小，64KB 足够并能挡住异常长度。
const maxMessageSize = 64 * 1024

// writeMessage 写入一条带长度前缀的 JSON 消息
//
// 帧格式：4 字节大端长度 + JSON 载荷。
func writeMessage(w io.Writer, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if len(data) > maxMessageSize {
		return fmt.Errorf("message too large: %d bytes", len(data))
	}

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	if _, err := w.Write(length[:]); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// readMessage 读取一条带长度前缀的 JSON 消息
func readMessage(r io.Reader) (*Message, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(length[:])
	if size == 0 || size > maxMessageSize {
		return nil, fmt.Errorf("invalid message length: %d", size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}
