package dht

import (
	"time"

	"github.com/dep2p/go-engine-transport/pkg/interfaces"
	"github.com/dep2p/go-engine-transport/pkg/types"
)

// ============================================================================
//                          入站处理
// ============================================================================

// eventLoop 消费监听器事件
func (d *DHT) eventLoop(ln interfaces.Listener) {
	defer d.wg.Done()

	for {
		ev, err := ln.Next(d.ctx)
		if err != nil {
			return
		}

		switch ev.Kind {
		case interfaces.EventIncoming:
			d.mu.Lock()
			if d.closed {
				d.mu.Unlock()
				ev.Conn.Close()
				return
			}
			// 入站连接同样进缓存，便于回查对端
			d.conns[ev.Conn.RemoteID()] = ev.Conn
			d.mu.Unlock()

			d.wg.Add(1)
			go d.serveConn(ev.Conn)

		case interfaces.EventError:
			log.Warn("listener error", "err", ev.Err)

		case interfaces.EventClosed:
			return
		}
	}
}

// serveConn 服务单条连接上的请求流
func (d *DHT) serveConn(conn interfaces.Connection) {
	defer d.wg.Done()

	for {
		s, err := conn.AcceptStream(d.ctx)
		if err != nil {
			d.dropConn(conn.RemoteID())
			return
		}

		d.wg.Add(1)
		go func(s interfaces.Stream) {
			defer d.wg.Done()
			d.handleStream(conn.RemoteID(), s)
		}(s)
	}
}

// handleStream 处理一次请求与应答
func (d *DHT) handleStream(remote types.NodeID, s interfaces.Stream) {
	defer s.Close()

	s.SetDeadline(time.Now().Add(d.cfg.RequestTimeout))

	req, err := readMessage(s)
	if err != nil {
		log.Debug("bad request", "remote", remote.ShortString(), "err", err)
		return
	}

	// 发送方信息回填路由表与地址提示簿
	if req.From == remote.String() && len(req.FromHints) > 0 {
		d.rt.Add(PeerRecord{
			NodeID:       req.From,
			AddressHints: req.FromHints,
			LastSeen:     time.Now().Unix(),
		})
		d.tp.AddAddressHints(types.NodeAddr{ID: remote, DirectHints: req.FromHints})
	} else {
		d.rt.Add(newPeerRecord(remote, nil))
	}

	resp := d.dispatch(req)
	resp.RequestID = req.RequestID
	resp.From = d.localID.String()
	resp.FromHints = d.tp.DirectAddrs()

	if err := writeMessage(s, resp); err != nil {
		log.Debug("write response", "remote", remote.ShortString(), "err", err)
	}
}

// dispatch 按消息类型处理请求
func (d *DHT) dispatch(req *Message) *Message {
	switch req.Type {
	case MsgPing:
		return &Message{Type: MsgPong}

	case MsgFindNode:
		return d.handleFindNode(req)

	case MsgStore:
		return d.handleStore(req)

	case MsgFindValue:
		return d.handleFindValue(req)

	default:
		return &Message{Type: req.Type, Error: "unknown message type"}
	}
}

// handleFindNode 返回距目标最近的已知节点
func (d *DHT) handleFindNode(req *Message) *Message {
	var target [32]byte
	if id, err := types.ParseNodeID(req.Target); err == nil {
		target = [32]byte(id)
	} else {
		target = keyDigest(req.Target)
	}

	return &Message{
		Type:  MsgFindNodeResult,
		Peers: d.rt.Closest(target, d.cfg.K),
	}
}

// handleStore 存储键值
func (d *DHT) handleStore(req *Message) *Message {
	resp := &Message{Type: MsgStoreResult, Key: req.Key}
	if req.Key == "" {
		resp.Error = "empty key"
		return resp
	}
	if err := d.store.Put(req.Key, req.Value); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// handleFindValue 查找键值，未命中时退化为最近节点应答
func (d *DHT) handleFindValue(req *Message) *Message {
	resp := &Message{Type: MsgFindValueResult, Key: req.Key}

	value, ok, err := d.store.Get(req.Key)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	if ok {
		resp.Found = true
		resp.Value = value
		return resp
	}

	resp.Peers = d.rt.Closest(keyDigest(req.Key), d.cfg.K)
	return resp
}
