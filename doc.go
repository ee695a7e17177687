// Package enginetransport 提供按身份寻址的 P2P 传输
//
// 对上层暴露的地址只有一种形式：/p2p/<NodeID>。
// NodeID 即节点 Ed25519 公钥的 Base58 编码，
// 路径选择（直连、打洞、地址提示）由底层连通性引擎负责，
// 上层完全不感知 IP 与端口。
//
// 基本用法：
//
//	t, err := enginetransport.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer t.Close()
//
//	// 分享连接票据（含身份与直连地址提示）
//	ticket, _ := t.Ticket()
//
//	// 对端凭票据拨号
//	conn, err := t.DialTicket(ctx, ticket)
//
// 连接建立后远端身份已经过 TLS 握手验证，
// conn.RemoteID() 可直接信任。
package enginetransport
