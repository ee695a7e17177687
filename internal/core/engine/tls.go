// Package engine 实现连通性引擎
//
// 引擎封装底层 QUIC 端点：共享 UDP 套接字、身份 TLS、
// 本地地址发现与远端地址提示簿。拨号与监听复用同一端口，
// 这是 NAT 打洞的前提。
package engine

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/dep2p/go-engine-transport/internal/core/identity"
	"github.com/dep2p/go-engine-transport/pkg/types"
)

// nodeIDExtensionOID 证书扩展中存储 NodeID 的 OID
//
// 仅用于调试与兼容，身份验证始终以证书公钥为准。
var nodeIDExtensionOID = []int{1, 3, 6, 1, 4, 1, 53594, 1, 1}

// alpnProtocol QUIC 握手协商的应用协议
const alpnProtocol = "dep2p-engine"

// newTLSConfigs 从身份生成服务端与客户端 TLS 配置
//
// 证书由身份私钥自签名，NodeID 即证书公钥。
// 安全说明：
//   - InsecureSkipVerify 禁用标准 CA 验证（自签名证书没有 CA）
//   - 安全性由 VerifyPeerCertificate 保证：
//     NodeID 从证书公钥派生，无法伪造
//   - 双向 TLS：服务端同样要求客户端证书
func newTLSConfigs(id *identity.Identity) (server, client *tls.Config, err error) {
	if id == nil {
		return nil, nil, fmt.Errorf("identity is nil")
	}

	cert, err := selfSignedCert(id)
	if err != nil {
		return nil, nil, err
	}

	server = &tls.Config{
		Certificates:          []tls.Certificate{cert},
		NextProtos:            []string{alpnProtocol},
		InsecureSkipVerify:    true,
		ClientAuth:            tls.RequireAnyClientCert,
		VerifyPeerCertificate: verifyPeerCertificate,
		MinVersion:            tls.VersionTLS13,
	}

	client = server.Clone()
	client.ClientAuth = tls.NoClientCert
	return server, client, nil
}

// selfSignedCert 用身份私钥生成自签名证书
func selfSignedCert(id *identity.Identity) (tls.Certificate, error) {
	nodeID := id.NodeID()

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"DeP2P"},
			CommonName:   "DeP2P Node " + nodeID.ShortString(),
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour * 24 * 180),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		ExtraExtensions: []pkix.Extension{
			{
				Id:       nodeIDExtensionOID,
				Critical: false,
				Value:    nodeID.Bytes(),
			},
		},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, id.PublicKey(), id.PrivateKey())
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  id.PrivateKey(),
	}, nil
}

// verifyPeerCertificate 验证对端证书
//
// 验证逻辑：
//  1. 从证书公钥派生 NodeID（不可伪造）
//  2. 若证书带有 NodeID 扩展，扩展值必须等于派生值
//  3. 验证证书有效期
func verifyPeerCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return fmt.Errorf("peer provided no certificate")
	}

	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("parse peer certificate: %w", err)
	}

	derivedID, err := nodeIDFromCert(cert)
	if err != nil {
		return err
	}

	for _, ext := range cert.Extensions {
		if ext.Id.Equal(nodeIDExtensionOID) {
			extID, err := types.NodeIDFromBytes(ext.Value)
			if err != nil {
				return fmt.Errorf("bad NodeID extension: %w", err)
			}
			if !extID.Equal(derivedID) {
				return fmt.Errorf("NodeID extension mismatch: extension %s, derived %s",
					extID.ShortString(), derivedID.ShortString())
			}
			break
		}
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate not yet valid: NotBefore=%v", cert.NotBefore)
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate expired: NotAfter=%v", cert.NotAfter)
	}

	return nil
}

// extractNodeID 从 TLS 连接状态提取对端 NodeID
//
// 始终从证书公钥派生，确保身份不可伪造。
func extractNodeID(state tls.ConnectionState) (types.NodeID, error) {
	if len(state.PeerCertificates) == 0 {
		return types.EmptyNodeID, fmt.Errorf("peer provided no TLS certificate")
	}
	return nodeIDFromCert(state.PeerCertificates[0])
}

// nodeIDFromCert 从证书公钥派生 NodeID
//
// NodeID 就是 Ed25519 公钥的原始 32 字节，无需哈希。
func nodeIDFromCert(cert *x509.Certificate) (types.NodeID, error) {
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return types.EmptyNodeID, fmt.Errorf("unsupported certificate key type: %T", cert.PublicKey)
	}
	return types.NodeIDFromBytes(pub)
}
