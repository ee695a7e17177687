package enginetransport

import (
	"crypto/ed25519"
	"time"

	"github.com/dep2p/go-engine-transport/internal/core/engine"
	"github.com/dep2p/go-engine-transport/internal/core/identity"
	"github.com/dep2p/go-engine-transport/internal/core/transport"
)

// ============================================================================
//                          配置选项
// ============================================================================

// options 聚合各模块配置
type options struct {
	identityCfg  identity.Config
	engineCfg    engine.Config
	transportCfg transport.Config
	startTimeout time.Duration
}

// defaultOptions 返回默认配置
func defaultOptions() *options {
	return &options{
		identityCfg:  identity.DefaultConfig(),
		engineCfg:    engine.DefaultConfig(),
		transportCfg: transport.DefaultConfig(),
		startTimeout: 15 * time.Second,
	}
}

// Option 配置选项
type Option func(*options)

// WithPrivateKey 使用指定的 Ed25519 私钥作为节点身份
func WithPrivateKey(priv ed25519.PrivateKey) Option {
	return func(o *options) {
		o.identityCfg.PrivateKey = priv
	}
}

// WithIdentityPath 从文件加载身份，不存在时自动创建
func WithIdentityPath(path string) Option {
	return func(o *options) {
		o.identityCfg.KeyPath = path
		o.identityCfg.AutoCreate = true
	}
}

// WithListenAddr 设置 UDP 绑定地址（host:port）
//
// 默认 "0.0.0.0:0"，随机端口。
func WithListenAddr(addr string) Option {
	return func(o *options) {
		o.engineCfg.BindAddr = addr
	}
}

// WithDialTimeout 设置拨号默认超时
//
// 仅当拨号 ctx 未带截止时间时生效，默认 20 秒。
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.engineCfg.DialTimeout = d
	}
}

// WithIdleTimeout 设置连接空闲超时
//
// 空闲关闭是正常生命周期事件而非错误，默认 60 秒。
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.engineCfg.MaxIdleTimeout = d
	}
}

// WithKeepAlive 设置保活间隔，0（默认）表示不保活
//
// 保活会阻止空闲关闭，仅在确需长期挂起连接时开启；
// 开启时必须小于空闲超时，否则启动失败。
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) {
		o.engineCfg.KeepAlivePeriod = d
	}
}

// WithMaxStreams 设置单连接本地流数上限
func WithMaxStreams(n int) Option {
	return func(o *options) {
		o.transportCfg.MaxStreams = n
	}
}

// WithStartTimeout 设置启动超时
func WithStartTimeout(d time.Duration) Option {
	return func(o *options) {
		o.startTimeout = d
	}
}
