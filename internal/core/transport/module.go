package transport

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-engine-transport/pkg/interfaces"
)

// ============================================================================
//                              模块配置
// ============================================================================

// Config 传输层配置
type Config struct {
	// MaxStreams 单连接本地流数上限
	MaxStreams int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{MaxStreams: DefaultMaxStreams}
}

// ============================================================================
//                              服务提供
// ============================================================================

// provideInput 服务提供输入
type provideInput struct {
	fx.In

	Engine interfaces.Engine

	// 配置（可选，使用默认配置）
	Config *Config `optional:"true"`
}

// provideOutput 服务提供输出
type provideOutput struct {
	fx.Out

	Dialer *Dialer
}

// ProvideServices 提供模块服务
func ProvideServices(input provideInput) provideOutput {
	cfg := DefaultConfig()
	if input.Config != nil {
		cfg = *input.Config
	}
	return provideOutput{
		Dialer: NewDialer(input.Engine, cfg.MaxStreams),
	}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("transport",
		fx.Provide(ProvideServices),
	)
}
