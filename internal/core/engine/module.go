package engine

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-engine-transport/internal/core/identity"
	"github.com/dep2p/go-engine-transport/pkg/interfaces"
)

// ============================================================================
//                              服务提供
// ============================================================================

// provideInput 服务提供输入
type provideInput struct {
	fx.In

	Identity *identity.Identity

	// 配置（可选，使用默认配置）
	Config *Config `optional:"true"`
}

// provideOutput 服务提供输出
type provideOutput struct {
	fx.Out

	Engine      *Engine
	EngineIface interfaces.Engine
}

// ProvideServices 提供模块服务
func ProvideServices(input provideInput) (provideOutput, error) {
	cfg := DefaultConfig()
	if input.Config != nil {
		cfg = *input.Config
	}

	e, err := New(input.Identity, cfg)
	if err != nil {
		return provideOutput{}, err
	}
	return provideOutput{Engine: e, EngineIface: e}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In

	LC     fx.Lifecycle
	Engine *Engine
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return input.Engine.Close()
		},
	})
}
