package identity

import (
	"crypto/ed25519"
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-engine-transport/internal/util/logger"
)

var log = logger.Logger("identity")

// ============================================================================
//                              模块配置
// ============================================================================

// Config 身份模块配置
type Config struct {
	// PrivateKey 直接注入的私钥（优先级最高）
	PrivateKey ed25519.PrivateKey

	// KeyPath 身份文件路径
	KeyPath string

	// AutoCreate 身份不存在时自动创建
	AutoCreate bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{AutoCreate: true}
}

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// 配置（可选，使用默认配置）
	Config *Config `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Identity *Identity
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideServices 提供模块服务
//
// 优先级：PrivateKey > KeyPath > AutoCreate
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	config := DefaultConfig()
	if input.Config != nil {
		config = *input.Config
	}

	var (
		id  *Identity
		err error
	)

	switch {
	case config.PrivateKey != nil:
		id, err = FromPrivateKey(config.PrivateKey)
	case config.KeyPath != "" && config.AutoCreate:
		id, err = LoadOrCreate(config.KeyPath)
	case config.KeyPath != "":
		id, err = Load(config.KeyPath)
	case config.AutoCreate:
		id, err = Generate()
	default:
		return ModuleOutput{}, fmt.Errorf("identity config: no key source")
	}
	if err != nil {
		return ModuleOutput{}, fmt.Errorf("init identity: %w", err)
	}

	log.Debug("identity ready", "node_id", id.NodeID().ShortString())
	return ModuleOutput{Identity: id}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideServices),
	)
}
