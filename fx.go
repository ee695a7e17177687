package enginetransport

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-engine-transport/internal/core/engine"
	"github.com/dep2p/go-engine-transport/internal/core/identity"
	"github.com/dep2p/go-engine-transport/internal/core/transport"
)

// Modules 返回构成传输的全部 fx 模块
//
// 供需要把传输嵌入更大 fx 应用的调用方使用；
// 独立使用时直接调用 New 即可。
func Modules() fx.Option {
	return fx.Options(
		identity.Module(),
		engine.Module(),
		transport.Module(),
	)
}
