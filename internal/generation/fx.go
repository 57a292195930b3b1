package generation

import (
	"github.com/wearly/wearly/internal/generation/domain"
	"github.com/wearly/wearly/internal/generation/engine"
	"github.com/wearly/wearly/internal/generation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generation.service",
	fx.Provide(engine.New),
	fx.Provide(func(e *engine.Engine) domain.Generator { return e }),
	fx.Provide(service.NewService),
)
