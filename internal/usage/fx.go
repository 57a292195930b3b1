package usage

import (
	"github.com/wearly/wearly/internal/usage/repository"
	"github.com/wearly/wearly/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
