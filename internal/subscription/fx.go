package subscription

import (
	"github.com/wearly/wearly/internal/subscription/repository"
	"github.com/wearly/wearly/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
