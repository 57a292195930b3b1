package auth

import (
	"github.com/wearly/wearly/internal/auth/repository"
	"github.com/wearly/wearly/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
