package transaction

import (
	"github.com/wearly/wearly/internal/transaction/repository"
	"github.com/wearly/wearly/internal/transaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
