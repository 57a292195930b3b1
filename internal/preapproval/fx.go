package preapproval

import (
	"github.com/wearly/wearly/internal/preapproval/domain"
	"github.com/wearly/wearly/internal/preapproval/mercadopago"
	"github.com/wearly/wearly/internal/preapproval/service"
	"go.uber.org/fx"
)

var Module = fx.Module("preapproval.service",
	fx.Provide(func(client *mercadopago.Client) domain.Fetcher { return client }),
	fx.Provide(mercadopago.NewClient),
	fx.Provide(service.NewService),
)
