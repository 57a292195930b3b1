package pdf

import (
	appconfig "github.com/wearly/wearly/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(func(cfg appconfig.Config) *Provider {
		return NewProvider(cfg.AppName)
	}),
)
