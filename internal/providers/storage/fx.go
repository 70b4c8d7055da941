package storage

import (
	"github.com/smallbiznis/meterscan/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.storage",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) (Provider, error) {
	return NewLocal(cfg.Images.Dir, cfg.Images.BaseURL)
}
