package providers

import (
	"github.com/smallbiznis/meterscan/internal/providers/storage"
	"github.com/smallbiznis/meterscan/internal/providers/vision"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	storage.Module,
	vision.Module,
)
