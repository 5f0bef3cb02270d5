package occupancy

import (
	"github.com/smallbiznis/kiraya/internal/occupancy/repository"
	"github.com/smallbiznis/kiraya/internal/occupancy/service"
	"go.uber.org/fx"
)

var Module = fx.Module("occupancy.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
