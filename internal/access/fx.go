package access

import (
	"github.com/smallbiznis/kiraya/internal/access/repository"
	"github.com/smallbiznis/kiraya/internal/access/service"
	"go.uber.org/fx"
)

var Module = fx.Module("access.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
