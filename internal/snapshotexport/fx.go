package snapshotexport

import "go.uber.org/fx"

var Module = fx.Module("snapshotexport",
	fx.Provide(NewPusher),
	fx.Provide(NewExporter),
)
