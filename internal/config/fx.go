package config

import "go.uber.org/fx"

// Module wires application configuration, the validated usage time
// zone, and the plan catalog holder.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		ProvideLocation,
		NewPlanCatalogHolder,
	),
)
