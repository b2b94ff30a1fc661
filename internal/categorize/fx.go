package categorize

import "go.uber.org/fx"

var Module = fx.Module("categorize",
	fx.Provide(Provide),
)
