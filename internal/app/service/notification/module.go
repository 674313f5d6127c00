package notification

import "go.uber.org/fx"

// Module exposes the notification publisher via Fx.
var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(func(s *Service) Publisher { return s }),
)
