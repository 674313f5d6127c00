package store

import (
	"github.com/pawhaven/sustainer/internal/app/service/billing"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(NewGormStore),
	fx.Provide(func(s *GormStore) billing.Store { return s }),
)
