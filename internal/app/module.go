package app

import (
	"time"

	"github.com/pawhaven/sustainer/internal/app/api/server"
	"github.com/pawhaven/sustainer/internal/app/service/billing"
	"github.com/pawhaven/sustainer/internal/app/service/notification"
	"github.com/pawhaven/sustainer/internal/app/service/statistics"
	"github.com/pawhaven/sustainer/internal/app/service/subscription"
	"github.com/pawhaven/sustainer/internal/platform/db"
	"github.com/pawhaven/sustainer/internal/platform/gateway"
	"github.com/pawhaven/sustainer/internal/platform/store"
	"github.com/pawhaven/sustainer/pkg/config"
	"github.com/pawhaven/sustainer/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	store.Module,
	gateway.Module,
	notification.Module,
	billing.Module,
	subscription.Module,
	statistics.Module,
	server.Module,
)
