package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantbill/internal/audit"
	"github.com/smallbiznis/tenantbill/internal/authorization"
	"github.com/smallbiznis/tenantbill/internal/clock"
	"github.com/smallbiznis/tenantbill/internal/config"
	"github.com/smallbiznis/tenantbill/internal/invoice"
	"github.com/smallbiznis/tenantbill/internal/lock"
	"github.com/smallbiznis/tenantbill/internal/migration"
	"github.com/smallbiznis/tenantbill/internal/observability"
	"github.com/smallbiznis/tenantbill/internal/plan"
	"github.com/smallbiznis/tenantbill/internal/scheduler"
	"github.com/smallbiznis/tenantbill/internal/subscription"
	"github.com/smallbiznis/tenantbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// Domain services required by the sweeps
		audit.Module,
		authorization.Module,
		plan.Module,
		invoice.Module,
		subscription.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
