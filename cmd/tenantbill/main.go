package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantbill/internal/clock"
	"github.com/smallbiznis/tenantbill/internal/config"
	"github.com/smallbiznis/tenantbill/internal/lock"
	"github.com/smallbiznis/tenantbill/internal/migration"
	"github.com/smallbiznis/tenantbill/internal/observability"
	"github.com/smallbiznis/tenantbill/internal/scheduler"
	"github.com/smallbiznis/tenantbill/internal/server"
	"github.com/smallbiznis/tenantbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// HTTP API and the billing domains behind it
		server.Module,

		// Reconciliation sweeps in-process
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
