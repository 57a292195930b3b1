package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/clock"
	"github.com/wearly/wearly/internal/config"
	"github.com/wearly/wearly/internal/migration"
	"github.com/wearly/wearly/internal/observability"
	"github.com/wearly/wearly/internal/server"
	"github.com/wearly/wearly/pkg/db"
	"github.com/wearly/wearly/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
