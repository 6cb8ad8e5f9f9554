//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/wire"
	"github.com/hybridkit/ota-agent/internal/cacheng"
	"github.com/hybridkit/ota-agent/internal/config"
	"github.com/hybridkit/ota-agent/internal/provider"
	"github.com/hybridkit/ota-agent/internal/scheduler"
	"github.com/hybridkit/ota-agent/internal/store"
	"github.com/hybridkit/ota-agent/internal/updater"
	"go.uber.org/zap"
)

type AgentSet struct {
	Router    *fiber.App
	Updater   *updater.Updater
	Scheduler *scheduler.Scheduler
}

func NewAgentSet(
	conf *config.Config,
	logger *zap.Logger,
	st *store.Store,
	engine cacheng.Engine,
	appState *scheduler.AppState,
) *AgentSet {
	panic(wire.Build(
		provider.CoreSet,
		provider.HandlerSet,
		wire.Bind(new(updater.ContextProbe), new(*scheduler.AppState)),
		wire.Struct(new(AgentSet), "*"),
	))
}
