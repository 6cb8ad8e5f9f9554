package main

import (
	"context"
	"path/filepath"

	"github.com/hybridkit/ota-agent/internal/application"
	"github.com/hybridkit/ota-agent/internal/cacheng/local"
	"github.com/hybridkit/ota-agent/internal/config"
	"github.com/hybridkit/ota-agent/internal/logger"
	"github.com/hybridkit/ota-agent/internal/pkg/restserver"
	"github.com/hybridkit/ota-agent/internal/scheduler"
	"github.com/hybridkit/ota-agent/internal/store"
	"github.com/hybridkit/ota-agent/internal/wire"
	"go.uber.org/zap"
)

func main() {

	setUpConfigAndLog()

	st, err := store.Open(filepath.Join(config.CFG.Cache.Root, "state"))
	if err != nil {
		zap.L().Fatal("failed to open state store",
			zap.Error(err),
		)
	}

	defer func(st *store.Store) {
		if err := st.Close(); err != nil {
			zap.L().Error("failed to close state store",
				zap.Error(err),
			)
		}
	}(st)

	// deps
	var (
		engine   = local.New(config.CFG, zap.L())
		appState = scheduler.NewAppState()
	)

	agent := wire.NewAgentSet(config.CFG, zap.L(), st, engine, appState)

	if base := config.CFG.Update.BaseURL; base != "" {
		err := agent.Updater.Configure(
			base,
			config.CFG.Update.Hostname,
			config.CFG.Update.ApplicationPath,
			"",
		)
		if err != nil {
			zap.L().Warn("seed configuration rejected",
				zap.Error(err),
			)
		}
	}

	// crash rollback and pending-swap reconciliation run before any
	// request or wake can observe the stored state.
	if err := agent.Updater.RunStartupRecovery(); err != nil {
		zap.L().Error("startup recovery failed",
			zap.Error(err),
		)
	}

	app := application.New()
	app.AddAdapter(
		restserver.NewAdapter(agent.Router),
		agent.Scheduler,
	)

	app.Run(context.Background())
}

func setUpConfigAndLog() {
	config.CFG = config.New()
	zap.ReplaceGlobals(logger.New(config.CFG))
}
