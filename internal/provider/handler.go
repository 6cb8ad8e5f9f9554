package provider

import (
	"github.com/google/wire"
	"github.com/hybridkit/ota-agent/internal/handler"
)

var HandlerSet = wire.NewSet(
	handler.NewBridgeHandler,
	handler.NewHealthCheckHandler,
	handler.NewMetricsHandler,
	handler.NewRouter,
)
