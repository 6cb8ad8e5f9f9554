package restserver

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/hybridkit/ota-agent/internal/application"
	"github.com/hybridkit/ota-agent/internal/config"
)

func NewAdapter(restServer *fiber.App) application.Adapter {
	return &Adapter{
		restServer: restServer,
	}
}

type Adapter struct {
	restServer *fiber.App
}

func (a Adapter) Start(ctx context.Context) error {

	addr := fmt.Sprintf("127.0.0.1:%d", config.CFG.Server.Port)
	return a.restServer.Listen(addr)
}

func (a Adapter) Stop(ctx context.Context) error {

	return a.restServer.Shutdown()
}
