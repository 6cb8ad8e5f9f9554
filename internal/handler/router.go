package handler

import (
	"github.com/bytedance/sonic"
	"github.com/gofiber/contrib/fiberzap/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Handler interface {
	Register(r fiber.Router)
}

func NewRouter(
	logger *zap.Logger,
	bridge *BridgeHandler,
	health *HealthCheckHandler,
	metrics *MetricsHandler,
) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "ota-agent",
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		ErrorHandler: Error,
	})

	app.Use(fiberzap.New(fiberzap.Config{
		Logger:   logger,
		SkipURIs: []string{"/health", "/metrics"},
	}))

	for _, h := range []Handler{health, metrics, bridge} {
		h.Register(app)
	}

	return app
}
