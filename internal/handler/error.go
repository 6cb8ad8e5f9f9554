package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/hybridkit/ota-agent/internal/handler/response"
	"github.com/hybridkit/ota-agent/internal/pkg/errs"
	"go.uber.org/zap"
)

func Error(c *fiber.Ctx, err error) error {

	switch e := err.(type) {

	case *fiber.Error:
		return fiber.DefaultErrorHandler(c, e)

	case *errs.Error:
		resp := response.BusinessError(
			e.Error(),
			e.Details(),
		).With(e.BizCode())
		return c.Status(e.HTTPCode()).JSON(resp)

	case nil:
		return nil

	default:
		zap.L().Error("unexpected error",
			zap.Error(err),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
		)
		resp := response.UnexpectedError()
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}
}
