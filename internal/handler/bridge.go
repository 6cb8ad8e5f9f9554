package handler

import (
	"bufio"
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/hybridkit/ota-agent/internal/handler/response"
	"github.com/hybridkit/ota-agent/internal/model"
	"github.com/hybridkit/ota-agent/internal/notifier"
	"github.com/hybridkit/ota-agent/internal/pkg/validator"
	"github.com/hybridkit/ota-agent/internal/scheduler"
	"github.com/hybridkit/ota-agent/internal/updater"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// BridgeHandler exposes the update lifecycle to the host shell over the
// local HTTP bridge. Long-running work (the download) is detached; its
// outcome is observed on the event stream, not the request response.
type BridgeHandler struct {
	logger *zap.Logger
	up     *updater.Updater
	sched  *scheduler.Scheduler
	nt     *notifier.Notifier
}

func NewBridgeHandler(
	logger *zap.Logger,
	up *updater.Updater,
	sched *scheduler.Scheduler,
	nt *notifier.Notifier,
) *BridgeHandler {
	return &BridgeHandler{
		logger: logger,
		up:     up,
		sched:  sched,
		nt:     nt,
	}
}

func (h *BridgeHandler) Register(r fiber.Router) {
	g := r.Group("/ota")

	g.Post("/configure", h.Configure)
	g.Get("/check", h.Check)
	g.Post("/download", h.Download)
	g.Post("/cancel", h.Cancel)
	g.Post("/apply", h.Apply)
	g.Post("/rollback", h.Rollback)
	g.Post("/stable", h.MarkStable)
	g.Get("/version", h.Version)
	g.Post("/reset", h.Reset)
	g.Get("/blocking", h.GetBlocking)
	g.Put("/blocking", h.SetBlocking)
	g.Post("/push", h.Push)
	g.Post("/lifecycle/foreground", h.Foreground)
	g.Post("/lifecycle/background", h.Background)
	g.Get("/events", h.Events)
}

func (h *BridgeHandler) Configure(c *fiber.Ctx) error {
	req := new(model.ConfigureRequest)
	if err := validator.ValidateBody(c, req); err != nil {
		return err
	}

	err := h.up.Configure(req.BaseURL, req.Hostname, req.ApplicationPath, req.CurrentVersionHint)
	if err != nil {
		return err
	}
	return c.JSON(response.Success(nil))
}

func (h *BridgeHandler) Check(c *fiber.Ctx) error {
	res, err := h.up.CheckForUpdates(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(response.Success(res))
}

// Download starts the download-and-swap sequence and returns immediately.
// Progress and the terminal outcome are published on /ota/events.
func (h *BridgeHandler) Download(c *fiber.Ctx) error {
	go func() {
		if _, err := h.up.DownloadUpdate(context.Background(), nil); err != nil {
			h.logger.Warn("bridge-initiated download did not complete",
				zap.Error(err),
			)
		}
	}()

	return c.JSON(response.Success(fiber.Map{"started": true}))
}

func (h *BridgeHandler) Cancel(c *fiber.Ctx) error {
	h.up.CancelDownload()
	return c.JSON(response.Success(nil))
}

func (h *BridgeHandler) Apply(c *fiber.Ctx) error {
	if err := h.up.ApplyUpdate(); err != nil {
		return err
	}
	return c.JSON(response.Success(nil))
}

func (h *BridgeHandler) Rollback(c *fiber.Ctx) error {
	if err := h.up.Rollback(); err != nil {
		return err
	}
	return c.JSON(response.Success(nil))
}

// MarkStable disarms crash detection once the shell has verified the
// freshly swapped content is healthy.
func (h *BridgeHandler) MarkStable(c *fiber.Ctx) error {
	if err := h.up.MarkStable(); err != nil {
		return err
	}
	return c.JSON(response.Success(nil))
}

func (h *BridgeHandler) Version(c *fiber.Ctx) error {
	info, err := h.up.VersionInfo()
	if err != nil {
		return err
	}
	return c.JSON(response.Success(info))
}

func (h *BridgeHandler) Reset(c *fiber.Ctx) error {
	if err := h.up.Reset(); err != nil {
		return err
	}
	return c.JSON(response.Success(nil))
}

func (h *BridgeHandler) GetBlocking(c *fiber.Ctx) error {
	enabled, err := h.up.BlockingEnabled()
	if err != nil {
		return err
	}
	return c.JSON(response.Success(fiber.Map{"enabled": enabled}))
}

func (h *BridgeHandler) SetBlocking(c *fiber.Ctx) error {
	req := new(model.SetBlockingRequest)
	if err := validator.ValidateBody(c, req); err != nil {
		return err
	}
	if err := h.up.SetBlockingEnabled(req.Enabled); err != nil {
		return err
	}
	return c.JSON(response.Success(nil))
}

// Push relays a raw notification payload from the host. Non-update
// notifications are accepted and ignored.
func (h *BridgeHandler) Push(c *fiber.Ctx) error {
	userInfo := make(map[string]any)
	if err := c.BodyParser(&userInfo); err != nil {
		return fiber.ErrBadRequest
	}

	h.sched.HandlePush(userInfo)
	return c.JSON(response.Success(nil))
}

func (h *BridgeHandler) Foreground(c *fiber.Ctx) error {
	h.sched.HandleForeground()
	return c.JSON(response.Success(nil))
}

func (h *BridgeHandler) Background(c *fiber.Ctx) error {
	h.sched.HandleBackground()
	return c.JSON(response.Success(nil))
}

// eventsHeartbeat bounds how long a dead idle subscriber can keep its
// stream goroutine and channel alive: the periodic write surfaces the
// broken connection even when no events flow.
var eventsHeartbeat = 15 * time.Second

// Events streams lifecycle events as newline-delimited JSON until the
// client disconnects.
func (h *BridgeHandler) Events(c *fiber.Ctx) error {
	id, ch := h.nt.Subscribe()

	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		h.streamEvents(w, id, ch)
	}))
	return nil
}

func (h *BridgeHandler) streamEvents(w *bufio.Writer, id string, ch <-chan notifier.Event) {
	defer h.nt.Unsubscribe(id)

	ticker := time.NewTicker(eventsHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			buf, err := sonic.Marshal(ev)
			if err != nil {
				continue
			}
			if writeEventLine(w, buf) != nil {
				return
			}
		case <-ticker.C:
			if writeEventLine(w, []byte("{}")) != nil {
				return
			}
		}
	}
}

func writeEventLine(w *bufio.Writer, buf []byte) error {
	if _, err := w.Write(append(buf, '\n')); err != nil {
		return err
	}
	return w.Flush()
}
