// Package remote fetches the server's version token and full manifest over
// HTTPS. Errors surface to the caller verbatim; retry policy belongs to the
// caller.
package remote

import (
	"context"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/hybridkit/ota-agent/internal/cache"
	"github.com/hybridkit/ota-agent/internal/config"
	"github.com/hybridkit/ota-agent/internal/model"
	"github.com/hybridkit/ota-agent/internal/pkg/errs"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	versionInfoPath = "/moduleservices/moduleversioninfo"
	moduleInfoPath  = "/moduleservices/moduleinfo"
)

type Client struct {
	conf   *config.Config
	logger *zap.Logger
	http   *fasthttp.Client

	// versions dedupes concurrent checks and keeps the token briefly warm;
	// manifest fetches always hit the network.
	versions *cache.Cache[string, string]
}

func NewClient(conf *config.Config, logger *zap.Logger) *Client {
	return &Client{
		conf:     conf,
		logger:   logger,
		http:     &fasthttp.Client{},
		versions: cache.NewCache[string, string](conf.Update.VersionCacheTTL),
	}
}

// VersionToken returns the remote version token for baseURL, served from the
// short-TTL cache when warm.
func (c *Client) VersionToken(ctx context.Context, baseURL string) (string, error) {
	token, err := c.versions.ComputeIfAbsent(baseURL, func() (string, error) {
		var res model.VersionInfoResponse
		if err := c.getJSON(ctx, baseURL+versionInfoPath, &res); err != nil {
			return "", err
		}
		return res.VersionToken, nil
	})
	if err != nil {
		return "", errs.ErrVersionCheckFailed.Wrap(err)
	}
	return *token, nil
}

// EvictVersionToken drops the cached token so the next check goes remote.
func (c *Client) EvictVersionToken(baseURL string) {
	c.versions.Delete(baseURL)
}

func (c *Client) Manifest(ctx context.Context, baseURL string) (*model.Manifest, error) {
	var res model.ManifestResponse
	if err := c.getJSON(ctx, baseURL+moduleInfoPath, &res); err != nil {
		return nil, errs.ErrManifestFetchFailed.Wrap(err)
	}
	return &res.Manifest, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		req  = fasthttp.AcquireRequest()
		resp = fasthttp.AcquireResponse()
	)
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.SetRequestURI(url)
	req.Header.SetMethod(fiber.MethodGet)
	req.Header.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)

	if err := c.http.DoTimeout(req, resp, c.conf.Update.RequestTimeout); err != nil {
		c.logger.Error("Failed to send request",
			zap.String("url", url),
			zap.Error(err),
		)
		return err
	}

	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return errors.Errorf("unexpected status %d from %s", code, url)
	}

	if err := sonic.Unmarshal(resp.Body(), dest); err != nil {
		c.logger.Error("Failed to decode response",
			zap.String("url", url),
			zap.Error(err),
		)
		return errors.Wrap(err, "decode response body")
	}

	return nil
}

// TrimBaseURL normalizes a configured base URL so path joins stay stable.
func TrimBaseURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}
