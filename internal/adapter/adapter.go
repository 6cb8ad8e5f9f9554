// Package adapter drives the cache engine on behalf of the update manager:
// it turns a changed-file set into a download job and owns the
// register → arm → swap → alias-fixup → flush sequence.
package adapter

import (
	"context"
	"sort"

	"github.com/hybridkit/ota-agent/internal/cacheng"
	"github.com/hybridkit/ota-agent/internal/model"
	"github.com/hybridkit/ota-agent/internal/pkg/errs"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

type Adapter struct {
	logger *zap.Logger
	engine cacheng.Engine
}

func New(logger *zap.Logger, engine cacheng.Engine) *Adapter {
	return &Adapter{
		logger: logger,
		engine: engine,
	}
}

// DownloadRequest carries one incremental download: Changed is the diff
// result, Skipped the count of manifest files already present.
type DownloadRequest struct {
	Key     string
	Version string
	BaseURL string
	Changed map[string]string
	Skipped int
}

// NewJobID issues an opaque id for one download attempt.
func NewJobID() string {
	return ksuid.New().String()
}

// Download runs the engine transfer for every changed file, relaying
// progress as (downloaded, changedTotal, skippedTotal). The returned frame
// is complete but not yet registered.
func (a *Adapter) Download(ctx context.Context, jobID string, req DownloadRequest, onProgress func(model.Progress)) (cacheng.Frame, error) {
	var (
		total     = len(req.Changed)
		resources = make([]cacheng.Resource, 0, total)
	)
	for path, hash := range req.Changed {
		resources = append(resources, cacheng.Resource{Path: path, Hash: hash})
	}
	sort.Slice(resources, func(i, j int) bool {
		return resources[i].Path < resources[j].Path
	})

	job := cacheng.Job{
		ID:        jobID,
		Key:       req.Key,
		Version:   req.Version,
		BaseURL:   req.BaseURL,
		Resources: resources,
	}

	err := a.engine.Download(ctx, job, func(completed int) {
		if onProgress != nil {
			onProgress(model.Progress{
				Downloaded: completed,
				Total:      total,
				Skipped:    req.Skipped,
			})
		}
	})
	if err != nil {
		return cacheng.Frame{}, err
	}

	return cacheng.Frame{
		Key:     req.Key,
		Version: req.Version,
		Entries: req.Changed,
	}, nil
}

func (a *Adapter) Cancel(jobID string) {
	a.engine.CancelDownload(jobID)
}

// RegisterAndSwap performs the full correctness-critical sequence after a
// download completed in a swap-safe context.
func (a *Adapter) RegisterAndSwap(frame cacheng.Frame, m *model.Manifest) error {
	if err := a.registerAndArm(frame); err != nil {
		return err
	}
	return a.CompleteSwap(frame.Key, frame.Version, m)
}

// RegisterAndDefer runs only registration and arming, leaving the swap for a
// later safe execution context. The armed frame is flushed to the engine
// manifest so it survives a process restart while the swap is pending.
func (a *Adapter) RegisterAndDefer(frame cacheng.Frame) error {
	if err := a.registerAndArm(frame); err != nil {
		return err
	}
	if err := a.engine.WriteManifest(frame.Key); err != nil {
		return errs.ErrDownloadFailed.Wrap(errors.Wrap(err, "flush armed frame"))
	}
	return nil
}

func (a *Adapter) registerAndArm(frame cacheng.Frame) error {
	if err := a.engine.RegisterFrame(frame); err != nil {
		return errs.ErrDownloadFailed.Wrap(errors.Wrap(err, "register frame"))
	}
	if err := a.engine.SetOngoing(frame.Key, frame.Version); err != nil {
		return errs.ErrDownloadFailed.Wrap(errors.Wrap(err, "arm ongoing frame"))
	}
	return nil
}

// CompleteSwap promotes the armed frame: swap, alias fix-up, then an
// explicit manifest flush. Swap success without a confirmed flush is not
// durable, so the flush failure fails the whole sequence.
func (a *Adapter) CompleteSwap(key, version string, m *model.Manifest) error {
	ok, err := a.engine.SwapCache(key)
	if err != nil {
		return errs.ErrDownloadFailed.Wrap(errors.Wrap(err, "swap cache"))
	}
	if !ok {
		return errs.ErrDownloadFailed.WithDetail("swapCache returned false")
	}

	a.fixupMappings(key, m)

	if err := a.engine.WriteManifest(key); err != nil {
		return errs.ErrDownloadFailed.Wrap(errors.Wrap(err, "flush cache manifest"))
	}

	a.logger.Info("cache frame swapped",
		zap.String("key", key),
		zap.String("version", version),
	)
	return nil
}

// fixupMappings re-resolves every alias to its new versioned path. The
// engine's swap leaves alias entries untouched; without this rewrite aliased
// resources keep resolving to the previous version's URLs.
func (a *Adapter) fixupMappings(key string, m *model.Manifest) {
	if m == nil {
		a.logger.Warn("no manifest for alias fix-up, aliases left as-is",
			zap.String("key", key),
		)
		return
	}

	rewrite := func(mappings map[string]string) {
		for alias, path := range mappings {
			hash, ok := m.URLVersions[path]
			if !ok {
				a.logger.Warn("alias target missing from manifest",
					zap.String("alias", alias),
					zap.String("path", path),
				)
				continue
			}
			if err := a.engine.WriteEntry(key, alias, model.VersionedPath(path, hash)); err != nil {
				a.logger.Error("Failed to rewrite alias entry",
					zap.String("alias", alias),
					zap.Error(err),
				)
			}
		}
	}

	rewrite(m.URLMappings)
	rewrite(m.URLMappingsNoCache)
}
