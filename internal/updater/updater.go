// Package updater owns the update lifecycle state machine:
// check → diff → download → register → swap, with persistence of every
// transition and crash-triggered rollback.
package updater

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hybridkit/ota-agent/internal/adapter"
	"github.com/hybridkit/ota-agent/internal/cacheng"
	"github.com/hybridkit/ota-agent/internal/config"
	"github.com/hybridkit/ota-agent/internal/diffengine"
	"github.com/hybridkit/ota-agent/internal/metrics"
	"github.com/hybridkit/ota-agent/internal/model"
	"github.com/hybridkit/ota-agent/internal/notifier"
	"github.com/hybridkit/ota-agent/internal/pkg/cachekey"
	"github.com/hybridkit/ota-agent/internal/pkg/errs"
	"github.com/hybridkit/ota-agent/internal/remote"
	"github.com/hybridkit/ota-agent/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ContextProbe reports whether the current execution context can safely
// persist a cache swap. Background execution windows are not safe; the swap
// is deferred until the app is foregrounded.
type ContextProbe interface {
	SafeToSwap() bool
}

// Outcome is the terminal state of a successful download.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeDeferred
)

type Updater struct {
	logger   *zap.Logger
	conf     *config.Config
	store    *store.Store
	client   *remote.Client
	adapter  *adapter.Adapter
	engine   cacheng.Engine
	notifier *notifier.Notifier
	probe    ContextProbe

	// mu serializes mutations of the persisted update record.
	mu  sync.Mutex
	cfg *model.AgentConfig
	key string

	downloading atomic.Bool
	cancelled   atomic.Bool

	jobMu sync.Mutex
	jobID string
}

func New(
	conf *config.Config,
	logger *zap.Logger,
	st *store.Store,
	client *remote.Client,
	ad *adapter.Adapter,
	engine cacheng.Engine,
	nt *notifier.Notifier,
	probe ContextProbe,
) *Updater {
	u := &Updater{
		logger:   logger,
		conf:     conf,
		store:    st,
		client:   client,
		adapter:  ad,
		engine:   engine,
		notifier: nt,
		probe:    probe,
	}

	if cfg, err := st.Config(); err != nil {
		logger.Error("Failed to load persisted configuration",
			zap.Error(err),
		)
	} else if cfg != nil {
		u.cfg = cfg
		u.key = cachekey.ForApplication(cfg.Hostname, cfg.ApplicationPath)
	}

	return u
}

// Configure persists the update endpoint and application identity. A valid
// currentVersionHint overwrites the stored current version directly; without
// one the current version is recovered lazily from the engine's running
// frame.
func (u *Updater) Configure(baseURL, hostname, applicationPath, currentVersionHint string) error {
	if baseURL == "" || hostname == "" || applicationPath == "" {
		return errs.ErrInvalidConfiguration.WithDetail("baseURL, hostname and applicationPath are required")
	}

	cfg := &model.AgentConfig{
		BaseURL:         remote.TrimBaseURL(baseURL),
		Hostname:        hostname,
		ApplicationPath: cachekey.NormalizePath(applicationPath),
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.store.SetConfig(cfg); err != nil {
		return errs.ErrInvalidConfiguration.Wrap(err)
	}
	u.cfg = cfg
	u.key = cachekey.ForApplication(cfg.Hostname, cfg.ApplicationPath)

	if currentVersionHint != "" {
		if !model.IsValidToken(currentVersionHint) {
			u.logger.Warn("ignoring invalid current version hint",
				zap.String("hint", currentVersionHint),
			)
			return nil
		}
		if err := u.store.SetCurrentVersion(currentVersionHint); err != nil {
			return errs.ErrInvalidConfiguration.Wrap(err)
		}
	}

	u.logger.Info("update manager configured",
		zap.String("base url", cfg.BaseURL),
		zap.String("hostname", cfg.Hostname),
		zap.String("application path", cfg.ApplicationPath),
	)
	return nil
}

func (u *Updater) configured() (*model.AgentConfig, string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.cfg == nil {
		return nil, "", errs.ErrInvalidConfiguration.WithDetail("update manager not configured")
	}
	return u.cfg, u.key, nil
}

// reconcileCurrent aligns the stored current version with the engine's
// running frame. The running frame is authoritative: on disagreement the
// stored value is corrected, never the reverse.
func (u *Updater) reconcileCurrent(key string) string {
	stored, err := u.store.CurrentVersion()
	if err != nil {
		u.logger.Error("Failed to read current version",
			zap.Error(err),
		)
	}

	frameVer, err := u.engine.RunningVersion(key)
	if err != nil {
		u.logger.Error("Failed to read running frame version",
			zap.Error(err),
		)
		return stored
	}

	if model.IsValidToken(frameVer) && frameVer != stored {
		u.logger.Warn("stored current version corrected from running frame",
			zap.String("stored", stored),
			zap.String("frame", frameVer),
		)
		if err := u.store.SetCurrentVersion(frameVer); err != nil {
			u.logger.Error("Failed to persist reconciled version",
				zap.Error(err),
			)
		}
		return frameVer
	}
	return stored
}

// CheckForUpdates fetches the remote version token and compares it against
// the reconciled current version. The first check with an unknown local
// version adopts the remote token without signaling an update.
func (u *Updater) CheckForUpdates(ctx context.Context) (model.CheckResult, error) {
	cfg, key, err := u.configured()
	if err != nil {
		return model.CheckResult{}, err
	}

	token, err := u.client.VersionToken(ctx, cfg.BaseURL)
	if err != nil {
		metrics.Checks.WithLabelValues("error").Inc()
		return model.CheckResult{}, err
	}
	if !model.IsValidToken(token) {
		metrics.Checks.WithLabelValues("error").Inc()
		return model.CheckResult{}, errs.ErrVersionCheckFailed.WithDetail("invalid remote version token")
	}

	current := u.reconcileCurrent(key)

	if err := u.store.SetLastCheck(time.Now()); err != nil {
		u.logger.Error("Failed to persist last check timestamp",
			zap.Error(err),
		)
	}

	if !model.IsValidToken(current) {
		// bootstrap: adopt the remote token, not a real update
		if err := u.store.SetCurrentVersion(token); err != nil {
			return model.CheckResult{}, errs.ErrVersionCheckFailed.Wrap(err)
		}
		metrics.Checks.WithLabelValues("bootstrap").Inc()
		return model.CheckResult{HasUpdate: false, Version: token}, nil
	}

	hasUpdate := token != current
	if hasUpdate {
		metrics.Checks.WithLabelValues("update").Inc()
	} else {
		metrics.Checks.WithLabelValues("no_update").Inc()
	}
	return model.CheckResult{HasUpdate: hasUpdate, Version: token}, nil
}

// DownloadUpdate runs one full incremental download. A second call while
// one is in flight fails with AlreadyDownloading and leaves the in-flight
// download unaffected. Cancellation resolves as Cancelled, a distinct
// terminal state.
func (u *Updater) DownloadUpdate(ctx context.Context, onProgress func(model.Progress)) (Outcome, error) {
	cfg, key, err := u.configured()
	if err != nil {
		return 0, err
	}

	if !u.downloading.CompareAndSwap(false, true) {
		return 0, errs.ErrAlreadyDownloading
	}
	defer u.downloading.Store(false)

	u.cancelled.Store(false)
	metrics.DownloadInFlight.Set(1)
	defer metrics.DownloadInFlight.Set(0)

	m, err := u.client.Manifest(ctx, cfg.BaseURL)
	if err != nil {
		u.notifier.StatusDetail(notifier.StatusFailed, "", err.Error())
		metrics.Downloads.WithLabelValues("failed").Inc()
		return 0, err
	}
	if !model.IsValidToken(m.VersionToken) {
		metrics.Downloads.WithLabelValues("failed").Inc()
		return 0, errs.ErrManifestFetchFailed.WithDetail("invalid manifest version token")
	}

	current := u.reconcileCurrent(key)
	if m.VersionToken == current {
		return 0, errs.ErrNoUpdateAvailable
	}

	snapshot, err := u.store.Snapshot()
	if err != nil {
		return 0, errs.ErrDownloadFailed.Wrap(err)
	}

	changed := diffengine.Changed(snapshot, m.URLVersions)
	if len(changed) == 0 {
		return 0, errs.ErrNoUpdateAvailable
	}
	skipped := len(m.URLVersions) - len(changed)

	jobID := adapter.NewJobID()
	u.setJob(jobID)
	defer u.setJob("")

	u.notifier.Status(notifier.StatusDownloading, m.VersionToken)
	u.logger.Info("download started",
		zap.String("version", m.VersionToken),
		zap.Int("changed", len(changed)),
		zap.Int("skipped", skipped),
	)

	frame, err := u.adapter.Download(ctx, jobID, adapter.DownloadRequest{
		Key:     key,
		Version: m.VersionToken,
		BaseURL: cfg.BaseURL,
		Changed: changed,
		Skipped: skipped,
	}, func(p model.Progress) {
		metrics.FilesDownloaded.Inc()
		u.notifier.Progress(m.VersionToken, p)
		if onProgress != nil {
			onProgress(p)
		}
	})
	if err != nil {
		if u.cancelled.Load() || errors.Is(err, context.Canceled) {
			u.notifier.Status(notifier.StatusCancelled, m.VersionToken)
			metrics.Downloads.WithLabelValues("cancelled").Inc()
			return 0, errs.ErrCancelled
		}
		u.notifier.StatusDetail(notifier.StatusFailed, m.VersionToken, err.Error())
		metrics.Downloads.WithLabelValues("failed").Inc()
		return 0, errs.ErrDownloadFailed.Wrap(err)
	}

	// cancellation checkpoint: never register a frame for a cancelled job
	if u.cancelled.Load() {
		u.notifier.Status(notifier.StatusCancelled, m.VersionToken)
		metrics.Downloads.WithLabelValues("cancelled").Inc()
		return 0, errs.ErrCancelled
	}

	metrics.FilesSkipped.Add(float64(skipped))

	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.probe.SafeToSwap() {
		if err := u.adapter.RegisterAndDefer(frame); err != nil {
			metrics.Downloads.WithLabelValues("failed").Inc()
			return 0, err
		}
		if err := u.persistDownloaded(m); err != nil {
			return 0, errs.ErrDownloadFailed.Wrap(err)
		}
		if err := u.store.SetPendingSwap(m.VersionToken, time.Now()); err != nil {
			return 0, errs.ErrDownloadFailed.Wrap(err)
		}
		metrics.SwapsDeferred.Inc()
		metrics.Downloads.WithLabelValues("deferred").Inc()
		u.notifier.Status(notifier.StatusDeferred, m.VersionToken)
		u.logger.Info("swap deferred until safe execution context",
			zap.String("version", m.VersionToken),
		)
		return OutcomeDeferred, nil
	}

	if err := u.adapter.RegisterAndSwap(frame, m); err != nil {
		// previous version remains authoritative and the snapshot is still
		// the old one, so the next check re-attempts the whole download
		u.notifier.StatusDetail(notifier.StatusFailed, m.VersionToken, err.Error())
		metrics.Downloads.WithLabelValues("failed").Inc()
		return 0, err
	}

	if err := u.persistDownloaded(m); err != nil {
		return 0, errs.ErrDownloadFailed.Wrap(err)
	}
	if err := u.promote(m.VersionToken); err != nil {
		return 0, errs.ErrApplyFailed.Wrap(err)
	}

	u.client.EvictVersionToken(cfg.BaseURL)
	metrics.Downloads.WithLabelValues("applied").Inc()
	u.notifier.Status(notifier.StatusApplied, m.VersionToken)
	return OutcomeApplied, nil
}

// persistDownloaded records the downloaded version and the new hash snapshot.
// Must never run before the swap-or-defer succeeded: a failed swap behind an
// already-updated snapshot would diff to an empty changed set and wedge the
// update on that version. Callers must hold u.mu.
func (u *Updater) persistDownloaded(m *model.Manifest) error {
	if err := u.store.SetDownloadedVersion(m.VersionToken); err != nil {
		return err
	}
	return u.store.SetSnapshot(m.URLVersions)
}

// promote makes version the rollback-bookkeeping current version and arms
// crash detection. Callers must hold u.mu.
func (u *Updater) promote(version string) error {
	prev, err := u.store.CurrentVersion()
	if err != nil {
		return err
	}
	if model.IsValidToken(prev) && prev != version {
		if err := u.store.SetPreviousVersion(prev); err != nil {
			return err
		}
	}
	if err := u.store.SetCurrentVersion(version); err != nil {
		return err
	}
	if err := u.store.ClearDownloadedVersion(); err != nil {
		return err
	}
	if err := u.store.ClearPendingSwap(); err != nil {
		return err
	}
	return u.store.SetCrashDetectionArmed(true)
}

// ApplyUpdate promotes the downloaded version to current and arms crash
// detection. The cache swap itself already happened at download-completion
// time; this is the rollback bookkeeping contract.
func (u *Updater) ApplyUpdate() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	dv, err := u.store.DownloadedVersion()
	if err != nil {
		return errs.ErrApplyFailed.Wrap(err)
	}
	if !model.IsValidToken(dv) {
		return errs.ErrApplyFailed.WithDetail("no downloaded version available")
	}
	if err := u.promote(dv); err != nil {
		return errs.ErrApplyFailed.Wrap(err)
	}

	u.notifier.Status(notifier.StatusApplied, dv)
	return nil
}

// Rollback reverts to the stored previous version. Absence of a previous
// version is a hard failure, not a no-op.
func (u *Updater) Rollback() error {
	return u.rollback("manual")
}

func (u *Updater) rollback(trigger string) error {
	_, key, err := u.configured()
	if err != nil {
		return errs.ErrRollbackFailed.Wrap(err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	prev, err := u.store.PreviousVersion()
	if err != nil {
		return errs.ErrRollbackFailed.Wrap(err)
	}
	if !model.IsValidToken(prev) {
		return errs.ErrRollbackFailed.WithDetail("No previous version available")
	}

	if err := u.engine.Revert(key, prev); err != nil {
		return errs.ErrRollbackFailed.Wrap(err)
	}
	if err := u.engine.WriteManifest(key); err != nil {
		return errs.ErrRollbackFailed.Wrap(err)
	}

	if err := u.store.SetCurrentVersion(prev); err != nil {
		return errs.ErrRollbackFailed.Wrap(err)
	}
	if err := u.store.ClearDownloadedVersion(); err != nil {
		return errs.ErrRollbackFailed.Wrap(err)
	}
	if err := u.store.ClearPreviousVersion(); err != nil {
		return errs.ErrRollbackFailed.Wrap(err)
	}
	if err := u.store.SetCrashDetectionArmed(false); err != nil {
		return errs.ErrRollbackFailed.Wrap(err)
	}

	metrics.Rollbacks.WithLabelValues(trigger).Inc()
	u.notifier.Status(notifier.StatusRolledBack, prev)
	u.logger.Warn("rolled back to previous version",
		zap.String("version", prev),
		zap.String("trigger", trigger),
	)
	return nil
}

// CancelDownload requests cooperative cancellation of the in-flight
// download; no-op when nothing is downloading.
func (u *Updater) CancelDownload() {
	if !u.downloading.Load() {
		return
	}
	u.cancelled.Store(true)

	u.jobMu.Lock()
	jobID := u.jobID
	u.jobMu.Unlock()

	if jobID != "" {
		u.adapter.Cancel(jobID)
	}
}

func (u *Updater) setJob(jobID string) {
	u.jobMu.Lock()
	u.jobID = jobID
	u.jobMu.Unlock()
}

// Downloading reports whether a download is currently in flight.
func (u *Updater) Downloading() bool {
	return u.downloading.Load()
}
