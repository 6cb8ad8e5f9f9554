package updater

import (
	"context"

	"github.com/hybridkit/ota-agent/internal/model"
	"github.com/hybridkit/ota-agent/internal/notifier"
	"go.uber.org/zap"
)

// RunStartupRecovery must run before any other update logic. An armed crash
// detection flag means the prior run never confirmed the new version stable,
// so the update is rolled back automatically. Afterwards any pending swap is
// reconciled against the engine's durable manifest.
func (u *Updater) RunStartupRecovery() error {
	armed, err := u.store.CrashDetectionArmed()
	if err != nil {
		return err
	}

	if armed {
		u.logger.Warn("crash detection flag armed at startup, rolling back")
		if err := u.rollback("crash"); err != nil {
			// disarm so a missing previous version cannot loop every boot
			if derr := u.store.SetCrashDetectionArmed(false); derr != nil {
				u.logger.Error("Failed to disarm crash detection",
					zap.Error(derr),
				)
			}
			return err
		}
	}

	return u.reconcilePendingSwap()
}

// reconcilePendingSwap handles "swap pending persistence": if the engine's
// on-disk manifest already records the pending version as running, the swap
// was durable and only the bookkeeping is missing.
func (u *Updater) reconcilePendingSwap() error {
	pending, _, err := u.store.PendingSwap()
	if err != nil || pending == "" {
		return err
	}

	_, key, err := u.configured()
	if err != nil {
		return nil
	}

	diskVer, err := u.engine.ManifestVersion(key)
	if err != nil {
		u.logger.Error("Failed to read durable cache manifest",
			zap.Error(err),
		)
		return nil
	}

	if diskVer == pending {
		u.logger.Info("pending swap already durable, promoting",
			zap.String("version", pending),
		)
		u.mu.Lock()
		defer u.mu.Unlock()
		return u.promote(pending)
	}

	u.logger.Info("swap still pending, will retry on next safe context",
		zap.String("version", pending),
	)
	return nil
}

// RetryDeferredSwap completes a swap that was deferred because the download
// finished in a disk-unsafe context. The manifest is re-fetched to pick up
// alias mappings; a version mismatch is logged and the swap proceeds with
// the pending frame regardless. On failure the markers stay in place so the
// next safe opportunity retries (at-least-once).
func (u *Updater) RetryDeferredSwap(ctx context.Context) error {
	pending, _, err := u.store.PendingSwap()
	if err != nil || pending == "" {
		return err
	}

	cfg, key, err := u.configured()
	if err != nil {
		return err
	}

	var m *model.Manifest
	if fetched, ferr := u.client.Manifest(ctx, cfg.BaseURL); ferr != nil {
		u.logger.Warn("manifest re-fetch failed, swapping without alias fix-up",
			zap.Error(ferr),
		)
	} else {
		if fetched.VersionToken != pending {
			u.logger.Warn("pending swap version differs from remote manifest, proceeding",
				zap.String("pending", pending),
				zap.String("remote", fetched.VersionToken),
			)
		}
		m = fetched
	}

	if err := u.adapter.CompleteSwap(key, pending, m); err != nil {
		u.logger.Error("deferred swap failed, markers kept for retry",
			zap.String("version", pending),
			zap.Error(err),
		)
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.promote(pending); err != nil {
		return err
	}

	u.client.EvictVersionToken(cfg.BaseURL)
	u.notifier.Status(notifier.StatusApplied, pending)
	u.logger.Info("deferred swap completed",
		zap.String("version", pending),
	)
	return nil
}

// MarkStable clears the crash detection flag. The surrounding application
// decides what "stable" means, typically first successful render.
func (u *Updater) MarkStable() error {
	if err := u.store.SetCrashDetectionArmed(false); err != nil {
		return err
	}
	u.logger.Info("current version confirmed stable")
	return nil
}

func (u *Updater) VersionInfo() (*model.VersionSummary, error) {
	current, err := u.store.CurrentVersion()
	if err != nil {
		return nil, err
	}
	downloaded, err := u.store.DownloadedVersion()
	if err != nil {
		return nil, err
	}
	previous, err := u.store.PreviousVersion()
	if err != nil {
		return nil, err
	}
	pending, _, err := u.store.PendingSwap()
	if err != nil {
		return nil, err
	}
	lastCheck, err := u.store.LastCheck()
	if err != nil {
		return nil, err
	}
	blocking, err := u.store.BlockingEnabled()
	if err != nil {
		return nil, err
	}
	armed, err := u.store.CrashDetectionArmed()
	if err != nil {
		return nil, err
	}

	return &model.VersionSummary{
		CurrentVersion:      current,
		DownloadedVersion:   downloaded,
		PreviousVersion:     previous,
		PendingSwapVersion:  pending,
		LastCheck:           lastCheck,
		BlockingEnabled:     blocking,
		CrashDetectionArmed: armed,
	}, nil
}

// Reset clears every persisted field of the update record.
func (u *Updater) Reset() error {
	u.CancelDownload()

	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.store.Reset(); err != nil {
		return err
	}
	u.cfg = nil
	u.key = ""

	u.logger.Info("update state reset")
	return nil
}

// BlockingEnabled is the capability flag the web runtime consults before
// running its own automatic update check.
func (u *Updater) BlockingEnabled() (bool, error) {
	return u.store.BlockingEnabled()
}

func (u *Updater) SetBlockingEnabled(enabled bool) error {
	return u.store.SetBlockingEnabled(enabled)
}
