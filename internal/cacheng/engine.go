// Package cacheng defines the boundary to the asset-caching engine: the
// component that owns byte transfer, on-disk frame storage and per-file hash
// bookkeeping. The update manager only ever talks to this contract.
package cacheng

import (
	"context"

	"github.com/pkg/errors"
)

// Status is a frame's position in its lifecycle. A frame becomes visible to
// the web runtime only once swapped.
type Status string

const (
	StatusRegistered       Status = "REGISTERED"
	StatusOngoingConfirmed Status = "UPDATE_READY"
	StatusSwapped          Status = "SWAPPED"
)

// Frame is one version's fully downloaded, hash-verified bundle inside the
// engine's per-application registry.
type Frame struct {
	// Key is the application registry key, see pkg/cachekey.
	Key     string
	Version string
	// Entries maps asset path to content hash for every file of the bundle.
	Entries map[string]string
}

// Resource is one download unit: the asset path plus the content hash the
// engine appends as a cache-busting query.
type Resource struct {
	Path string
	Hash string
}

// Job describes one frame download.
type Job struct {
	ID        string
	Key       string
	Version   string
	BaseURL   string
	Resources []Resource
}

var (
	ErrFrameNotFound = errors.New("cacheng: frame not found")
	ErrNoOngoing     = errors.New("cacheng: no ongoing frame")
)

// Engine is the external cache engine surface the adapter drives. SwapCache
// deliberately reports success as a bool: a returned false must never be
// treated as a successful swap.
type Engine interface {
	// RunningVersion reports the version of the currently running frame for
	// an application key, empty when none is known.
	RunningVersion(key string) (string, error)

	// ManifestVersion reports the running version recorded in the engine's
	// durable manifest, which can lag the in-memory state when a flush was
	// skipped. Used for restart reconciliation.
	ManifestVersion(key string) (string, error)

	// Download transfers every resource of the job into the frame's storage,
	// invoking onProgress with the completed count after each file.
	Download(ctx context.Context, job Job, onProgress func(completed int)) error

	// CancelDownload stops an in-flight job. No-op for unknown ids.
	CancelDownload(jobID string)

	// RegisterFrame adds a completed frame to the per-application registry.
	// Idempotent by version token.
	RegisterFrame(frame Frame) error

	// SetOngoing arms the engine: cache status moves to update-ready with
	// this frame as the ongoing resource.
	SetOngoing(key, version string) error

	// SwapCache promotes the ongoing frame to the running frame. Does not
	// flush the manifest; callers must follow with WriteManifest.
	SwapCache(key string) (bool, error)

	// Revert makes a previously swapped frame the running frame again.
	Revert(key, version string) error

	// WriteEntry writes one alias entry into the running application cache.
	WriteEntry(key, alias, target string) error

	// WriteManifest flushes the engine's manifest to durable storage.
	WriteManifest(key string) error
}
