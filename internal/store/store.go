// Package store is the durable key/value home of the update record:
// version tokens, the asset hash snapshot, crash-detection flag and
// deferred-swap markers. Every read-modify-write on these fields is funneled
// through the update manager; the store itself only offers per-field access.
package store

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v4"
	"github.com/hybridkit/ota-agent/internal/model"
	"github.com/pkg/errors"
)

const (
	keyAgentConfig          = "agent-config"
	keyCurrentVersion       = "current-version"
	keyPreviousVersion      = "previous-version"
	keyDownloadedVersion    = "downloaded-version"
	keySnapshot             = "asset-hash-snapshot"
	keyBlockingEnabled      = "ota-blocking-enabled"
	keyLastCheck            = "last-check-timestamp"
	keyCrashDetection       = "crash-detection-flag"
	keyPendingSwapVersion   = "pending-swap-version"
	keyPendingSwapTimestamp = "pending-swap-timestamp"
)

type Store struct {
	db *badger.DB
}

func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open state store")
	}
	return &Store{db: db}, nil
}

// OpenInMemory backs the store with no disk at all, for tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open in-memory state store")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(key string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return val, err
}

func (s *Store) set(key string, val []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

func (s *Store) delete(keys ...string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) getString(key string) (string, error) {
	val, err := s.get(key)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (s *Store) getBool(key string) (bool, error) {
	val, err := s.getString(key)
	if err != nil {
		return false, err
	}
	return val == "1", nil
}

func (s *Store) setBool(key string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return s.set(key, []byte(val))
}

func (s *Store) getTime(key string) (time.Time, error) {
	val, err := s.getString(key)
	if err != nil || val == "" {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse %s", key)
	}
	return ts, nil
}

func (s *Store) setTime(key string, ts time.Time) error {
	return s.set(key, []byte(ts.Format(time.RFC3339Nano)))
}

func (s *Store) Config() (*model.AgentConfig, error) {
	val, err := s.get(keyAgentConfig)
	if err != nil || val == nil {
		return nil, err
	}
	cfg := new(model.AgentConfig)
	if err := sonic.Unmarshal(val, cfg); err != nil {
		return nil, errors.Wrap(err, "decode agent config")
	}
	return cfg, nil
}

func (s *Store) SetConfig(cfg *model.AgentConfig) error {
	buf, err := sonic.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode agent config")
	}
	return s.set(keyAgentConfig, buf)
}

func (s *Store) CurrentVersion() (string, error) {
	return s.getString(keyCurrentVersion)
}

func (s *Store) SetCurrentVersion(v string) error {
	return s.set(keyCurrentVersion, []byte(v))
}

func (s *Store) PreviousVersion() (string, error) {
	return s.getString(keyPreviousVersion)
}

func (s *Store) SetPreviousVersion(v string) error {
	return s.set(keyPreviousVersion, []byte(v))
}

func (s *Store) ClearPreviousVersion() error {
	return s.delete(keyPreviousVersion)
}

func (s *Store) DownloadedVersion() (string, error) {
	return s.getString(keyDownloadedVersion)
}

func (s *Store) SetDownloadedVersion(v string) error {
	return s.set(keyDownloadedVersion, []byte(v))
}

func (s *Store) ClearDownloadedVersion() error {
	return s.delete(keyDownloadedVersion)
}

// Snapshot returns the hash map persisted after the last fully successful
// download, the diff baseline for the next check. Missing snapshot yields a
// nil map.
func (s *Store) Snapshot() (map[string]string, error) {
	val, err := s.get(keySnapshot)
	if err != nil || val == nil {
		return nil, err
	}
	var snap map[string]string
	if err := sonic.Unmarshal(val, &snap); err != nil {
		return nil, errors.Wrap(err, "decode asset hash snapshot")
	}
	return snap, nil
}

func (s *Store) SetSnapshot(snap map[string]string) error {
	buf, err := sonic.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode asset hash snapshot")
	}
	return s.set(keySnapshot, buf)
}

func (s *Store) BlockingEnabled() (bool, error) {
	return s.getBool(keyBlockingEnabled)
}

func (s *Store) SetBlockingEnabled(enabled bool) error {
	return s.setBool(keyBlockingEnabled, enabled)
}

func (s *Store) LastCheck() (time.Time, error) {
	return s.getTime(keyLastCheck)
}

func (s *Store) SetLastCheck(ts time.Time) error {
	return s.setTime(keyLastCheck, ts)
}

func (s *Store) CrashDetectionArmed() (bool, error) {
	return s.getBool(keyCrashDetection)
}

func (s *Store) SetCrashDetectionArmed(armed bool) error {
	return s.setBool(keyCrashDetection, armed)
}

// PendingSwap returns the deferred-swap markers; an empty version means no
// swap is pending.
func (s *Store) PendingSwap() (string, time.Time, error) {
	version, err := s.getString(keyPendingSwapVersion)
	if err != nil || version == "" {
		return "", time.Time{}, err
	}
	ts, err := s.getTime(keyPendingSwapTimestamp)
	if err != nil {
		return "", time.Time{}, err
	}
	return version, ts, nil
}

func (s *Store) SetPendingSwap(version string, ts time.Time) error {
	if err := s.set(keyPendingSwapVersion, []byte(version)); err != nil {
		return err
	}
	return s.setTime(keyPendingSwapTimestamp, ts)
}

func (s *Store) ClearPendingSwap() error {
	return s.delete(keyPendingSwapVersion, keyPendingSwapTimestamp)
}

// Reset clears every persisted field of the update record.
func (s *Store) Reset() error {
	return s.delete(
		keyAgentConfig,
		keyCurrentVersion,
		keyPreviousVersion,
		keyDownloadedVersion,
		keySnapshot,
		keyBlockingEnabled,
		keyLastCheck,
		keyCrashDetection,
		keyPendingSwapVersion,
		keyPendingSwapTimestamp,
	)
}
