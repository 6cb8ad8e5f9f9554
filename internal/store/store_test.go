package store

import (
	"testing"
	"time"

	"github.com/hybridkit/ota-agent/internal/model"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestMissingKeysYieldZeroValues(t *testing.T) {

	s := newTestStore(t)

	current, err := s.CurrentVersion()
	require.NoError(t, err)
	require.Empty(t, current)

	cfg, err := s.Config()
	require.NoError(t, err)
	require.Nil(t, cfg)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Nil(t, snap)

	armed, err := s.CrashDetectionArmed()
	require.NoError(t, err)
	require.False(t, armed)

	lastCheck, err := s.LastCheck()
	require.NoError(t, err)
	require.True(t, lastCheck.IsZero())

	pending, _, err := s.PendingSwap()
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestVersionRoundTrip(t *testing.T) {

	s := newTestStore(t)

	require.NoError(t, s.SetCurrentVersion("v2"))
	require.NoError(t, s.SetPreviousVersion("v1"))
	require.NoError(t, s.SetDownloadedVersion("v3"))

	current, err := s.CurrentVersion()
	require.NoError(t, err)
	require.Equal(t, "v2", current)

	previous, err := s.PreviousVersion()
	require.NoError(t, err)
	require.Equal(t, "v1", previous)

	require.NoError(t, s.ClearDownloadedVersion())
	downloaded, err := s.DownloadedVersion()
	require.NoError(t, err)
	require.Empty(t, downloaded)
}

func TestConfigRoundTrip(t *testing.T) {

	s := newTestStore(t)

	in := &model.AgentConfig{
		BaseURL:         "https://apps.example.com",
		Hostname:        "apps.example.com",
		ApplicationPath: "MyApp",
	}
	require.NoError(t, s.SetConfig(in))

	out, err := s.Config()
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestSnapshotRoundTrip(t *testing.T) {

	s := newTestStore(t)

	in := map[string]string{
		"index.html":     "h1",
		"scripts/app.js": "h2",
	}
	require.NoError(t, s.SetSnapshot(in))

	out, err := s.Snapshot()
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestPendingSwapMarkers(t *testing.T) {

	s := newTestStore(t)

	ts := time.Now()
	require.NoError(t, s.SetPendingSwap("v2", ts))

	version, stored, err := s.PendingSwap()
	require.NoError(t, err)
	require.Equal(t, "v2", version)
	require.WithinDuration(t, ts, stored, time.Millisecond)

	require.NoError(t, s.ClearPendingSwap())

	version, _, err = s.PendingSwap()
	require.NoError(t, err)
	require.Empty(t, version)
}

func TestCrashDetectionFlag(t *testing.T) {

	s := newTestStore(t)

	require.NoError(t, s.SetCrashDetectionArmed(true))
	armed, err := s.CrashDetectionArmed()
	require.NoError(t, err)
	require.True(t, armed)

	require.NoError(t, s.SetCrashDetectionArmed(false))
	armed, err = s.CrashDetectionArmed()
	require.NoError(t, err)
	require.False(t, armed)
}

func TestReset(t *testing.T) {

	s := newTestStore(t)

	require.NoError(t, s.SetCurrentVersion("v2"))
	require.NoError(t, s.SetPreviousVersion("v1"))
	require.NoError(t, s.SetSnapshot(map[string]string{"index.html": "h1"}))
	require.NoError(t, s.SetCrashDetectionArmed(true))
	require.NoError(t, s.SetPendingSwap("v3", time.Now()))

	require.NoError(t, s.Reset())

	current, err := s.CurrentVersion()
	require.NoError(t, err)
	require.Empty(t, current)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Nil(t, snap)

	armed, err := s.CrashDetectionArmed()
	require.NoError(t, err)
	require.False(t, armed)

	pending, _, err := s.PendingSwap()
	require.NoError(t, err)
	require.Empty(t, pending)
}
