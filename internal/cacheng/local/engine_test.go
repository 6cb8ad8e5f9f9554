package local

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hybridkit/ota-agent/internal/cacheng"
	"github.com/hybridkit/ota-agent/internal/config"
	"github.com/hybridkit/ota-agent/internal/pkg/filehash"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T) (*Engine, *config.Config) {
	t.Helper()

	conf := &config.Config{
		Update: config.UpdateConfig{RequestTimeout: 5 * time.Second},
		Cache:  config.CacheConfig{Root: t.TempDir(), Workers: 4},
	}
	return New(conf, zap.NewNop()), conf
}

func serveFiles(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadVerifiesAndStoresResources(t *testing.T) {

	e, conf := newTestEngine(t)

	var (
		index = []byte("<html>v2</html>")
		app   = []byte("console.log('v2')")
	)
	srv := serveFiles(t, map[string][]byte{
		"/index.html":     index,
		"/scripts/app.js": app,
	})

	var progress []int
	err := e.Download(context.Background(), cacheng.Job{
		ID:      "job-1",
		Key:     "key",
		Version: "v2",
		BaseURL: srv.URL,
		Resources: []cacheng.Resource{
			{Path: "index.html", Hash: filehash.Sum(index)},
			{Path: "scripts/app.js", Hash: filehash.Sum(app)},
		},
	}, func(completed int) {
		progress = append(progress, completed)
	})
	require.NoError(t, err)
	require.Len(t, progress, 2)

	dir := filepath.Join(conf.Cache.Root, "key", "frames", "v2")

	got, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	require.Equal(t, index, got)

	got, err = os.ReadFile(filepath.Join(dir, "scripts", "app.js"))
	require.NoError(t, err)
	require.Equal(t, app, got)
}

func TestDownloadRejectsHashMismatch(t *testing.T) {

	e, _ := newTestEngine(t)

	srv := serveFiles(t, map[string][]byte{
		"/index.html": []byte("tampered content"),
	})

	err := e.Download(context.Background(), cacheng.Job{
		ID:      "job-1",
		Key:     "key",
		Version: "v2",
		BaseURL: srv.URL,
		Resources: []cacheng.Resource{
			{Path: "index.html", Hash: "deadbeef"},
		},
	}, nil)
	require.ErrorContains(t, err, "hash mismatch")
}

func TestDownloadFailsOnMissingResource(t *testing.T) {

	e, _ := newTestEngine(t)

	srv := serveFiles(t, nil)

	err := e.Download(context.Background(), cacheng.Job{
		ID:      "job-1",
		Key:     "key",
		Version: "v2",
		BaseURL: srv.URL,
		Resources: []cacheng.Resource{
			{Path: "missing.js", Hash: "h1"},
		},
	}, nil)
	require.ErrorContains(t, err, "unexpected status 404")
}

func TestSwapLifecycleIsDurable(t *testing.T) {

	e, conf := newTestEngine(t)

	frame := cacheng.Frame{
		Key:     "key",
		Version: "v2",
		Entries: map[string]string{"scripts/app.js": "h2"},
	}
	require.NoError(t, e.RegisterFrame(frame))
	// registration is idempotent by version
	require.NoError(t, e.RegisterFrame(frame))

	require.NoError(t, e.SetOngoing("key", "v2"))

	ok, err := e.SwapCache("key")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, e.WriteEntry("key", "app.js", "scripts/app.js?h2"))

	// the swap is not durable until the manifest flush
	diskVer, err := e.ManifestVersion("key")
	require.NoError(t, err)
	require.Empty(t, diskVer)

	require.NoError(t, e.WriteManifest("key"))

	diskVer, err = e.ManifestVersion("key")
	require.NoError(t, err)
	require.Equal(t, "v2", diskVer)

	// a fresh engine over the same root sees the flushed state
	reopened := New(conf, zap.NewNop())
	running, err := reopened.RunningVersion("key")
	require.NoError(t, err)
	require.Equal(t, "v2", running)
}

func TestArmedFrameSurvivesRestart(t *testing.T) {

	e, conf := newTestEngine(t)

	frame := cacheng.Frame{
		Key:     "key",
		Version: "v2",
		Entries: map[string]string{"scripts/app.js": "h2"},
	}
	require.NoError(t, e.RegisterFrame(frame))
	require.NoError(t, e.SetOngoing("key", "v2"))
	require.NoError(t, e.WriteManifest("key"))

	// a fresh engine over the same root can still complete the swap
	reopened := New(conf, zap.NewNop())
	ok, err := reopened.SwapCache("key")
	require.NoError(t, err)
	require.True(t, ok)

	running, err := reopened.RunningVersion("key")
	require.NoError(t, err)
	require.Equal(t, "v2", running)
}

func TestSwapWithoutOngoingFrameReturnsFalse(t *testing.T) {

	e, _ := newTestEngine(t)

	ok, err := e.SwapCache("key")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetOngoingUnknownFrameFails(t *testing.T) {

	e, _ := newTestEngine(t)

	err := e.SetOngoing("key", "v9")
	require.ErrorIs(t, err, cacheng.ErrFrameNotFound)
}

func TestRevertRestoresPreviousFrame(t *testing.T) {

	e, _ := newTestEngine(t)

	for _, version := range []string{"v1", "v2"} {
		require.NoError(t, e.RegisterFrame(cacheng.Frame{
			Key:     "key",
			Version: version,
			Entries: map[string]string{"index.html": version},
		}))
		require.NoError(t, e.SetOngoing("key", version))
		ok, err := e.SwapCache("key")
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, e.Revert("key", "v1"))

	running, err := e.RunningVersion("key")
	require.NoError(t, err)
	require.Equal(t, "v1", running)
}
