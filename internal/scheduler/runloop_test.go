package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hybridkit/ota-agent/internal/adapter"
	"github.com/hybridkit/ota-agent/internal/cacheng"
	"github.com/hybridkit/ota-agent/internal/config"
	"github.com/hybridkit/ota-agent/internal/model"
	"github.com/hybridkit/ota-agent/internal/notifier"
	"github.com/hybridkit/ota-agent/internal/remote"
	"github.com/hybridkit/ota-agent/internal/store"
	"github.com/hybridkit/ota-agent/internal/updater"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubWake hands wake signals to the loop under test control.
type stubWake struct {
	ch chan time.Time
}

func newStubWake() *stubWake {
	return &stubWake{ch: make(chan time.Time, 1)}
}

func (w *stubWake) Wake() <-chan time.Time              { return w.ch }
func (w *stubWake) RequestMinimumInterval(time.Duration) {}
func (w *stubWake) Stop()                                {}

// stubWindow counts scopes and captures the expiry callback so tests can
// force an expiry mid-sequence.
type stubWindow struct {
	mu       sync.Mutex
	begins   int
	releases int
	onExpire func()
}

func (w *stubWindow) Begin(name string, onExpire func()) Scope {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.begins++
	w.onExpire = onExpire
	return &stubScope{w: w}
}

func (w *stubWindow) expire() {
	w.mu.Lock()
	fire := w.onExpire
	w.mu.Unlock()
	if fire != nil {
		fire()
	}
}

func (w *stubWindow) counts() (begins, releases int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.begins, w.releases
}

type stubScope struct {
	w *stubWindow
}

func (s *stubScope) Release() {
	s.w.mu.Lock()
	s.w.releases++
	s.w.mu.Unlock()
}

// stubEngine is a minimal in-memory engine; with block set, Download parks
// until cancelled so expiry behavior can be observed.
type stubEngine struct {
	mu      sync.Mutex
	running string
	ongoing string
	block   bool

	started   chan struct{}
	startOnce sync.Once
}

func newStubEngine() *stubEngine {
	return &stubEngine{started: make(chan struct{})}
}

func (f *stubEngine) setBlocking() {
	f.mu.Lock()
	f.block = true
	f.mu.Unlock()
}

func (f *stubEngine) RunningVersion(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, nil
}

func (f *stubEngine) ManifestVersion(key string) (string, error) { return "", nil }

func (f *stubEngine) Download(ctx context.Context, job cacheng.Job, onProgress func(int)) error {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()

	if block {
		f.startOnce.Do(func() { close(f.started) })
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *stubEngine) CancelDownload(jobID string) {}

func (f *stubEngine) RegisterFrame(frame cacheng.Frame) error { return nil }

func (f *stubEngine) SetOngoing(key, version string) error {
	f.mu.Lock()
	f.ongoing = version
	f.mu.Unlock()
	return nil
}

func (f *stubEngine) SwapCache(key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ongoing == "" {
		return false, nil
	}
	f.running = f.ongoing
	f.ongoing = ""
	return true, nil
}

func (f *stubEngine) Revert(key, version string) error {
	f.mu.Lock()
	f.running = version
	f.mu.Unlock()
	return nil
}

func (f *stubEngine) WriteEntry(key, alias, target string) error { return nil }
func (f *stubEngine) WriteManifest(key string) error             { return nil }

type loopFixture struct {
	store    *store.Store
	engine   *stubEngine
	window   *stubWindow
	wake     *stubWake
	appState *AppState
	sched    *Scheduler
	up       *updater.Updater
}

// newLoopFixture wires a running scheduler loop against a server offering
// remoteToken, with the device on v1.
func newLoopFixture(t *testing.T, remoteToken string) *loopFixture {
	t.Helper()

	m := model.Manifest{
		VersionToken: remoteToken,
		URLVersions:  map[string]string{"index.html": remoteToken + "-h1"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var body any
		switch r.URL.Path {
		case "/moduleservices/moduleversioninfo":
			body = model.VersionInfoResponse{VersionToken: remoteToken}
		case "/moduleservices/moduleinfo":
			body = model.ManifestResponse{Manifest: m}
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		buf, err := sonic.Marshal(body)
		require.NoError(t, err)
		_, _ = w.Write(buf)
	}))
	t.Cleanup(srv.Close)

	conf := &config.Config{
		Update: config.UpdateConfig{
			RequestTimeout:  5 * time.Second,
			VersionCacheTTL: time.Minute,
		},
	}

	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var (
		logger   = zap.NewNop()
		engine   = newStubEngine()
		appState = NewAppState()
		client   = remote.NewClient(conf, logger)
		nt       = notifier.New(logger)
	)

	up := updater.New(conf, logger, st, client, adapter.New(logger, engine), engine, nt, appState)
	require.NoError(t, up.Configure(srv.URL, "apps.example.com", "MyApp", "v1"))

	var (
		wake   = newStubWake()
		window = &stubWindow{}
		sched  = New(logger, up, wake, window, appState)
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = sched.Start(ctx) }()
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		require.NoError(t, sched.Stop(stopCtx))
		cancel()
	})

	return &loopFixture{
		store:    st,
		engine:   engine,
		window:   window,
		wake:     wake,
		appState: appState,
		sched:    sched,
		up:       up,
	}
}

func (f *loopFixture) requireScopesBalanced(t *testing.T, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		begins, releases := f.window.counts()
		return begins == want && releases == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWakeSequenceAppliesUpdateInSafeContext(t *testing.T) {

	f := newLoopFixture(t, "v2")
	f.appState.SetForeground(true)

	f.wake.ch <- time.Now()

	require.Eventually(t, func() bool {
		current, err := f.store.CurrentVersion()
		return err == nil && current == "v2"
	}, 5*time.Second, 10*time.Millisecond)

	f.requireScopesBalanced(t, 1)
}

func TestWakeSequenceNoUpdateReleasesScope(t *testing.T) {

	f := newLoopFixture(t, "v1")

	f.wake.ch <- time.Now()

	f.requireScopesBalanced(t, 1)

	current, err := f.store.CurrentVersion()
	require.NoError(t, err)
	require.Equal(t, "v1", current)
}

func TestWakeSequenceDefersThenForegroundCompletes(t *testing.T) {

	f := newLoopFixture(t, "v2")

	// backgrounded: the download lands but the swap must wait
	f.wake.ch <- time.Now()

	require.Eventually(t, func() bool {
		pending, _, err := f.store.PendingSwap()
		return err == nil && pending == "v2"
	}, 5*time.Second, 10*time.Millisecond)

	current, err := f.store.CurrentVersion()
	require.NoError(t, err)
	require.Equal(t, "v1", current)

	f.sched.HandleForeground()

	require.Eventually(t, func() bool {
		current, err := f.store.CurrentVersion()
		return err == nil && current == "v2"
	}, 5*time.Second, 10*time.Millisecond)

	pending, _, err := f.store.PendingSwap()
	require.NoError(t, err)
	require.Empty(t, pending)

	// the foreground retry runs outside an execution window
	f.requireScopesBalanced(t, 1)
}

func TestWindowExpiryCancelsInFlightDownload(t *testing.T) {

	f := newLoopFixture(t, "v2")
	f.engine.setBlocking()

	f.wake.ch <- time.Now()
	<-f.engine.started

	f.window.expire()

	// the sequence still releases its scope after the cancellation
	f.requireScopesBalanced(t, 1)

	require.Eventually(t, func() bool {
		return !f.up.Downloading()
	}, 2*time.Second, 10*time.Millisecond)

	current, err := f.store.CurrentVersion()
	require.NoError(t, err)
	require.Equal(t, "v1", current)

	pending, _, err := f.store.PendingSwap()
	require.NoError(t, err)
	require.Empty(t, pending)
}
