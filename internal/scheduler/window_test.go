package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/hybridkit/ota-agent/internal/config"
	"github.com/stretchr/testify/require"
)

func TestWindowExpiryFiresOnExpire(t *testing.T) {

	w := NewTimeoutWindow(&config.Config{
		Background: config.BackgroundConfig{WindowTimeout: 10 * time.Millisecond},
	})

	expired := make(chan struct{})
	scope := w.Begin("test", func() {
		close(expired)
	})
	defer scope.Release()

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("window never expired")
	}
}

func TestReleaseBeforeExpiryStopsTheTimer(t *testing.T) {

	w := NewTimeoutWindow(&config.Config{
		Background: config.BackgroundConfig{WindowTimeout: 20 * time.Millisecond},
	})

	var fired atomic.Bool
	scope := w.Begin("test", func() {
		fired.Store(true)
	})
	scope.Release()

	time.Sleep(50 * time.Millisecond)
	require.False(t, fired.Load())
}

func TestReleaseIsIdempotent(t *testing.T) {

	w := NewTimeoutWindow(&config.Config{
		Background: config.BackgroundConfig{WindowTimeout: time.Minute},
	})

	scope := w.Begin("test", nil)
	scope.Release()
	scope.Release()
}

func TestAppStateSwapSafety(t *testing.T) {

	s := NewAppState()
	require.False(t, s.SafeToSwap())

	s.SetForeground(true)
	require.True(t, s.Foregrounded())
	require.True(t, s.SafeToSwap())

	s.SetForeground(false)
	require.False(t, s.SafeToSwap())
}

func TestUnsetFetchIntervalFallsBackToDefault(t *testing.T) {

	// an explicit zero must not reach time.NewTicker
	w := NewTickerWake(&config.Config{})
	defer w.Stop()

	require.Equal(t, config.DefaultFetchInterval, w.(*tickerWake).interval)
}

func TestRequestMinimumIntervalNeverShortens(t *testing.T) {

	w := NewTickerWake(&config.Config{
		Background: config.BackgroundConfig{FetchInterval: time.Hour},
	})
	defer w.Stop()

	tick := w.(*tickerWake)

	w.RequestMinimumInterval(time.Minute)
	require.Equal(t, time.Hour, tick.interval)

	w.RequestMinimumInterval(2 * time.Hour)
	require.Equal(t, 2*time.Hour, tick.interval)

	// dropping the request falls back to the host interval
	w.RequestMinimumInterval(0)
	require.Equal(t, time.Hour, tick.interval)
}
