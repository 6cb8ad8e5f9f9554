package scheduler

import (
	"sync"
	"time"

	"github.com/hybridkit/ota-agent/internal/config"
)

// WakeSource delivers periodic background wake signals. The interval is
// host-determined; callers may only request a minimum.
type WakeSource interface {
	Wake() <-chan time.Time
	RequestMinimumInterval(d time.Duration)
	Stop()
}

type tickerWake struct {
	mu       sync.Mutex
	host     time.Duration
	interval time.Duration
	ticker   *time.Ticker
}

func NewTickerWake(conf *config.Config) WakeSource {
	interval := conf.Background.FetchInterval
	if interval <= 0 {
		interval = config.DefaultFetchInterval
	}
	return &tickerWake{
		host:     interval,
		interval: interval,
		ticker:   time.NewTicker(interval),
	}
}

func (w *tickerWake) Wake() <-chan time.Time {
	return w.ticker.C
}

// RequestMinimumInterval never shortens the host-owned interval.
func (w *tickerWake) RequestMinimumInterval(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	effective := w.host
	if d > effective {
		effective = d
	}
	if effective == w.interval {
		return
	}
	w.interval = effective
	w.ticker.Reset(effective)
}

func (w *tickerWake) Stop() {
	w.ticker.Stop()
}
