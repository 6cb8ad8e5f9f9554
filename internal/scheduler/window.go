package scheduler

import (
	"sync"
	"time"

	"github.com/hybridkit/ota-agent/internal/config"
)

// Scope is one granted execution window. Release is idempotent and must be
// called on every exit path, including expiry.
type Scope interface {
	Release()
}

// ExecutionWindow models the host's "extend my execution" facility. When
// the window runs out before Release, onExpire fires so in-flight work can
// be cancelled; Release must still be called afterwards.
type ExecutionWindow interface {
	Begin(name string, onExpire func()) Scope
}

type timeoutWindow struct {
	timeout time.Duration
}

func NewTimeoutWindow(conf *config.Config) ExecutionWindow {
	return &timeoutWindow{timeout: conf.Background.WindowTimeout}
}

func (w *timeoutWindow) Begin(name string, onExpire func()) Scope {
	s := &timeoutScope{}
	s.timer = time.AfterFunc(w.timeout, func() {
		if onExpire != nil {
			onExpire()
		}
	})
	return s
}

type timeoutScope struct {
	once  sync.Once
	timer *time.Timer
}

func (s *timeoutScope) Release() {
	s.once.Do(func() {
		s.timer.Stop()
	})
}
