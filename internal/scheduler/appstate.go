package scheduler

import "sync/atomic"

// AppState tracks the host-reported execution context. It doubles as the
// updater's swap-safety probe: only a foregrounded app can safely persist a
// cache swap, background execution windows defer it.
type AppState struct {
	foreground atomic.Bool
}

func NewAppState() *AppState {
	return &AppState{}
}

func (s *AppState) SetForeground(foreground bool) {
	s.foreground.Store(foreground)
}

func (s *AppState) Foregrounded() bool {
	return s.foreground.Load()
}

func (s *AppState) SafeToSwap() bool {
	return s.foreground.Load()
}
