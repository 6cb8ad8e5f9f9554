// Package scheduler decides when background wake signals turn into update
// work and whether a completed download may swap in place or must wait for
// the foreground.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hybridkit/ota-agent/internal/model"
	"github.com/hybridkit/ota-agent/internal/pkg/errs"
	"github.com/hybridkit/ota-agent/internal/updater"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type State int32

const (
	StateIdle State = iota
	StateChecking
	StateNoUpdate
	StateDownloading
	StateApplied
	StateDeferred
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateNoUpdate:
		return "no_update"
	case StateDownloading:
		return "downloading"
	case StateApplied:
		return "applied"
	case StateDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

type Scheduler struct {
	logger   *zap.Logger
	up       *updater.Updater
	wake     WakeSource
	window   ExecutionWindow
	appState *AppState

	state       atomic.Int32
	enabled     atomic.Bool
	pendingPush atomic.Pointer[model.PushPayload]

	push       chan *model.PushPayload
	transition chan bool
	stop       chan struct{}
	done       chan struct{}
}

func New(
	logger *zap.Logger,
	up *updater.Updater,
	wake WakeSource,
	window ExecutionWindow,
	appState *AppState,
) *Scheduler {
	s := &Scheduler{
		logger:     logger,
		up:         up,
		wake:       wake,
		window:     window,
		appState:   appState,
		push:       make(chan *model.PushPayload, 1),
		transition: make(chan bool, 4),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.enabled.Store(true)
	return s
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(state State) {
	s.state.Store(int32(state))
}

// SetEnabled turns background update work on or off; manual bridge calls
// are unaffected.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// RequestMinimumCheckInterval forwards a caller's minimum to the host-owned
// wake source; it can lengthen the effective interval but never shorten it.
func (s *Scheduler) RequestMinimumCheckInterval(d time.Duration) {
	s.wake.RequestMinimumInterval(d)
}

// HandlePush is the push-style wake. A payload without the recognized
// update field is not an update notification and is ignored. A push while
// foregrounded defers the download to the next background opportunity
// instead of contending with interactive use.
func (s *Scheduler) HandlePush(userInfo map[string]any) {
	payload := model.ParsePushPayload(userInfo)
	if payload == nil {
		return
	}

	s.logger.Info("push wake received",
		zap.String("version", payload.Version),
		zap.Bool("immediate", payload.Immediate),
	)

	if s.appState.Foregrounded() {
		s.pendingPush.Store(payload)
		return
	}

	select {
	case s.push <- payload:
	default:
		// a push is already queued; the queued run will pick up the change
	}
}

// HandleForeground is the host's explicit foreground lifecycle callback.
// The foreground is a swap-safe context, so any deferred swap is retried
// here.
func (s *Scheduler) HandleForeground() {
	s.appState.SetForeground(true)
	select {
	case s.transition <- true:
	default:
	}
}

// HandleBackground marks the app backgrounded and flushes a push that was
// deferred while the app was in use.
func (s *Scheduler) HandleBackground() {
	s.appState.SetForeground(false)
	select {
	case s.transition <- false:
	default:
	}
}

// Start runs the wake loop until Stop. Implements application.Adapter.
func (s *Scheduler) Start(ctx context.Context) error {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-s.wake.Wake():
			if s.enabled.Load() {
				s.runSequence(ctx, "")
			}
		case payload := <-s.push:
			if s.enabled.Load() {
				s.runSequence(ctx, payload.Version)
			}
		case foreground := <-s.transition:
			s.handleTransition(ctx, foreground)
		}
	}
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.wake.Stop()
	close(s.stop)

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Scheduler) handleTransition(ctx context.Context, foreground bool) {
	if foreground {
		if err := s.up.RetryDeferredSwap(ctx); err != nil {
			s.logger.Error("deferred swap retry failed",
				zap.Error(err),
			)
		}
		return
	}

	if payload := s.pendingPush.Swap(nil); payload != nil && s.enabled.Load() {
		s.runSequence(ctx, payload.Version)
	}
}

// runSequence wraps one check+download in an execution window scope so the
// host does not suspend the process mid-transfer. The scope is released
// exactly once on every exit path; expiry cancels in-flight work first.
func (s *Scheduler) runSequence(parent context.Context, hint string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	scope := s.window.Begin("ota-check-download", func() {
		s.logger.Warn("execution window expired, cancelling update work")
		s.up.CancelDownload()
		cancel()
	})
	defer scope.Release()

	s.setState(StateChecking)
	defer s.setState(StateIdle)

	res, err := s.up.CheckForUpdates(ctx)
	if err != nil {
		s.logger.Warn("background check failed, retrying next wake",
			zap.Error(err),
		)
		return
	}
	if !res.HasUpdate {
		s.setState(StateNoUpdate)
		return
	}
	if hint != "" && hint != res.Version {
		s.logger.Info("push version hint differs from server",
			zap.String("hint", hint),
			zap.String("server", res.Version),
		)
	}

	s.setState(StateDownloading)

	outcome, err := s.up.DownloadUpdate(ctx, nil)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrNoUpdateAvailable):
			s.setState(StateNoUpdate)
		case errors.Is(err, errs.ErrCancelled):
			s.logger.Info("background download cancelled")
		default:
			s.logger.Warn("background download failed, retrying next wake",
				zap.Error(err),
			)
		}
		return
	}

	if outcome == updater.OutcomeApplied {
		s.setState(StateApplied)
	} else {
		s.setState(StateDeferred)
	}
}
