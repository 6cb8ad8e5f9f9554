// Package notifier fans status and progress events out to bridge
// subscribers. Progress is a repeatable channel, distinct from the terminal
// completion status of an operation.
package notifier

import (
	"sync"
	"time"

	"github.com/hybridkit/ota-agent/internal/model"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

type Kind string

const (
	KindStatus   Kind = "status"
	KindProgress Kind = "progress"
)

const (
	StatusChecking    = "checking"
	StatusNoUpdate    = "no_update"
	StatusDownloading = "downloading"
	StatusApplied     = "applied"
	StatusDeferred    = "deferred"
	StatusCancelled   = "cancelled"
	StatusFailed      = "failed"
	StatusRolledBack  = "rolled_back"
)

type Event struct {
	ID       string          `json:"id"`
	Kind     Kind            `json:"kind"`
	Status   string          `json:"status,omitempty"`
	Version  string          `json:"version,omitempty"`
	Detail   string          `json:"detail,omitempty"`
	Progress *model.Progress `json:"progress,omitempty"`
	Time     time.Time       `json:"time"`
}

const subscriberBuffer = 64

type Notifier struct {
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]chan Event
}

func New(logger *zap.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		subs:   make(map[string]chan Event),
	}
}

func (n *Notifier) Subscribe() (string, <-chan Event) {
	id := ksuid.New().String()
	ch := make(chan Event, subscriberBuffer)

	n.mu.Lock()
	n.subs[id] = ch
	n.mu.Unlock()

	return id, ch
}

func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	ch, ok := n.subs[id]
	if ok {
		delete(n.subs, id)
	}
	n.mu.Unlock()

	if ok {
		close(ch)
	}
}

// Publish never blocks the update lifecycle: slow subscribers lose events.
func (n *Notifier) Publish(ev Event) {
	ev.ID = ksuid.New().String()
	ev.Time = time.Now()

	n.mu.Lock()
	defer n.mu.Unlock()

	for id, ch := range n.subs {
		select {
		case ch <- ev:
		default:
			n.logger.Warn("subscriber too slow, event dropped",
				zap.String("subscriber", id),
				zap.String("kind", string(ev.Kind)),
			)
		}
	}
}

func (n *Notifier) Status(status, version string) {
	n.Publish(Event{Kind: KindStatus, Status: status, Version: version})
}

func (n *Notifier) StatusDetail(status, version, detail string) {
	n.Publish(Event{Kind: KindStatus, Status: status, Version: version, Detail: detail})
}

func (n *Notifier) Progress(version string, p model.Progress) {
	n.Publish(Event{Kind: KindProgress, Version: version, Progress: &p})
}
