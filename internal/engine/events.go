package engine

import (
	"log/slog"
	"sync"

	"github.com/quillback/spheretrace/internal/sweep"
)

// EventKind identifies a published engine event.
type EventKind string

const (
	// EventSnapshotUpdated fires after every mutating command, carrying
	// the freshly published snapshot.
	EventSnapshotUpdated EventKind = "snapshot-updated"

	// EventRulesLoaded fires once LoadRules has compiled a world.
	EventRulesLoaded EventKind = "rules-loaded"

	// EventWorkerError fires when a command fails inside the worker.
	EventWorkerError EventKind = "worker-error"

	// EventProgress fires after each processed command with queue depth,
	// letting observers surface long-running bursts.
	EventProgress EventKind = "computation-progress"
)

// Event is one published engine notification.
type Event struct {
	Kind  EventKind
	Token string

	// Snapshot is set for snapshot-updated events.
	Snapshot *sweep.Snapshot

	// Game is set for rules-loaded events.
	Game string

	// Err is set for worker-error events.
	Err error

	// Processed and Pending are set for progress events.
	Processed int64
	Pending   int
}

// Subscription is one observer's event stream. Close it with Unsubscribe;
// events published after that are not delivered.
type Subscription struct {
	C chan Event

	id     int
	engine *Engine
	once   sync.Once
}

// Unsubscribe detaches the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.engine.unsubscribe(s.id)
	})
}

// Subscribe registers an observer with the given channel buffer. The
// worker never blocks on a slow observer: a full channel drops the event
// with a warning.
func (e *Engine) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	e.subMu.Lock()
	defer e.subMu.Unlock()

	e.subSeq++
	sub := &Subscription{
		C:      make(chan Event, buffer),
		id:     e.subSeq,
		engine: e,
	}
	e.subs[sub.id] = sub
	return sub
}

func (e *Engine) unsubscribe(id int) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	if sub, ok := e.subs[id]; ok {
		delete(e.subs, id)
		close(sub.C)
	}
}

// publish fans an event out to all subscribers without blocking.
func (e *Engine) publish(ev Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	for _, sub := range e.subs {
		select {
		case sub.C <- ev:
		default:
			slog.Warn("dropping engine event for slow subscriber",
				"kind", ev.Kind,
				"token", ev.Token,
			)
		}
	}
}

// closeSubscribers closes every remaining subscription when Run exits.
func (e *Engine) closeSubscribers() {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	for id, sub := range e.subs {
		delete(e.subs, id)
		close(sub.C)
	}
}
