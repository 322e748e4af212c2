// Package event provides the synchronous publish/subscribe fan-out the history
// engine uses to tell observers (UI, logging, telemetry) about lifecycle
// changes.
//
// Handlers run in the caller's goroutine, in subscription order. A handler
// that returns an error or panics is logged and counted; it never affects the
// firing call or the handlers after it.
package event

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Name identifies an event.
type Name string

// Events fired by the history engine.
const (
	OperationAdded Name = "operation_added"
	UndoExecuted   Name = "undo_executed"
	RedoExecuted   Name = "redo_executed"
	HistoryCleared Name = "history_cleared"
	MemoryWarning  Name = "memory_warning"
)

// Names lists the engine's events.
func Names() []Name {
	return []Name{OperationAdded, UndoExecuted, RedoExecuted, HistoryCleared, MemoryWarning}
}

// ErrHandlerFailure wraps every error or panic raised by a handler.
var ErrHandlerFailure = errors.New("event handler failure")

// Event is delivered to handlers.
type Event struct {
	Name Name
	Time time.Time
	Data any
}

// Handler observes events.
type Handler func(Event) error

// Subscription identifies a registered handler.
type Subscription struct {
	id   uint64
	name Name
}

// Name returns the event the subscription listens to.
func (s Subscription) Name() Name { return s.name }

type entry struct {
	id      uint64
	handler Handler
}

// Stats reports notifier counters.
type Stats struct {
	Fired     uint64 `json:"fired"`
	Delivered uint64 `json:"delivered"`
	Failures  uint64 `json:"failures"`
	Panics    uint64 `json:"panics"`
}

// Notifier fans events out to subscribed handlers.
type Notifier struct {
	mu       sync.RWMutex
	handlers map[Name][]entry
	nextID   uint64
	logger   *slog.Logger

	fired     atomic.Uint64
	delivered atomic.Uint64
	failures  atomic.Uint64
	panics    atomic.Uint64
}

// NewNotifier creates a notifier. A nil logger means slog.Default().
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		handlers: make(map[Name][]entry),
		logger:   logger,
	}
}

// Subscribe registers h for events named name.
func (n *Notifier) Subscribe(name Name, h Handler) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	sub := Subscription{id: n.nextID, name: name}
	n.handlers[name] = append(n.handlers[name], entry{id: sub.id, handler: h})
	return sub
}

// Unsubscribe removes a handler. It reports whether the subscription was
// still registered; removing twice is harmless.
func (n *Notifier) Unsubscribe(sub Subscription) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	list := n.handlers[sub.name]
	for i, e := range list {
		if e.id == sub.id {
			// Copy so a concurrent Fire iterating the old slice is unaffected.
			next := make([]entry, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			n.handlers[sub.name] = next
			return true
		}
	}
	return false
}

// HandlerCount returns the number of handlers subscribed to name.
func (n *Notifier) HandlerCount(name Name) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.handlers[name])
}

// Fire delivers an event to every handler subscribed to name and returns the
// number of handlers that failed. No lock is held while handlers run, so a
// handler may subscribe, unsubscribe or fire further events.
func (n *Notifier) Fire(name Name, data any) int {
	n.mu.RLock()
	list := n.handlers[name]
	n.mu.RUnlock()

	n.fired.Add(1)
	if len(list) == 0 {
		return 0
	}

	ev := Event{Name: name, Time: time.Now(), Data: data}
	failed := 0
	for _, e := range list {
		if err := n.invoke(e.handler, ev); err != nil {
			failed++
			n.failures.Add(1)
			n.logger.Warn("event handler failed",
				slog.String("event", string(name)),
				slog.String("error", err.Error()))
			continue
		}
		n.delivered.Add(1)
	}
	return failed
}

func (n *Notifier) invoke(h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			n.panics.Add(1)
			n.logger.Debug("event handler panic stack",
				slog.String("event", string(ev.Name)),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: panic: %v", ErrHandlerFailure, r)
		}
	}()

	if err := h(ev); err != nil {
		return fmt.Errorf("%w: %w", ErrHandlerFailure, err)
	}
	return nil
}

// Stats returns a snapshot of the notifier counters.
func (n *Notifier) Stats() Stats {
	return Stats{
		Fired:     n.fired.Load(),
		Delivered: n.delivered.Load(),
		Failures:  n.failures.Load(),
		Panics:    n.panics.Load(),
	}
}
