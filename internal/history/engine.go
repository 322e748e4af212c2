package history

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/opshistory/internal/codec"
	"github.com/rcliao/opshistory/internal/event"
	"github.com/rcliao/opshistory/internal/model"
)

// Option configures an Engine.
type Option[S any] func(*Engine[S])

// WithFallbackHooks sets the hooks used for operations that carry none,
// including every operation restored by LoadFile.
func WithFallbackHooks[S any](onUndo, onRedo Hook[S]) Option[S] {
	return func(e *Engine[S]) {
		e.fallbackUndo = onUndo
		e.fallbackRedo = onRedo
	}
}

// WithNotifier shares a notifier between engines or with other publishers.
func WithNotifier[S any](n *event.Notifier) Option[S] {
	return func(e *Engine[S]) {
		e.notifier = n
	}
}

// Engine orchestrates push, undo, redo and batches over the undo and redo
// stacks. Create one per document.
type Engine[S any] struct {
	mu sync.Mutex

	cfg      Config
	logger   *slog.Logger
	notifier *event.Notifier
	snaps    *snapshotter
	hist     stacks[S]
	batches  []*batch[S]
	stats    model.Stats
	entropy  *rand.Rand
	oplog    []LogEntry

	fallbackUndo Hook[S]
	fallbackRedo Hook[S]
}

// New creates an engine.
func New[S any](cfg Config, opts ...Option[S]) (*Engine[S], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	snaps, err := newSnapshotter(cfg.Codec, cfg.EntityCollections, cfg.Logger)
	if err != nil {
		return nil, err
	}

	e := &Engine[S]{
		cfg:     cfg,
		logger:  cfg.Logger,
		snaps:   snaps,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = event.NewNotifier(cfg.Logger)
	}
	return e, nil
}

func (e *Engine[S]) newIDLocked() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), e.entropy).String()
}

// Push snapshots the states, records the operation and returns its id.
// Any pending redo history is discarded. On error nothing is recorded.
func (e *Engine[S]) Push(p PushParams[S]) (string, error) {
	start := time.Now()

	if err := validateKind(p.Kind); err != nil {
		e.mu.Lock()
		e.stats.FailedOperations++
		e.mu.Unlock()
		pushTotal.WithLabelValues(string(p.Kind), statusLabel(false)).Inc()
		return "", err
	}

	e.mu.Lock()
	op, err := e.newOperationLocked(p, start)
	if err != nil {
		e.stats.FailedOperations++
		e.mu.Unlock()
		pushTotal.WithLabelValues(string(p.Kind), statusLabel(false)).Inc()
		e.logger.Error("push failed",
			slog.String("kind", string(p.Kind)),
			slog.String("description", p.Description),
			slog.String("error", err.Error()))
		return "", err
	}
	e.stats.TotalOperations++

	var events []pending
	if b := e.openBatchLocked(); b != nil {
		b.ops = append(b.ops, op)
		e.hist.clearRedo()
		e.refreshMemoryLocked()
		e.logActionLocked("push", op, op.durationMS)
	} else {
		events = e.commitLocked(op)
	}
	e.mu.Unlock()

	pushTotal.WithLabelValues(string(p.Kind), statusLabel(true)).Inc()
	pushDuration.Observe(time.Since(start).Seconds())
	e.fire(events)
	return op.id, nil
}

// Capture records a mutation: it snapshots the state, runs mutate, snapshots
// again and pushes both states. When mutate fails nothing is recorded.
func (e *Engine[S]) Capture(kind model.OperationKind, description string, snapshot func() (S, error), mutate func() error) (string, error) {
	before, err := snapshot()
	if err != nil {
		return "", fmt.Errorf("capture before: %w", err)
	}
	if err := mutate(); err != nil {
		return "", err
	}
	after, err := snapshot()
	if err != nil {
		return "", fmt.Errorf("capture after: %w", err)
	}
	return e.Push(PushParams[S]{
		Kind:        kind,
		Description: description,
		Before:      before,
		After:       &after,
	})
}

func (e *Engine[S]) newOperationLocked(p PushParams[S], start time.Time) (*Operation[S], error) {
	id := e.newIDLocked()

	before, fellBack, err := buildSnapshot(e.snaps, id+"_before", p.Kind, p.Before)
	if fellBack {
		e.stats.CodecFallbacks++
	}
	if err != nil {
		return nil, err
	}

	var after *Snapshot
	if p.After != nil {
		after, fellBack, err = buildSnapshot(e.snaps, id+"_after", p.Kind, *p.After)
		if fellBack {
			e.stats.CodecFallbacks++
		}
		if err != nil {
			return nil, err
		}
	}

	user := p.UserDescription
	if user == "" {
		user = p.Description
	}
	onUndo, onRedo := p.OnUndo, p.OnRedo
	if onUndo == nil {
		onUndo = NoopHook[S]()
	}
	if onRedo == nil {
		onRedo = NoopHook[S]()
	}

	return &Operation[S]{
		id:              id,
		kind:            p.Kind,
		timestamp:       start,
		description:     p.Description,
		userDescription: user,
		before:          before,
		after:           after,
		entityIDs:       normalizeSet(p.EntityIDs),
		levels:          normalizeSet(p.Levels),
		onUndo:          onUndo,
		onRedo:          onRedo,
		durationMS:      millis(time.Since(start)),
	}, nil
}

// commitLocked appends op to the undo stack, drops redo history and runs
// eviction. It returns the events to fire once the lock is released.
func (e *Engine[S]) commitLocked(op *Operation[S]) []pending {
	e.hist.pushUndo(op)
	if n := e.hist.clearRedo(); n > 0 {
		e.logger.Debug("redo history discarded", slog.Int("operations", n))
	}

	var events []pending
	if e.cfg.AutoCleanup {
		res := e.hist.evict(e.cfg.CountLimit, e.cfg.budgetBytes())
		if res.byCount > 0 {
			evictionsTotal.WithLabelValues("count").Add(float64(res.byCount))
			e.logger.Debug("evicted operations over count limit",
				slog.Int("evicted", res.byCount),
				slog.Int("limit", e.cfg.CountLimit))
		}
		if res.memoryTriggered {
			evictionsTotal.WithLabelValues("memory").Add(float64(res.byMemory))
			data := MemoryWarningData{
				CurrentUsageMB:  toMB(res.usageBytes),
				LimitMB:         e.cfg.MemoryBudgetMB,
				OperationsCount: len(e.hist.undo),
				Evicted:         res.byMemory,
			}
			e.logger.Warn("history memory budget exceeded",
				slog.Float64("usage_mb", data.CurrentUsageMB),
				slog.Float64("limit_mb", data.LimitMB),
				slog.Int("evicted", data.Evicted),
				slog.Int("remaining", data.OperationsCount))
			events = append(events, pending{name: event.MemoryWarning, data: data})
		}
	}

	e.refreshMemoryLocked()
	e.logActionLocked("push", op, op.durationMS)

	events = append(events, pending{name: event.OperationAdded, data: OperationAddedData{
		OperationID: op.id,
		Kind:        op.kind,
		Description: op.description,
		MemoryMB:    op.MemoryMB(),
	}})
	return events
}

// Undo reverts the most recent operation. It returns false when there is
// nothing to undo, a batch is open, or decoding or the hook failed; in the
// failure case the operation stays on the undo stack.
func (e *Engine[S]) Undo() bool {
	e.mu.Lock()
	if len(e.batches) > 0 {
		e.mu.Unlock()
		e.logger.Warn("undo refused", slog.String("error", ErrBatchOpen.Error()))
		return false
	}
	view := e.statusLocked()
	op := e.hist.popUndo()
	if op == nil {
		e.mu.Unlock()
		e.logger.Debug("undo skipped", slog.String("reason", ErrNothingToUndo.Error()))
		return false
	}

	start := time.Now()
	restored, err := e.revertLocked(op, view)
	if err != nil {
		e.hist.pushUndo(op)
		e.stats.FailedOperations++
		e.mu.Unlock()

		undoTotal.WithLabelValues(statusLabel(false)).Inc()
		e.logger.Error("undo failed",
			slog.String("operation_id", op.id),
			slog.String("description", op.userDescription),
			slog.String("error", err.Error()))
		return false
	}

	e.hist.pushRedo(op)
	e.stats.SuccessfulUndos++
	dur := millis(time.Since(start))
	e.logActionLocked("undo", op, dur)
	e.mu.Unlock()

	undoTotal.WithLabelValues(statusLabel(true)).Inc()
	e.logger.Debug("undone", slog.String("operation_id", op.id), slog.String("description", op.userDescription))
	e.fire([]pending{{name: event.UndoExecuted, data: ExecutedData{
		OperationID:   op.id,
		Kind:          op.kind,
		Description:   op.description,
		DurationMS:    dur,
		RestoredState: restoredValue(restored),
	}}})
	return true
}

// Redo re-applies the most recently undone operation. Failure handling
// mirrors Undo.
func (e *Engine[S]) Redo() bool {
	e.mu.Lock()
	if len(e.batches) > 0 {
		e.mu.Unlock()
		e.logger.Warn("redo refused", slog.String("error", ErrBatchOpen.Error()))
		return false
	}
	view := e.statusLocked()
	op := e.hist.popRedo()
	if op == nil {
		e.mu.Unlock()
		e.logger.Debug("redo skipped", slog.String("reason", ErrNothingToRedo.Error()))
		return false
	}

	start := time.Now()
	restored, err := e.reapplyLocked(op, view)
	if err != nil {
		e.hist.pushRedo(op)
		e.stats.FailedOperations++
		e.mu.Unlock()

		redoTotal.WithLabelValues(statusLabel(false)).Inc()
		e.logger.Error("redo failed",
			slog.String("operation_id", op.id),
			slog.String("description", op.userDescription),
			slog.String("error", err.Error()))
		return false
	}

	e.hist.pushUndo(op)
	e.stats.SuccessfulRedos++
	dur := millis(time.Since(start))
	e.logActionLocked("redo", op, dur)
	e.mu.Unlock()

	redoTotal.WithLabelValues(statusLabel(true)).Inc()
	e.logger.Debug("redone", slog.String("operation_id", op.id), slog.String("description", op.userDescription))
	e.fire([]pending{{name: event.RedoExecuted, data: ExecutedData{
		OperationID:   op.id,
		Kind:          op.kind,
		Description:   op.description,
		DurationMS:    dur,
		RestoredState: restoredValue(restored),
	}}})
	return true
}

// revertLocked decodes op's before-state and runs its undo hook. Batch
// composites revert their children newest-first; if one fails, the children
// already reverted are re-applied.
func (e *Engine[S]) revertLocked(op *Operation[S], view StatusInfo) (*S, error) {
	if len(op.children) > 0 {
		var restored *S
		for i := len(op.children) - 1; i >= 0; i-- {
			st, err := e.revertLocked(op.children[i], view)
			if err != nil {
				for j := i + 1; j < len(op.children); j++ {
					if _, rerr := e.reapplyLocked(op.children[j], view); rerr != nil {
						e.logger.Error("batch rollback failed",
							slog.String("operation_id", op.children[j].id),
							slog.String("error", rerr.Error()))
					}
				}
				return nil, fmt.Errorf("batch %s step %d: %w", op.id, i, err)
			}
			restored = st
		}
		return restored, nil
	}

	state, err := decodeSnapshot[S](op.before)
	if err != nil {
		return nil, err
	}
	if err := e.callHook(e.undoHook(op), &state, op, view); err != nil {
		return nil, err
	}
	return &state, nil
}

// reapplyLocked decodes op's after-state, if any, and runs its redo hook.
// Batch composites re-apply their children oldest-first.
func (e *Engine[S]) reapplyLocked(op *Operation[S], view StatusInfo) (*S, error) {
	if len(op.children) > 0 {
		var restored *S
		for i, child := range op.children {
			st, err := e.reapplyLocked(child, view)
			if err != nil {
				for j := i - 1; j >= 0; j-- {
					if _, rerr := e.revertLocked(op.children[j], view); rerr != nil {
						e.logger.Error("batch rollback failed",
							slog.String("operation_id", op.children[j].id),
							slog.String("error", rerr.Error()))
					}
				}
				return nil, fmt.Errorf("batch %s step %d: %w", op.id, i, err)
			}
			restored = st
		}
		return restored, nil
	}

	var sp *S
	if op.after != nil {
		state, err := decodeSnapshot[S](op.after)
		if err != nil {
			return nil, err
		}
		sp = &state
	}
	if err := e.callHook(e.redoHook(op), sp, op, view); err != nil {
		return nil, err
	}
	return sp, nil
}

func (e *Engine[S]) undoHook(op *Operation[S]) Hook[S] {
	if !isNoop(op.onUndo) {
		return op.onUndo
	}
	if e.fallbackUndo != nil {
		return e.fallbackUndo
	}
	return NoopHook[S]()
}

func (e *Engine[S]) redoHook(op *Operation[S]) Hook[S] {
	if !isNoop(op.onRedo) {
		return op.onRedo
	}
	if e.fallbackRedo != nil {
		return e.fallbackRedo
	}
	return NoopHook[S]()
}

func (e *Engine[S]) callHook(h Hook[S], state *S, op *Operation[S], view StatusInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: operation %s: panic: %v", ErrHookFailure, op.id, r)
		}
	}()
	if err := h.Apply(state, op, view); err != nil {
		return fmt.Errorf("%w: operation %s: %w", ErrHookFailure, op.id, err)
	}
	return nil
}

// CanUndo reports whether Undo has an operation to revert.
func (e *Engine[S]) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.hist.undo) > 0
}

// CanRedo reports whether Redo has an operation to re-apply.
func (e *Engine[S]) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.hist.redo) > 0
}

// Clear drops both stacks and any open batch.
func (e *Engine[S]) Clear() {
	e.mu.Lock()
	dropped := len(e.hist.undo) + len(e.hist.redo)
	e.hist.reset()
	e.batches = nil
	e.refreshMemoryLocked()
	e.mu.Unlock()

	e.logger.Info("history cleared", slog.Int("operations", dropped))
	e.fire([]pending{{name: event.HistoryCleared, data: ClearedData{Timestamp: time.Now()}}})
}

// SetCodec changes the codec used for new snapshots.
func (e *Engine[S]) SetCodec(kind codec.Kind) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snaps, err := newSnapshotter(kind, e.cfg.EntityCollections, e.logger)
	if err != nil {
		return err
	}
	e.snaps = snaps
	e.cfg.Codec = kind
	return nil
}

// Locate returns model.StackUndo or model.StackRedo for the stack holding
// the operation, or "" if it is not in the history.
func (e *Engine[S]) Locate(id string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	inUndo, inRedo := e.hist.contains(id)
	switch {
	case inUndo:
		return model.StackUndo
	case inRedo:
		return model.StackRedo
	}
	return ""
}

// Subscribe registers an event handler. Handler errors and panics are
// logged and counted, never returned to the engine's caller.
func (e *Engine[S]) Subscribe(name event.Name, h event.Handler) event.Subscription {
	return e.notifier.Subscribe(name, h)
}

// Unsubscribe removes an event handler.
func (e *Engine[S]) Unsubscribe(sub event.Subscription) bool {
	return e.notifier.Unsubscribe(sub)
}

func (e *Engine[S]) fire(events []pending) {
	for _, p := range events {
		failed := e.notifier.Fire(p.name, p.data)
		if failed == 0 {
			continue
		}
		handlerFailuresTotal.WithLabelValues(string(p.name)).Add(float64(failed))
		e.mu.Lock()
		e.stats.HandlerFailures += int64(failed)
		e.stats.FailedOperations += int64(failed)
		e.mu.Unlock()
	}
}

// refreshMemoryLocked recomputes the memory figures from the operations
// currently held, so they start over after Clear, eviction or a load.
func (e *Engine[S]) refreshMemoryLocked() {
	e.stats.MemoryUsageMB = toMB(e.hist.bytes)
	e.stats.AverageOperationSizeMB = 0
	if n := len(e.hist.undo) + len(e.hist.redo); n > 0 {
		e.stats.AverageOperationSizeMB = e.stats.MemoryUsageMB / float64(n)
	}
	historyBytes.Set(float64(e.hist.bytes))
}

func restoredValue[S any](sp *S) any {
	if sp == nil {
		return nil
	}
	return *sp
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// IsSnapshotCorrupt reports whether err came from a snapshot that could not
// be decoded.
func IsSnapshotCorrupt(err error) bool {
	return errors.Is(err, ErrSnapshotCorrupt)
}
