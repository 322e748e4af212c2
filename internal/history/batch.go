package history

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rcliao/opshistory/internal/model"
)

type batch[S any] struct {
	id          string
	description string
	started     time.Time
	ops         []*Operation[S]
}

// BeginBatch opens a batch. Operations pushed until the matching EndBatch
// are buffered and committed as one undo step. Batches nest; EndBatch must
// close the innermost one first.
func (e *Engine[S]) BeginBatch(description string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := &batch[S]{
		id:          e.newIDLocked(),
		description: description,
		started:     time.Now(),
	}
	e.batches = append(e.batches, b)
	e.logger.Debug("batch started",
		slog.String("batch_id", b.id),
		slog.String("description", description),
		slog.Int("depth", len(e.batches)))
	return b.id
}

// EndBatch closes the innermost batch. With success its operations are
// committed: a single operation as-is, several as one composite. Without
// success they are discarded. Closing a nested batch hands its result to the
// enclosing one.
func (e *Engine[S]) EndBatch(id string, success bool) error {
	e.mu.Lock()
	n := len(e.batches)
	if n == 0 || e.batches[n-1].id != id {
		e.mu.Unlock()
		return fmt.Errorf("%w %q", ErrUnknownBatch, id)
	}
	b := e.batches[n-1]
	e.batches[n-1] = nil
	e.batches = e.batches[:n-1]

	if !success || len(b.ops) == 0 {
		e.refreshMemoryLocked()
		e.mu.Unlock()
		e.logger.Debug("batch discarded",
			slog.String("batch_id", id),
			slog.Bool("success", success),
			slog.Int("operations", len(b.ops)))
		return nil
	}

	op := b.ops[0]
	if len(b.ops) > 1 {
		op = compose(b)
	}

	var events []pending
	if parent := e.openBatchLocked(); parent != nil {
		parent.ops = append(parent.ops, op)
	} else {
		events = e.commitLocked(op)
	}
	e.mu.Unlock()

	e.logger.Debug("batch committed",
		slog.String("batch_id", id),
		slog.String("operation_id", op.id),
		slog.Int("operations", len(b.ops)))
	e.fire(events)
	return nil
}

// InBatch reports whether a batch is open.
func (e *Engine[S]) InBatch() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.batches) > 0
}

func (e *Engine[S]) openBatchLocked() *batch[S] {
	if len(e.batches) == 0 {
		return nil
	}
	return e.batches[len(e.batches)-1]
}

// compose collapses a batch into one operation. The composite spans the
// first child's before-state to the last child's after-state.
func compose[S any](b *batch[S]) *Operation[S] {
	first, last := b.ops[0], b.ops[len(b.ops)-1]

	var entities, levels []string
	var dur float64
	for _, c := range b.ops {
		entities = append(entities, c.entityIDs...)
		levels = append(levels, c.levels...)
		dur += c.durationMS
	}

	desc := b.description
	if desc == "" {
		desc = fmt.Sprintf("%d operations", len(b.ops))
	}

	return &Operation[S]{
		id:              b.id,
		kind:            model.KindBatch,
		timestamp:       b.started,
		description:     desc,
		userDescription: desc,
		before:          first.before,
		after:           last.after,
		entityIDs:       normalizeSet(entities),
		levels:          normalizeSet(levels),
		onUndo:          NoopHook[S](),
		onRedo:          NoopHook[S](),
		durationMS:      dur,
		children:        b.ops,
	}
}
