package history

import (
	"fmt"
	"slices"
	"time"

	"github.com/rcliao/opshistory/internal/model"
)

// Hook re-applies a decoded state to the live model. state is nil when a
// redo has no after-snapshot. view is the engine status taken just before
// the undo or redo started.
//
// Hooks run under the engine lock: they must not call Engine methods (read
// view instead), and must not keep state after returning.
type Hook[S any] interface {
	Apply(state *S, op *Operation[S], view StatusInfo) error
}

// HookFunc adapts a function to Hook.
type HookFunc[S any] func(state *S, op *Operation[S], view StatusInfo) error

// Apply calls f.
func (f HookFunc[S]) Apply(state *S, op *Operation[S], view StatusInfo) error {
	return f(state, op, view)
}

type noopHook[S any] struct{}

func (noopHook[S]) Apply(*S, *Operation[S], StatusInfo) error { return nil }

// NoopHook returns the hook used when an operation carries none.
func NoopHook[S any]() Hook[S] { return noopHook[S]{} }

func isNoop[S any](h Hook[S]) bool {
	if h == nil {
		return true
	}
	_, ok := h.(noopHook[S])
	return ok
}

// PushParams holds parameters for recording an operation.
type PushParams[S any] struct {
	Kind        model.OperationKind
	Description string
	Before      S
	// After is the post-mutation state. Nil means redo relies on OnRedo alone.
	After           *S
	EntityIDs       []string
	Levels          []string
	UserDescription string
	OnUndo          Hook[S]
	OnRedo          Hook[S]
}

// Operation is one undoable unit. It lives in exactly one of the undo and
// redo stacks until it is evicted or the history is cleared.
type Operation[S any] struct {
	id              string
	kind            model.OperationKind
	timestamp       time.Time
	description     string
	userDescription string
	before          *Snapshot
	after           *Snapshot
	entityIDs       []string
	levels          []string
	onUndo          Hook[S]
	onRedo          Hook[S]
	durationMS      float64

	// children is set on batch composites; undo walks it newest-first.
	children []*Operation[S]
}

func (op *Operation[S]) ID() string                { return op.id }
func (op *Operation[S]) Kind() model.OperationKind { return op.kind }
func (op *Operation[S]) Timestamp() time.Time      { return op.timestamp }
func (op *Operation[S]) Description() string       { return op.description }
func (op *Operation[S]) UserDescription() string   { return op.userDescription }
func (op *Operation[S]) Before() *Snapshot         { return op.before }
func (op *Operation[S]) After() *Snapshot          { return op.after }
func (op *Operation[S]) DurationMS() float64       { return op.durationMS }
func (op *Operation[S]) EntityIDs() []string       { return slices.Clone(op.entityIDs) }
func (op *Operation[S]) Levels() []string          { return slices.Clone(op.levels) }
func (op *Operation[S]) IsBatch() bool             { return len(op.children) > 0 }

// Children returns the operations collapsed into a batch composite.
func (op *Operation[S]) Children() []*Operation[S] { return slices.Clone(op.children) }

// Size is the number of snapshot bytes the operation holds.
func (op *Operation[S]) Size() int64 {
	if len(op.children) > 0 {
		var n int64
		for _, c := range op.children {
			n += c.Size()
		}
		return n
	}
	return op.before.held() + op.after.held()
}

// MemoryMB is Size in megabytes.
func (op *Operation[S]) MemoryMB() float64 {
	return toMB(op.Size())
}

func (op *Operation[S]) summary() OperationSummary {
	return OperationSummary{
		ID:              op.id,
		Kind:            op.kind,
		Description:     op.description,
		UserDescription: op.userDescription,
		Timestamp:       op.timestamp,
		MemoryMB:        op.MemoryMB(),
		DurationMS:      op.durationMS,
		Children:        len(op.children),
	}
}

func (op *Operation[S]) record(withPayload bool) model.OperationRecord {
	rec := model.OperationRecord{
		ID:              op.id,
		Kind:            op.kind,
		Timestamp:       op.timestamp,
		Description:     op.description,
		UserDescription: op.userDescription,
		EntityIDs:       slices.Clone(op.entityIDs),
		Levels:          slices.Clone(op.levels),
		DurationMS:      op.durationMS,
		MemoryMB:        op.MemoryMB(),
	}
	if len(op.children) > 0 {
		for _, c := range op.children {
			rec.Children = append(rec.Children, c.record(withPayload))
		}
		return rec
	}
	rec.Before = op.before.record(withPayload)
	rec.After = op.after.record(withPayload)
	return rec
}

// OperationSummary describes an operation for menus and diagnostics.
type OperationSummary struct {
	ID              string              `json:"id"`
	Kind            model.OperationKind `json:"kind"`
	Description     string              `json:"description"`
	UserDescription string              `json:"user_description"`
	Timestamp       time.Time           `json:"timestamp"`
	MemoryMB        float64             `json:"memory_mb"`
	DurationMS      float64             `json:"duration_ms"`
	Children        int                 `json:"children,omitempty"`
}

// normalizeSet sorts and dedups a caller-supplied set.
func normalizeSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

func validateKind(k model.OperationKind) error {
	if !model.ValidKinds[k] {
		return fmt.Errorf("%w %q", ErrInvalidKind, k)
	}
	return nil
}
