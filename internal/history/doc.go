// Package history records mutations of an in-memory model so they can be
// undone and redone, while bounding the memory the history consumes.
//
// # Operations
//
// Callers capture the model state before (and usually after) a mutation and
// push it:
//
//	e, _ := history.New[Floor](history.DefaultConfig())
//	id, err := e.Push(history.PushParams[Floor]{
//		Kind:        model.KindMove,
//		Description: "move room R12",
//		Before:      before,
//		After:       &after,
//		OnUndo:      history.HookFunc[Floor](applyFloor),
//	})
//
// Each state is encoded into an immutable Snapshot with the active codec
// (see package codec). Undo decodes the before-snapshot and hands it to the
// operation's OnUndo hook; Redo does the same with the after-snapshot and
// OnRedo.
//
// # History
//
// History is linear: pushing an operation always discards the redo stack.
// After every push the oldest operations are evicted when the undo stack
// exceeds CountLimit, or when the snapshots of both stacks exceed
// MemoryBudgetMB. Memory eviction stops at 80% of the budget or when only
// MinRetained operations are left.
//
// # Batches
//
// Operations pushed between BeginBatch and EndBatch collapse into one
// composite operation that undoes and redoes as a unit:
//
//	id := e.BeginBatch("align rooms")
//	// ... several Push calls ...
//	err := e.EndBatch(id, true)
//
// # Concurrency
//
// An Engine is safe for concurrent use. Push, Undo, Redo and Clear are
// serialized by one mutex. Hooks run while that mutex is held and must not
// call back into the Engine; they receive a StatusInfo view instead. Event
// handlers run after the mutex is released and may call back.
package history
