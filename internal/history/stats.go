package history

import (
	"github.com/rcliao/opshistory/internal/codec"
	"github.com/rcliao/opshistory/internal/event"
	"github.com/rcliao/opshistory/internal/model"
)

const defaultDescriptions = 10

// StatusInfo is a compact view of the engine for status bars.
type StatusInfo struct {
	CanUndo        bool        `json:"can_undo"`
	CanRedo        bool        `json:"can_redo"`
	UndoCount      int         `json:"undo_count"`
	RedoCount      int         `json:"redo_count"`
	NextUndo       string      `json:"next_undo,omitempty"`
	NextRedo       string      `json:"next_redo,omitempty"`
	InBatch        bool        `json:"in_batch"`
	BatchDepth     int         `json:"batch_depth"`
	Codec          codec.Kind  `json:"codec"`
	MemoryUsageMB  float64     `json:"memory_usage_mb"`
	MemoryBudgetMB float64     `json:"memory_budget_mb"`
	CountLimit     int         `json:"count_limit"`
	Stats          model.Stats `json:"statistics"`
}

// DetailedStats extends StatusInfo with a breakdown of the undo stack.
type DetailedStats struct {
	StatusInfo

	KindCounts        map[model.OperationKind]int `json:"operation_type_counts"`
	AverageDurationMS float64                     `json:"average_execution_time_ms"`
	AverageSizeMB     float64                     `json:"average_operation_size_mb"`
	Oldest            *OperationSummary           `json:"oldest_operation,omitempty"`
	Newest            *OperationSummary           `json:"newest_operation,omitempty"`
	Events            event.Stats                 `json:"events"`
	Handlers          map[event.Name]int          `json:"handlers"`
}

// Status returns a snapshot of the engine state.
func (e *Engine[S]) Status() StatusInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine[S]) statusLocked() StatusInfo {
	st := StatusInfo{
		CanUndo:        len(e.hist.undo) > 0,
		CanRedo:        len(e.hist.redo) > 0,
		UndoCount:      len(e.hist.undo),
		RedoCount:      len(e.hist.redo),
		InBatch:        len(e.batches) > 0,
		BatchDepth:     len(e.batches),
		Codec:          e.cfg.Codec,
		MemoryUsageMB:  toMB(e.hist.bytes),
		MemoryBudgetMB: e.cfg.MemoryBudgetMB,
		CountLimit:     e.cfg.CountLimit,
		Stats:          e.stats,
	}
	if st.CanUndo {
		st.NextUndo = e.hist.undo[len(e.hist.undo)-1].userDescription
	}
	if st.CanRedo {
		st.NextRedo = e.hist.redo[len(e.hist.redo)-1].userDescription
	}
	return st
}

// DetailedStats returns the status plus per-kind counts, averages and the
// oldest and newest undoable operations.
func (e *Engine[S]) DetailedStats() DetailedStats {
	e.mu.Lock()
	d := DetailedStats{
		StatusInfo: e.statusLocked(),
		KindCounts: make(map[model.OperationKind]int),
	}
	var totalMS float64
	for _, op := range e.hist.undo {
		d.KindCounts[op.kind]++
		totalMS += op.durationMS
	}
	if n := len(e.hist.undo); n > 0 {
		oldest, newest := e.hist.undo[0].summary(), e.hist.undo[n-1].summary()
		d.Oldest, d.Newest = &oldest, &newest
		d.AverageDurationMS = totalMS / float64(n)
		d.AverageSizeMB = d.Stats.AverageOperationSizeMB
	}
	e.mu.Unlock()

	d.Events = e.notifier.Stats()
	d.Handlers = make(map[event.Name]int)
	for _, name := range event.Names() {
		d.Handlers[name] = e.notifier.HandlerCount(name)
	}
	return d
}

// UndoDescriptions returns up to n undo labels, most recent first. n <= 0
// means 10.
func (e *Engine[S]) UndoDescriptions(n int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return descriptions(e.hist.undo, n)
}

// RedoDescriptions returns up to n redo labels, most recent first.
func (e *Engine[S]) RedoDescriptions(n int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return descriptions(e.hist.redo, n)
}

// UndoOperations returns summaries of up to n undo operations, most recent
// first.
func (e *Engine[S]) UndoOperations(n int) []OperationSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return summaries(e.hist.undo, n)
}

// RedoOperations returns summaries of up to n redo operations, most recent
// first.
func (e *Engine[S]) RedoOperations(n int) []OperationSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return summaries(e.hist.redo, n)
}

func descriptions[S any](stack []*Operation[S], n int) []string {
	out := make([]string, 0, min(limitOrDefault(n), len(stack)))
	for i := len(stack) - 1; i >= 0 && len(out) < cap(out); i-- {
		out = append(out, stack[i].userDescription)
	}
	return out
}

func summaries[S any](stack []*Operation[S], n int) []OperationSummary {
	out := make([]OperationSummary, 0, min(limitOrDefault(n), len(stack)))
	for i := len(stack) - 1; i >= 0 && len(out) < cap(out); i-- {
		out = append(out, stack[i].summary())
	}
	return out
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultDescriptions
	}
	return n
}
