package history

import (
	"slices"
	"time"

	"github.com/rcliao/opshistory/internal/model"
)

// LogEntry is one line of the debug operation log.
type LogEntry struct {
	Time        time.Time           `json:"timestamp"`
	Action      string              `json:"action"`
	OperationID string              `json:"operation_id"`
	Kind        model.OperationKind `json:"operation_type"`
	Description string              `json:"description"`
	DurationMS  float64             `json:"execution_time_ms"`
	MemoryMB    float64             `json:"memory_usage_mb"`
}

func (e *Engine[S]) logActionLocked(action string, op *Operation[S], durationMS float64) {
	if !e.cfg.DebugLog {
		return
	}
	e.oplog = append(e.oplog, LogEntry{
		Time:        time.Now(),
		Action:      action,
		OperationID: op.id,
		Kind:        op.kind,
		Description: op.userDescription,
		DurationMS:  durationMS,
		MemoryMB:    op.MemoryMB(),
	})
	if len(e.oplog) > operationLogCap {
		e.oplog = slices.Clone(e.oplog[len(e.oplog)-operationLogKeep:])
	}
}

// OperationLog returns the debug log, oldest first. It is empty unless
// Config.DebugLog is set.
func (e *Engine[S]) OperationLog() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.oplog)
}
