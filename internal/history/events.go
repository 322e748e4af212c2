package history

import (
	"time"

	"github.com/rcliao/opshistory/internal/event"
	"github.com/rcliao/opshistory/internal/model"
)

// OperationAddedData is the payload of event.OperationAdded.
type OperationAddedData struct {
	OperationID string              `json:"operation_id"`
	Kind        model.OperationKind `json:"operation_type"`
	Description string              `json:"description"`
	MemoryMB    float64             `json:"memory_usage"`
}

// ExecutedData is the payload of event.UndoExecuted and event.RedoExecuted.
// RestoredState holds the decoded S value, or nil when a redo had no
// after-snapshot.
type ExecutedData struct {
	OperationID   string              `json:"operation_id"`
	Kind          model.OperationKind `json:"operation_type"`
	Description   string              `json:"description"`
	DurationMS    float64             `json:"execution_time_ms"`
	RestoredState any                 `json:"-"`
}

// MemoryWarningData is the payload of event.MemoryWarning. CurrentUsageMB is
// measured before eviction, OperationsCount after.
type MemoryWarningData struct {
	CurrentUsageMB  float64 `json:"current_usage_mb"`
	LimitMB         float64 `json:"limit_mb"`
	OperationsCount int     `json:"operations_count"`
	Evicted         int     `json:"evicted"`
}

// ClearedData is the payload of event.HistoryCleared.
type ClearedData struct {
	Timestamp time.Time `json:"timestamp"`
}

type pending struct {
	name event.Name
	data any
}
