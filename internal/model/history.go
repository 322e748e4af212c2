package model

import "time"

// HistoryFileVersion is the only history file version this build reads.
const HistoryFileVersion = "1.0"

// HistoryFile is the portable on-disk form of a saved history.
type HistoryFile struct {
	Version          string            `json:"version"`
	SavedAt          time.Time         `json:"timestamp"`
	Codec            string            `json:"codec"`
	PayloadsEmbedded bool              `json:"payloads_embedded"`
	Stats            Stats             `json:"stats"`
	Undo             []OperationRecord `json:"undo_operations"`
	Redo             []OperationRecord `json:"redo_operations"`
}

// OperationRecord is the persisted form of one operation.
type OperationRecord struct {
	ID              string            `json:"operation_id"`
	Kind            OperationKind     `json:"operation_type"`
	Timestamp       time.Time         `json:"timestamp"`
	Description     string            `json:"description"`
	UserDescription string            `json:"user_description"`
	EntityIDs       []string          `json:"element_ids"`
	Levels          []string          `json:"affected_levels"`
	DurationMS      float64           `json:"execution_time_ms"`
	MemoryMB        float64           `json:"memory_usage_mb"`
	Before          *SnapshotRecord   `json:"before_snapshot,omitempty"`
	After           *SnapshotRecord   `json:"after_snapshot,omitempty"`
	Children        []OperationRecord `json:"children,omitempty"`
}

// SnapshotRecord is the persisted form of a state snapshot. Payload is only
// present when the history was saved with payloads embedded; encoding/json
// transports it base64-encoded.
type SnapshotRecord struct {
	ID          string    `json:"snapshot_id"`
	Timestamp   time.Time `json:"timestamp"`
	Codec       string    `json:"codec"`
	Hash        string    `json:"data_hash"`
	Size        int       `json:"data_size"`
	EntityCount int       `json:"elements_count"`
	Payload     []byte    `json:"payload,omitempty"`
}

// Count returns the number of operations in both stacks.
func (f *HistoryFile) Count() int {
	return len(f.Undo) + len(f.Redo)
}
