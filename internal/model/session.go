package model

import "time"

// Session is an archived history file.
type Session struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Version          int        `json:"version"`
	Supersedes       string     `json:"supersedes,omitempty"`
	SourcePath       string     `json:"source_path,omitempty"`
	FileVersion      string     `json:"file_version"`
	Codec            string     `json:"codec"`
	PayloadsEmbedded bool       `json:"payloads_embedded"`
	SavedAt          time.Time  `json:"saved_at"`
	ImportedAt       time.Time  `json:"imported_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
	UndoCount        int        `json:"undo_count"`
	RedoCount        int        `json:"redo_count"`
	MemoryMB         float64    `json:"memory_mb"`
	Stats            Stats      `json:"stats"`
}

// Stack names used by the archive.
const (
	StackUndo = "undo"
	StackRedo = "redo"
)

// ArchivedOperation is one operation row of an archived session.
type ArchivedOperation struct {
	SessionID string `json:"session_id"`
	Stack     string `json:"stack"`
	Seq       int    `json:"seq"`
	OperationRecord
}
