// Package store provides the session archive interface and its SQLite
// implementation. A session is one saved history file; re-importing a file
// under the same name creates a new version that supersedes the previous.
package store

import (
	"context"

	"github.com/rcliao/opshistory/internal/model"
)

// ImportParams holds parameters for archiving a history file.
type ImportParams struct {
	Name       string
	SourcePath string
	File       *model.HistoryFile
}

// GetParams holds parameters for retrieving a session.
type GetParams struct {
	Name    string
	History bool
	Version int // 0 means latest
}

// ListParams holds parameters for listing sessions.
type ListParams struct {
	Codec string
	Limit int
}

// OperationsParams selects the operations of one session.
type OperationsParams struct {
	SessionID string
	Stack     string // "" means both
	Kind      model.OperationKind
}

// RmParams holds parameters for deleting a session.
type RmParams struct {
	Name        string
	AllVersions bool
	Hard        bool
}

// Store defines the session archive interface.
type Store interface {
	// Import archives a history file. Returns the created session.
	Import(ctx context.Context, p ImportParams) (*model.Session, error)

	// Get retrieves a session by name.
	// Returns a slice (single element normally, multiple with History=true).
	Get(ctx context.Context, p GetParams) ([]model.Session, error)

	// List lists the latest version of every session.
	List(ctx context.Context, p ListParams) ([]model.Session, error)

	// Operations returns a session's operations, undo stack first.
	Operations(ctx context.Context, p OperationsParams) ([]model.ArchivedOperation, error)

	// Export rebuilds the history file of a session.
	Export(ctx context.Context, sessionID string) (*model.HistoryFile, error)

	// Rm soft-deletes (or hard-deletes) a session.
	Rm(ctx context.Context, p RmParams) error

	// Close closes the store.
	Close() error
}
