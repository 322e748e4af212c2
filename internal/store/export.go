package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rcliao/opshistory/internal/model"
)

// Export rebuilds the history file a session was imported from.
func (s *SQLiteStore) Export(ctx context.Context, sessionID string) (*model.HistoryFile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ? AND deleted_at IS NULL`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}

	ops, err := s.Operations(ctx, OperationsParams{SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	f := &model.HistoryFile{
		Version:          sess.FileVersion,
		SavedAt:          sess.SavedAt,
		Codec:            sess.Codec,
		PayloadsEmbedded: sess.PayloadsEmbedded,
		Stats:            sess.Stats,
		Undo:             []model.OperationRecord{},
		Redo:             []model.OperationRecord{},
	}
	for _, op := range ops {
		if op.Stack == model.StackUndo {
			f.Undo = append(f.Undo, op.OperationRecord)
		} else {
			f.Redo = append(f.Redo, op.OperationRecord)
		}
	}
	return f, nil
}
