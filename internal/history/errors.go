package history

import (
	"errors"
	"fmt"

	"github.com/rcliao/opshistory/internal/codec"
	"github.com/rcliao/opshistory/internal/event"
)

var (
	// ErrEncodeFailure means a state could not be encoded even with the
	// fallback codec. The operation was not recorded.
	ErrEncodeFailure = errors.New("encode failure")

	// ErrSnapshotCorrupt means a snapshot payload could not be decoded.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")

	// ErrHistoryFormat means a history file is incompatible or damaged.
	ErrHistoryFormat = errors.New("history format error")

	// ErrHandlerFailure is raised by event handlers. It is logged and counted,
	// never returned from engine calls.
	ErrHandlerFailure = event.ErrHandlerFailure

	// ErrHookFailure wraps errors and panics from OnUndo/OnRedo hooks.
	ErrHookFailure = errors.New("hook failure")

	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrBatchOpen     = errors.New("batch in progress")
	ErrUnknownBatch  = errors.New("unknown batch")
	ErrInvalidKind   = errors.New("invalid operation kind")

	errDetached = errors.New("payload not loaded")
)

// SnapshotError reports a snapshot that failed to decode.
type SnapshotError struct {
	SnapshotID string
	Codec      codec.Kind
	Err        error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s (%s): %v", e.SnapshotID, e.Codec, e.Err)
}

func (e *SnapshotError) Unwrap() []error {
	return []error{ErrSnapshotCorrupt, e.Err}
}

// FormatError reports a history file that cannot be loaded.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := "history file"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrHistoryFormat, e.Err}
	}
	return []error{ErrHistoryFormat}
}
