// Package model defines the operation, history file and archive types shared
// by the engine, the archive and the CLI.
package model

// OperationKind tags what an operation did to the building model.
type OperationKind string

const (
	KindCreate           OperationKind = "create_element"
	KindDelete           OperationKind = "delete_element"
	KindModifyGeometry   OperationKind = "modify_geometry"
	KindModifyProperties OperationKind = "modify_properties"
	KindMove             OperationKind = "move_element"
	KindCopy             OperationKind = "copy_element"
	KindBatch            OperationKind = "batch_operation"
	KindImport           OperationKind = "import_data"
	KindLevelChange      OperationKind = "level_change"
	KindSelectionChange  OperationKind = "selection_change"
)

// ValidKinds are the allowed operation kinds.
var ValidKinds = map[OperationKind]bool{
	KindCreate:           true,
	KindDelete:           true,
	KindModifyGeometry:   true,
	KindModifyProperties: true,
	KindMove:             true,
	KindCopy:             true,
	KindBatch:            true,
	KindImport:           true,
	KindLevelChange:      true,
	KindSelectionChange:  true,
}

// Stats holds the aggregate engine counters. It is persisted with saved
// history files.
type Stats struct {
	TotalOperations        int64   `json:"total_operations"`
	SuccessfulUndos        int64   `json:"successful_undos"`
	SuccessfulRedos        int64   `json:"successful_redos"`
	FailedOperations       int64   `json:"failed_operations"`
	HandlerFailures        int64   `json:"handler_failures"`
	CodecFallbacks         int64   `json:"codec_fallbacks"`
	MemoryUsageMB          float64 `json:"memory_usage_mb"`
	AverageOperationSizeMB float64 `json:"average_operation_size_mb"`
}
