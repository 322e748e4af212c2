package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rcliao/opshistory/internal/codec"
	"github.com/rcliao/opshistory/internal/model"
)

var tracer = otel.Tracer("opshistory.history")

func loggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

// Export copies both stacks into the portable file form. Payloads are
// included only when Config.EmbedPayloads is set.
func (e *Engine[S]) Export() *model.HistoryFile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exportLocked()
}

func (e *Engine[S]) exportLocked() *model.HistoryFile {
	embed := e.cfg.EmbedPayloads
	f := &model.HistoryFile{
		Version:          model.HistoryFileVersion,
		SavedAt:          time.Now().UTC(),
		Codec:            string(e.cfg.Codec),
		PayloadsEmbedded: embed,
		Stats:            e.stats,
		Undo:             make([]model.OperationRecord, 0, len(e.hist.undo)),
		Redo:             make([]model.OperationRecord, 0, len(e.hist.redo)),
	}
	f.Stats.MemoryUsageMB = toMB(e.hist.bytes)
	for _, op := range e.hist.undo {
		f.Undo = append(f.Undo, op.record(embed))
	}
	for _, op := range e.hist.redo {
		f.Redo = append(f.Redo, op.record(embed))
	}
	return f
}

// SaveFile writes the history to path as JSON. The lock is held only while
// copying the stacks; the write goes through a temp file and rename.
func (e *Engine[S]) SaveFile(ctx context.Context, path string) (err error) {
	ctx, span := tracer.Start(ctx, "history.Engine.SaveFile",
		trace.WithAttributes(attribute.String("path", path)))
	defer span.End()
	defer func() {
		persistTotal.WithLabelValues("save", statusLabel(err == nil)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "save failed")
		}
	}()
	logger := loggerWithTrace(ctx, e.logger)

	f := e.Export()

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}

	span.SetAttributes(
		attribute.Int("operations", f.Count()),
		attribute.Int("bytes", len(data)),
		attribute.Bool("payloads_embedded", f.PayloadsEmbedded),
	)
	logger.Info("history saved",
		slog.String("path", path),
		slog.Int("undo", len(f.Undo)),
		slog.Int("redo", len(f.Redo)),
		slog.Bool("payloads_embedded", f.PayloadsEmbedded))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	cleanup = false
	return nil
}

// ReadFile parses a history file without loading it into an engine.
func ReadFile(path string) (*model.HistoryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFile(path, data)
}

// ParseFile parses history file contents. path is only used in errors.
func ParseFile(path string, data []byte) (*model.HistoryFile, error) {
	var f model.HistoryFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &FormatError{Path: path, Reason: "malformed JSON", Err: err}
	}
	if f.Version != model.HistoryFileVersion {
		return nil, &FormatError{Path: path, Reason: fmt.Sprintf("unsupported version %q", f.Version)}
	}
	return &f, nil
}

// LoadFile replaces the history with the contents of path. Every operation
// is rebuilt and verified before the stacks are touched; on error the
// engine is unchanged. Open batches are discarded. With AutoCleanup the
// loaded undo stack is trimmed to the engine's limits, oldest first.
func (e *Engine[S]) LoadFile(ctx context.Context, path string) (err error) {
	ctx, span := tracer.Start(ctx, "history.Engine.LoadFile",
		trace.WithAttributes(attribute.String("path", path)))
	defer span.End()
	defer func() {
		persistTotal.WithLabelValues("load", statusLabel(err == nil)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "load failed")
		}
	}()

	f, err := ReadFile(path)
	if err != nil {
		return err
	}
	if err := e.restore(path, f); err != nil {
		return err
	}

	span.SetAttributes(attribute.Int("operations", f.Count()))
	loggerWithTrace(ctx, e.logger).Info("history loaded",
		slog.String("path", path),
		slog.Int("undo", len(f.Undo)),
		slog.Int("redo", len(f.Redo)),
		slog.Bool("payloads_embedded", f.PayloadsEmbedded))
	return nil
}

// Restore replaces the history with an already parsed file, with the same
// all-or-nothing behaviour as LoadFile.
func (e *Engine[S]) Restore(f *model.HistoryFile) error {
	return e.restore("", f)
}

func (e *Engine[S]) restore(path string, f *model.HistoryFile) error {
	if f.Version != model.HistoryFileVersion {
		return &FormatError{Path: path, Reason: fmt.Sprintf("unsupported version %q", f.Version)}
	}

	seen := make(map[string]bool, f.Count())
	build := func(recs []model.OperationRecord) ([]*Operation[S], error) {
		ops := make([]*Operation[S], 0, len(recs))
		for i := range recs {
			op, err := operationFromRecord[S](&recs[i], seen)
			if err != nil {
				return nil, &FormatError{Path: path, Reason: "invalid operation", Err: err}
			}
			ops = append(ops, op)
		}
		return ops, nil
	}
	undo, err := build(f.Undo)
	if err != nil {
		return err
	}
	redo, err := build(f.Redo)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.hist.reset()
	for _, op := range undo {
		e.hist.pushUndo(op)
	}
	for _, op := range redo {
		e.hist.pushRedo(op)
	}
	e.batches = nil
	e.stats = f.Stats

	var res evictResult
	if e.cfg.AutoCleanup {
		res = e.hist.evict(e.cfg.CountLimit, e.cfg.budgetBytes())
		evictionsTotal.WithLabelValues("count").Add(float64(res.byCount))
		evictionsTotal.WithLabelValues("memory").Add(float64(res.byMemory))
	}
	e.refreshMemoryLocked()
	e.mu.Unlock()

	if evicted := res.byCount + res.byMemory; evicted > 0 {
		e.logger.Info("evicted loaded operations over limits",
			slog.Int("evicted", evicted),
			slog.Int("count_limit", e.cfg.CountLimit),
			slog.Float64("memory_budget_mb", e.cfg.MemoryBudgetMB))
	}
	return nil
}

func operationFromRecord[S any](rec *model.OperationRecord, seen map[string]bool) (*Operation[S], error) {
	if rec.ID == "" {
		return nil, errors.New("missing operation id")
	}
	if seen[rec.ID] {
		return nil, fmt.Errorf("duplicate operation id %s", rec.ID)
	}
	seen[rec.ID] = true
	if err := validateKind(rec.Kind); err != nil {
		return nil, fmt.Errorf("operation %s: %w", rec.ID, err)
	}

	op := &Operation[S]{
		id:              rec.ID,
		kind:            rec.Kind,
		timestamp:       rec.Timestamp,
		description:     rec.Description,
		userDescription: rec.UserDescription,
		entityIDs:       normalizeSet(rec.EntityIDs),
		levels:          normalizeSet(rec.Levels),
		onUndo:          NoopHook[S](),
		onRedo:          NoopHook[S](),
		durationMS:      rec.DurationMS,
	}
	if op.userDescription == "" {
		op.userDescription = op.description
	}

	if len(rec.Children) > 0 {
		if rec.Kind != model.KindBatch {
			return nil, fmt.Errorf("operation %s: children on non-batch kind %s", rec.ID, rec.Kind)
		}
		for i := range rec.Children {
			child, err := operationFromRecord[S](&rec.Children[i], seen)
			if err != nil {
				return nil, err
			}
			op.children = append(op.children, child)
		}
		op.before = op.children[0].before
		op.after = op.children[len(op.children)-1].after
		return op, nil
	}

	if rec.Before == nil {
		return nil, fmt.Errorf("operation %s: missing before snapshot", rec.ID)
	}
	var err error
	if op.before, err = snapshotFromRecord(rec.Before, rec.Kind); err != nil {
		return nil, fmt.Errorf("operation %s: %w", rec.ID, err)
	}
	if rec.After != nil {
		if op.after, err = snapshotFromRecord(rec.After, rec.Kind); err != nil {
			return nil, fmt.Errorf("operation %s: %w", rec.ID, err)
		}
	}
	return op, nil
}

func snapshotFromRecord(rec *model.SnapshotRecord, kind model.OperationKind) (*Snapshot, error) {
	ck, err := codec.ParseKind(rec.Codec)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", rec.ID, err)
	}
	s := &Snapshot{
		id:          rec.ID,
		timestamp:   rec.Timestamp,
		kind:        kind,
		codec:       ck,
		hash:        rec.Hash,
		size:        rec.Size,
		entityCount: rec.EntityCount,
	}
	if len(rec.Payload) == 0 {
		return s, nil
	}
	if len(rec.Payload) != rec.Size {
		return nil, fmt.Errorf("snapshot %s: size %d, recorded %d", rec.ID, len(rec.Payload), rec.Size)
	}
	if h := contentHash(rec.Payload); h != rec.Hash {
		return nil, fmt.Errorf("snapshot %s: hash %s, recorded %s", rec.ID, h, rec.Hash)
	}
	s.payload = rec.Payload
	return s, nil
}
