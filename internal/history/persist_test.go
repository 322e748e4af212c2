package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/opshistory/internal/model"
)

func seedHistory(t *testing.T, e *Engine[doc]) {
	t.Helper()
	for i, kind := range []model.OperationKind{model.KindCreate, model.KindMove, model.KindDelete} {
		after := doc{"n": i + 1}
		_, err := e.Push(PushParams[doc]{
			Kind:        kind,
			Description: string(kind),
			Before:      doc{"n": i},
			After:       &after,
			EntityIDs:   []string{"e1"},
			Levels:      []string{"L1"},
		})
		require.NoError(t, err)
	}
	bid := e.BeginBatch("Batch")
	for i := 10; i < 12; i++ {
		after := doc{"n": i + 100}
		_, err := e.Push(PushParams[doc]{Kind: model.KindCopy, Before: doc{"n": i}, After: &after})
		require.NoError(t, err)
	}
	require.NoError(t, e.EndBatch(bid, true))
	require.True(t, e.Undo())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.json")

	src := newTestEngine[doc](t, func(c *Config) { c.EmbedPayloads = true })
	seedHistory(t, src)
	require.NoError(t, src.SaveFile(ctx, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version": "1.0"`)
	assert.Contains(t, string(raw), `"payload": "`)

	var restored []doc
	dst := newTestEngine[doc](t, nil, WithFallbackHooks[doc](
		HookFunc[doc](func(state *doc, _ *Operation[doc], _ StatusInfo) error {
			restored = append(restored, *state)
			return nil
		}),
		HookFunc[doc](func(state *doc, _ *Operation[doc], _ StatusInfo) error {
			restored = append(restored, *state)
			return nil
		}),
	))
	dst.BeginBatch("stale")
	require.NoError(t, dst.LoadFile(ctx, path))

	assert.False(t, dst.InBatch())
	assert.Equal(t, src.UndoDescriptions(0), dst.UndoDescriptions(0))
	assert.Equal(t, src.RedoDescriptions(0), dst.RedoDescriptions(0))
	assert.Equal(t, src.Status().Stats.TotalOperations, dst.Status().Stats.TotalOperations)
	assert.InDelta(t, src.Status().MemoryUsageMB, dst.Status().MemoryUsageMB, 1e-12)
	checkInvariants(t, dst)

	require.True(t, dst.Redo())
	require.Len(t, restored, 2)
	assert.Equal(t, doc{"n": 110}, restored[0])
	assert.Equal(t, doc{"n": 111}, restored[1])

	restored = nil
	require.True(t, dst.Undo())
	require.True(t, dst.Undo())
	assert.Equal(t, doc{"n": 2}, restored[len(restored)-1])
}

func TestSaveMetadataOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.json")

	src := newTestEngine[doc](t, nil)
	seedHistory(t, src)
	require.NoError(t, src.SaveFile(ctx, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"payload"`)

	f, err := ReadFile(path)
	require.NoError(t, err)
	assert.False(t, f.PayloadsEmbedded)
	assert.Equal(t, 3, len(f.Undo))
	assert.Equal(t, []string{"e1"}, f.Undo[0].EntityIDs)
	assert.Len(t, f.Redo[0].Children, 2)

	dst := newTestEngine[doc](t, nil)
	require.NoError(t, dst.LoadFile(ctx, path))
	assert.Equal(t, src.UndoDescriptions(0), dst.UndoDescriptions(0))
	assert.Zero(t, dst.Status().MemoryUsageMB)
	assert.True(t, dst.hist.undo[0].Before().Detached())

	assert.False(t, dst.Undo())
	assert.True(t, dst.CanUndo())
}

func TestLoadRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2.0","undo_operations":[]}`), 0o644))

	e := newTestEngine[doc](t, nil)
	seedHistory(t, e)
	before := e.UndoDescriptions(0)

	err := e.LoadFile(context.Background(), path)
	require.ErrorIs(t, err, ErrHistoryFormat)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, path, fe.Path)
	assert.Contains(t, fe.Reason, "2.0")
	assert.Equal(t, before, e.UndoDescriptions(0))
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":`), 0o644))

	_, err := ReadFile(path)
	assert.ErrorIs(t, err, ErrHistoryFormat)
}

func TestRestoreIsAllOrNothing(t *testing.T) {
	src := newTestEngine[doc](t, func(c *Config) { c.EmbedPayloads = true })
	seedHistory(t, src)

	tests := []struct {
		name   string
		mangle func(f *model.HistoryFile)
		reason string
	}{
		{"hash mismatch", func(f *model.HistoryFile) { f.Undo[2].Before.Hash = "0000000000000000" }, "hash"},
		{"size mismatch", func(f *model.HistoryFile) { f.Undo[1].After.Size++ }, "size"},
		{"duplicate id", func(f *model.HistoryFile) { f.Redo = append(f.Redo, f.Undo[0]) }, "duplicate"},
		{"invalid kind", func(f *model.HistoryFile) { f.Undo[2].Kind = "teleport" }, "invalid operation kind"},
		{"unknown codec", func(f *model.HistoryFile) { f.Undo[1].Before.Codec = "zstd" }, "unknown codec"},
		{"missing before", func(f *model.HistoryFile) { f.Undo[0].Before = nil }, "missing before"},
		{"children on plain op", func(f *model.HistoryFile) { f.Undo[0].Children = f.Redo[0].Children }, "children"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := cloneFile(t, src.Export())
			tt.mangle(f)

			dst := newTestEngine[doc](t, nil)
			_, err := dst.Push(PushParams[doc]{Kind: model.KindCreate, Description: "existing", Before: doc{}})
			require.NoError(t, err)

			err = dst.Restore(f)
			require.ErrorIs(t, err, ErrHistoryFormat)
			assert.Contains(t, err.Error(), tt.reason)
			assert.Equal(t, []string{"existing"}, dst.UndoDescriptions(0))
			assert.False(t, dst.CanRedo())
		})
	}
}

func TestExportWithoutPayloads(t *testing.T) {
	e := newTestEngine[doc](t, nil)
	seedHistory(t, e)

	f := e.Export()
	assert.Equal(t, model.HistoryFileVersion, f.Version)
	assert.Equal(t, "native", f.Codec)
	for _, rec := range f.Undo {
		require.NotNil(t, rec.Before)
		assert.Nil(t, rec.Before.Payload)
		assert.NotEmpty(t, rec.Before.Hash)
		assert.True(t, strings.HasSuffix(rec.Before.ID, "_before"))
	}
}

func cloneFile(t *testing.T, f *model.HistoryFile) *model.HistoryFile {
	t.Helper()
	data, err := json.Marshal(f)
	require.NoError(t, err)
	var out model.HistoryFile
	require.NoError(t, json.Unmarshal(data, &out))
	return &out
}

func TestLoadAppliesCountLimit(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.json")

	src := newTestEngine[doc](t, func(c *Config) { c.CountLimit = 100 })
	for i := 0; i < 12; i++ {
		_, err := src.Push(PushParams[doc]{Kind: model.KindMove, Description: fmt.Sprintf("op %d", i), Before: doc{"n": i}})
		require.NoError(t, err)
	}
	require.NoError(t, src.SaveFile(ctx, path))

	dst := newTestEngine[doc](t, func(c *Config) { c.CountLimit = 5 })
	require.NoError(t, dst.LoadFile(ctx, path))
	assert.Equal(t, 5, dst.Status().UndoCount)
	assert.Equal(t, src.UndoDescriptions(5), dst.UndoDescriptions(0))
	checkInvariants(t, dst)

	manual := newTestEngine[doc](t, func(c *Config) {
		c.CountLimit = 5
		c.AutoCleanup = false
	})
	require.NoError(t, manual.LoadFile(ctx, path))
	assert.Equal(t, 12, manual.Status().UndoCount)
}
