package cli

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rcliao/opshistory/internal/codec"
	"github.com/rcliao/opshistory/internal/history"
)

func testConfig() history.Config {
	cfg := history.DefaultConfig()
	cfg.CountLimit = 1000
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func TestEditorUndoRedoRestoresPlan(t *testing.T) {
	for _, kind := range codec.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			cfg := testConfig()
			cfg.Codec = kind
			ed, err := newEditor(cfg, 42)
			if err != nil {
				t.Fatalf("new editor: %v", err)
			}
			if err := ed.run(60, 0); err != nil {
				t.Fatalf("run: %v", err)
			}
			final := ed.plan.clone()

			for ed.engine.Undo() {
			}
			if n := ed.plan.EntityCount(); n != 0 {
				t.Fatalf("expected empty plan after undoing everything, got %d entities", n)
			}

			for ed.engine.Redo() {
			}
			if !reflect.DeepEqual(final, ed.plan) {
				t.Errorf("plan after redo differs:\nwant %+v\ngot  %+v", final, ed.plan)
			}
		})
	}
}

func TestEditorRunUndoes(t *testing.T) {
	ed, err := newEditor(testConfig(), 7)
	if err != nil {
		t.Fatalf("new editor: %v", err)
	}
	if err := ed.run(20, 3); err != nil {
		t.Fatalf("run: %v", err)
	}
	st := ed.engine.Status()
	if st.RedoCount != 3 {
		t.Errorf("expected 3 redo steps, got %d", st.RedoCount)
	}
	if st.Stats.SuccessfulUndos != 3 {
		t.Errorf("expected 3 undos, got %d", st.Stats.SuccessfulUndos)
	}
}

func TestEditorSaveAndReplay(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	cfg := testConfig()
	cfg.EmbedPayloads = true
	src, err := newEditor(cfg, 3)
	if err != nil {
		t.Fatalf("new editor: %v", err)
	}
	if err := src.run(25, 2); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := src.engine.SaveFile(ctx, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	dst, err := newEditor(testConfig(), 1)
	if err != nil {
		t.Fatalf("new editor: %v", err)
	}
	if err := dst.engine.LoadFile(ctx, path); err != nil {
		t.Fatalf("load: %v", err)
	}

	steps := replay(dst, "redo", 5)
	if len(steps) != 2 {
		t.Fatalf("expected 2 redo steps, got %d", len(steps))
	}
	for _, st := range steps {
		if !st.OK {
			t.Errorf("redo %q failed", st.Description)
		}
	}

	for src.engine.Redo() {
	}
	if !reflect.DeepEqual(src.plan.clone(), dst.plan) {
		t.Errorf("replayed plan differs from source")
	}
}

func TestReplayWithoutPayloads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "meta.json")

	src, _ := newEditor(testConfig(), 5)
	src.run(10, 0)
	if err := src.engine.SaveFile(ctx, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	dst, _ := newEditor(testConfig(), 1)
	if err := dst.engine.LoadFile(ctx, path); err != nil {
		t.Fatalf("load: %v", err)
	}
	steps := replay(dst, "undo", 3)
	if len(steps) != 1 || steps[0].OK {
		t.Errorf("expected a single failed undo, got %+v", steps)
	}
}

func TestSessionName(t *testing.T) {
	if got := sessionName("/tmp/plans/tower-a.json"); got != "tower-a" {
		t.Errorf("expected tower-a, got %q", got)
	}
}

func TestInspectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	cfg := testConfig()
	cfg.EmbedPayloads = true
	src, err := newEditor(cfg, 11)
	if err != nil {
		t.Fatalf("new editor: %v", err)
	}
	if err := src.run(15, 1); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := src.engine.SaveFile(context.Background(), path); err != nil {
		t.Fatalf("save: %v", err)
	}
	want := src.engine.Status()

	res, err := inspectFile(testConfig(), path, 2, 1, 5)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if res.FileVersion != "1.0" || !res.PayloadsEmbedded {
		t.Errorf("unexpected file header: version=%q embedded=%t", res.FileVersion, res.PayloadsEmbedded)
	}
	if len(res.Replay) != 3 {
		t.Fatalf("expected 3 replay steps, got %+v", res.Replay)
	}
	for _, st := range res.Replay {
		if !st.OK {
			t.Errorf("%s %q failed", st.Action, st.Description)
		}
	}
	if res.Stats.UndoCount != want.UndoCount-1 || res.Stats.RedoCount != want.RedoCount+1 {
		t.Errorf("expected undo=%d redo=%d, got undo=%d redo=%d",
			want.UndoCount-1, want.RedoCount+1, res.Stats.UndoCount, res.Stats.RedoCount)
	}
	if len(res.UndoMenu) > 5 {
		t.Errorf("menu not capped: %d entries", len(res.UndoMenu))
	}

	if _, err := inspectFile(testConfig(), filepath.Join(t.TempDir(), "missing.json"), 0, 0, 5); err == nil {
		t.Error("expected an error for a missing file")
	}
}
