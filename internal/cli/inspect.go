package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/opshistory/internal/history"
)

func init() {
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Load a history file and show its status",
		Long: "Load a history file into an engine and print its status, menus and statistics.\n" +
			"--undo and --redo replay steps; this needs a file saved with embedded payloads.",
		Args: cobra.ExactArgs(1),
		Run:  runInspect,
	}

	cmd.Flags().Int("undo", 0, "Undo this many steps after loading")
	cmd.Flags().Int("redo", 0, "Redo this many steps after the undos")
	cmd.Flags().IntP("menu", "m", 10, "Menu entries to show")

	RootCmd.AddCommand(cmd)
}

type replayStep struct {
	Action      string `json:"action"`
	Description string `json:"description"`
	OK          bool   `json:"ok"`
	Entities    int    `json:"entities"`
}

type inspectResult struct {
	Path             string                     `json:"path"`
	FileVersion      string                     `json:"file_version"`
	PayloadsEmbedded bool                       `json:"payloads_embedded"`
	Stats            history.DetailedStats      `json:"stats"`
	UndoMenu         []history.OperationSummary `json:"undo_menu"`
	RedoMenu         []history.OperationSummary `json:"redo_menu"`
	Replay           []replayStep               `json:"replay,omitempty"`
	Log              []history.LogEntry         `json:"log,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) {
	undo, _ := cmd.Flags().GetInt("undo")
	redo, _ := cmd.Flags().GetInt("redo")
	menu, _ := cmd.Flags().GetInt("menu")

	res, err := inspectFile(appConfig.History, args[0], undo, redo, menu)
	if err != nil {
		exitErr("inspect", err)
	}

	if textOutput() {
		fmt.Printf("%s (v%s, payloads embedded: %t)\n", res.Path, res.FileVersion, res.PayloadsEmbedded)
		fmt.Printf("undo=%d redo=%d memory=%.3f MB\n", res.Stats.UndoCount, res.Stats.RedoCount, res.Stats.MemoryUsageMB)
		for _, op := range res.UndoMenu {
			fmt.Printf("  undo: %s [%s]\n", op.UserDescription, op.Kind)
		}
		for _, op := range res.RedoMenu {
			fmt.Printf("  redo: %s [%s]\n", op.UserDescription, op.Kind)
		}
		for _, st := range res.Replay {
			fmt.Printf("  %s %q ok=%t entities=%d\n", st.Action, st.Description, st.OK, st.Entities)
		}
		return
	}
	printJSON(res)
}

// inspectFile parses path once, restores it into a fresh editor and replays
// undo then redo steps.
func inspectFile(cfg history.Config, path string, undo, redo, menu int) (*inspectResult, error) {
	f, err := history.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	ed, err := newEditor(cfg, 1)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if err := ed.engine.Restore(f); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	res := &inspectResult{
		Path:             path,
		FileVersion:      f.Version,
		PayloadsEmbedded: f.PayloadsEmbedded,
	}
	res.Replay = append(res.Replay, replay(ed, "undo", undo)...)
	res.Replay = append(res.Replay, replay(ed, "redo", redo)...)
	res.Stats = ed.engine.DetailedStats()
	res.UndoMenu = ed.engine.UndoOperations(menu)
	res.RedoMenu = ed.engine.RedoOperations(menu)
	res.Log = ed.engine.OperationLog()
	return res, nil
}

func replay(ed *editor, action string, n int) []replayStep {
	var steps []replayStep
	for i := 0; i < n; i++ {
		var desc string
		var ok bool
		if action == "undo" {
			if d := ed.engine.UndoDescriptions(1); len(d) > 0 {
				desc = d[0]
			}
			ok = ed.engine.Undo()
		} else {
			if d := ed.engine.RedoDescriptions(1); len(d) > 0 {
				desc = d[0]
			}
			ok = ed.engine.Redo()
		}
		if desc == "" {
			break
		}
		steps = append(steps, replayStep{Action: action, Description: desc, OK: ok, Entities: ed.plan.EntityCount()})
		if !ok {
			break
		}
	}
	return steps
}
