package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/opshistory/internal/codec"
	"github.com/rcliao/opshistory/internal/history"
	"github.com/rcliao/opshistory/internal/model"
	"github.com/rcliao/opshistory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Record a scripted floor plan editing session",
		Long: "Run random floor plan edits through the history engine, undo a few, and save the\n" +
			"history to a file. With --archive the file is also imported into the archive.",
		Run: runSimulate,
	}

	cmd.Flags().StringP("out", "o", "", "History file to write (required)")
	cmd.Flags().Int("ops", 40, "Number of edits")
	cmd.Flags().Int("undo", 3, "Edits to undo before saving")
	cmd.Flags().Int64("seed", 0, "Random seed (default: current time)")
	cmd.Flags().String("codec", "", "Snapshot codec: none, deflate or native (default from config)")
	cmd.Flags().Bool("embed", false, "Embed snapshot payloads in the file")
	cmd.Flags().String("archive", "", "Also archive the file under this session name")

	cmd.MarkFlagRequired("out")

	RootCmd.AddCommand(cmd)
}

type simulateResult struct {
	Path           string             `json:"path"`
	Seed           int64              `json:"seed"`
	Entities       int                `json:"entities"`
	MemoryWarnings int                `json:"memory_warnings"`
	Status         history.StatusInfo `json:"status"`
	UndoMenu       []string           `json:"undo_menu"`
	RedoMenu       []string           `json:"redo_menu"`
	Session        *model.Session     `json:"session,omitempty"`
}

func runSimulate(cmd *cobra.Command, args []string) {
	out, _ := cmd.Flags().GetString("out")
	ops, _ := cmd.Flags().GetInt("ops")
	undo, _ := cmd.Flags().GetInt("undo")
	seed, _ := cmd.Flags().GetInt64("seed")
	codecName, _ := cmd.Flags().GetString("codec")
	embed, _ := cmd.Flags().GetBool("embed")
	archive, _ := cmd.Flags().GetString("archive")

	cfg := appConfig.History
	if codecName != "" {
		kind, err := codec.ParseKind(codecName)
		if err != nil {
			exitErr("codec", err)
		}
		cfg.Codec = kind
	}
	if cmd.Flags().Changed("embed") {
		cfg.EmbedPayloads = embed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ed, err := newEditor(cfg, seed)
	if err != nil {
		exitErr("engine", err)
	}
	if err := ed.run(ops, undo); err != nil {
		exitErr("simulate", err)
	}
	if err := ed.engine.SaveFile(cmd.Context(), out); err != nil {
		exitErr("save", err)
	}

	res := simulateResult{
		Path:           out,
		Seed:           seed,
		Entities:       ed.plan.EntityCount(),
		MemoryWarnings: ed.warnings,
		Status:         ed.engine.Status(),
		UndoMenu:       ed.engine.UndoDescriptions(0),
		RedoMenu:       ed.engine.RedoDescriptions(0),
	}

	if archive != "" {
		f, err := history.ReadFile(out)
		if err != nil {
			exitErr("read history", err)
		}
		s, err := openStore()
		if err != nil {
			exitErr("open store", err)
		}
		defer s.Close()
		res.Session, err = s.Import(cmd.Context(), store.ImportParams{Name: archive, SourcePath: out, File: f})
		if err != nil {
			exitErr("archive", err)
		}
	}

	if textOutput() {
		fmt.Printf("saved %s: undo=%d redo=%d entities=%d memory=%.3f MB warnings=%d\n",
			out, res.Status.UndoCount, res.Status.RedoCount, res.Entities, res.Status.MemoryUsageMB, res.MemoryWarnings)
		return
	}
	printJSON(res)
}
