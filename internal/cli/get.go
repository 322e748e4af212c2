package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/opshistory/internal/model"
	"github.com/rcliao/opshistory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Retrieve an archived session",
		Run:   runGet,
	}

	cmd.Flags().StringP("name", "n", "", "Session name (required)")
	cmd.Flags().Bool("history", false, "Return all versions (newest first)")
	cmd.Flags().IntP("version", "v", 0, "Specific version number")
	cmd.Flags().Bool("operations", false, "Include the session's operations")
	cmd.Flags().String("stack", "", "With --operations: only undo or redo")

	cmd.MarkFlagRequired("name")

	RootCmd.AddCommand(cmd)
}

type sessionWithOps struct {
	model.Session
	Operations []model.ArchivedOperation `json:"operations"`
}

func runGet(cmd *cobra.Command, args []string) {
	name, _ := cmd.Flags().GetString("name")
	history, _ := cmd.Flags().GetBool("history")
	version, _ := cmd.Flags().GetInt("version")
	withOps, _ := cmd.Flags().GetBool("operations")
	stack, _ := cmd.Flags().GetString("stack")

	if stack != "" && stack != model.StackUndo && stack != model.StackRedo {
		exitErr("get", fmt.Errorf("stack must be %q or %q, got %q", model.StackUndo, model.StackRedo, stack))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sessions, err := s.Get(cmd.Context(), store.GetParams{
		Name:    name,
		History: history,
		Version: version,
	})
	if err != nil {
		exitErr("get", err)
	}

	if history || len(sessions) > 1 {
		printJSON(sessions)
		return
	}
	if !withOps {
		printJSON(sessions[0])
		return
	}

	ops, err := s.Operations(cmd.Context(), store.OperationsParams{
		SessionID: sessions[0].ID,
		Stack:     stack,
	})
	if err != nil {
		exitErr("operations", err)
	}
	printJSON(sessionWithOps{Session: sessions[0], Operations: ops})
}
