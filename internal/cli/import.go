package cli

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/opshistory/internal/history"
	"github.com/rcliao/opshistory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Archive a saved history file",
		Long:  "Archive a history file. Importing under an existing name creates a new version.",
		Args:  cobra.ExactArgs(1),
		Run:   runImport,
	}

	cmd.Flags().StringP("name", "n", "", "Session name (default: file name without extension)")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	path := args[0]
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = sessionName(path)
	}

	f, err := history.ReadFile(path)
	if err != nil {
		exitErr("read history", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	abs, _ := filepath.Abs(path)
	sess, err := s.Import(cmd.Context(), store.ImportParams{
		Name:       name,
		SourcePath: abs,
		File:       f,
	})
	if err != nil {
		exitErr("import", err)
	}

	printJSON(sess)
}

func sessionName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
