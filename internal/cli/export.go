package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/opshistory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an archived session as a history file",
		Long:  "Rebuild the history file of an archived session. Writes to stdout unless -o is given.",
		Run:   runExport,
	}

	cmd.Flags().StringP("name", "n", "", "Session name (required)")
	cmd.Flags().IntP("version", "v", 0, "Specific version number")
	cmd.Flags().StringP("out", "o", "", "Output file")

	cmd.MarkFlagRequired("name")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	name, _ := cmd.Flags().GetString("name")
	version, _ := cmd.Flags().GetInt("version")
	out, _ := cmd.Flags().GetString("out")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sessions, err := s.Get(cmd.Context(), store.GetParams{Name: name, Version: version})
	if err != nil {
		exitErr("export", err)
	}

	f, err := s.Export(cmd.Context(), sessions[0].ID)
	if err != nil {
		exitErr("export", err)
	}

	b, _ := json.MarshalIndent(f, "", "  ")
	if out == "" {
		fmt.Println(string(b))
		return
	}
	if err := os.WriteFile(out, b, 0o644); err != nil {
		exitErr("write", err)
	}
	fmt.Printf(`{"ok":true,"name":%q,"version":%d,"path":%q,"operations":%d}`+"\n",
		name, sessions[0].Version, out, f.Count())
}
