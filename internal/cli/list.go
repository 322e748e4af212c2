package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/opshistory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived sessions",
		Run:   runList,
	}

	cmd.Flags().String("codec", "", "Filter by snapshot codec")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("names-only", false, "Only output session names")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	codecName, _ := cmd.Flags().GetString("codec")
	limit, _ := cmd.Flags().GetInt("limit")
	namesOnly, _ := cmd.Flags().GetBool("names-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sessions, err := s.List(cmd.Context(), store.ListParams{
		Codec: codecName,
		Limit: limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	if namesOnly {
		for _, m := range sessions {
			fmt.Println(m.Name)
		}
		return
	}
	if textOutput() {
		for _, m := range sessions {
			fmt.Printf("%s\tv%d\t%s\tundo=%d redo=%d\t%.3f MB\n",
				m.Name, m.Version, m.Codec, m.UndoCount, m.RedoCount, m.MemoryMB)
		}
		return
	}

	printJSON(sessions)
}
