// Package cli implements the opshistory CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rcliao/opshistory/internal/config"
	"github.com/rcliao/opshistory/internal/store"
)

var (
	dbPath     string
	configPath string
	formatFlag string

	appConfig = config.Default()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "opshistory",
	Short: "Undo/redo operation histories",
	Long:  "Record, inspect and archive undo/redo operation histories. SQLite-backed archive, single binary.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Archive path (default: $OPSHISTORY_DB or ~/.opshistory/archive.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file, YAML or JSON (default: $OPSHISTORY_CONFIG or ~/.opshistory/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func loadConfig() {
	path := configPath
	if path == "" {
		path = os.Getenv("OPSHISTORY_CONFIG")
	}
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".opshistory", "config.yaml")
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		exitErr("load config", err)
	}
	logger, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		exitErr("logger", err)
	}
	slog.SetDefault(logger)
	cfg.History.Logger = logger
	appConfig = cfg
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if appConfig.Archive.DBPath != "" {
		return appConfig.Archive.DBPath
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".opshistory", "archive.db")
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath())
}

func textOutput() bool {
	return formatFlag == "text"
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
