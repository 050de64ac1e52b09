// Package cli implements the recall CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/config"
	"github.com/rcliao/recall/internal/logger"
	"github.com/rcliao/recall/internal/store"
)

var (
	configPath string
	dbPath     string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "recall",
	Short: "A personal assistant that remembers you",
	Long:  "A terminal assistant with long-term memory. Conversations, facts and summaries live in a local SQLite file.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.recall/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $RECALL_DB or <data_dir>/recall.db)")
}

func loadConfig() *config.App {
	cfg, err := config.LoadApp(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg
}

func newLogger(cfg *config.App) logger.Logger {
	return logger.New(logger.Config{
		Level:     logger.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: "recall",
	})
}

func openStore(cfg *config.App) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.DBPath)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
