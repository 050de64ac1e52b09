package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/semantic"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the semantic index from the database",
		Run:   runReindex,
	}

	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	a := openApp()
	defer a.Close()

	stats, err := reindexAll(cmd.Context(), a)
	if err != nil {
		exitErr("reindex", err)
	}
	printJSON(stats)
}

func reindexAll(ctx context.Context, a *app) (semantic.ReindexStats, error) {
	snap, err := a.store.Export(ctx)
	if err != nil {
		return semantic.ReindexStats{}, err
	}
	sessions := make([]model.Session, 0, len(snap.Sessions))
	for _, s := range snap.Sessions {
		sessions = append(sessions, s.Session)
	}
	return a.semantic.Reindex(ctx, sessions, snap.Memories)
}
