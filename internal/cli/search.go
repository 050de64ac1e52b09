package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Full-text search over messages and memories",
		Long:  "Search message content and active memories. Terms are matched individually and ranked by relevance.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().String("source", "all", "Restrict to message, memory or all")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	source, _ := cmd.Flags().GetString("source")
	query := strings.Join(args, " ")

	s, err := openStore(loadConfig())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	var results []model.SearchResult
	switch model.Source(source) {
	case model.SourceMessage:
		results, err = s.SearchMessages(cmd.Context(), query, limit)
	case model.SourceMemory:
		results, err = s.SearchMemories(cmd.Context(), query, limit)
	case "all":
		results, err = s.Search(cmd.Context(), query, limit)
	default:
		exitErr("search", fmt.Errorf("unknown source %q", source))
	}
	if err != nil {
		exitErr("search", err)
	}
	printJSON(results)
}
