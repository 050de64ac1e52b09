package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/store"
)

func init() {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions, newest first",
		Run:   runSessions,
	}
	sessionsCmd.Flags().IntP("limit", "l", 20, "Max sessions")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session with its messages",
		Args:  cobra.ExactArgs(1),
		Run:   runShow,
	}

	gcCmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete sessions that have no messages",
		Run:   runGC,
	}

	RootCmd.AddCommand(sessionsCmd, showCmd, gcCmd)
}

func runSessions(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore(loadConfig())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sessions, err := s.ListSessions(cmd.Context(), limit)
	if err != nil {
		exitErr("list sessions", err)
	}
	printJSON(sessions)
}

func runShow(cmd *cobra.Command, args []string) {
	s, err := openStore(loadConfig())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sess, err := s.GetSession(cmd.Context(), args[0])
	if err != nil {
		exitErr("get session", err)
	}
	msgs, err := s.GetMessages(cmd.Context(), sess.ID)
	if err != nil {
		exitErr("get messages", err)
	}
	printJSON(store.SessionExport{Session: *sess, Messages: msgs})
}

func runGC(cmd *cobra.Command, args []string) {
	s, err := openStore(loadConfig())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	n, err := s.DeleteEmptySessions(cmd.Context(), "")
	if err != nil {
		exitErr("gc", err)
	}
	printJSON(map[string]int{"deleted": n})
}
