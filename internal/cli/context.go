package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [message]",
		Short: "Print the system prompt a conversation would start with",
		Long: "Assemble the system prompt from the profile, capabilities, memories and past sessions. " +
			"With a message and a configured semantic index, memories and sessions are picked by relevance.",
		Run: runContext,
	}

	cmd.Flags().IntP("recent", "r", 0, "Number of past sessions (default: context.recent_sessions)")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	recent, _ := cmd.Flags().GetInt("recent")
	message := strings.Join(args, " ")

	a := openApp()
	defer a.Close()

	if recent <= 0 {
		recent = a.cfg.Context.RecentSessions
	}

	text, err := a.assembler().Build(cmd.Context(), message, recent)
	if err != nil {
		exitErr("assemble context", err)
	}
	fmt.Println(text)
}
