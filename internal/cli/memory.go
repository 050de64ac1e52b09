package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and edit remembered facts",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List active memories",
		Run:   runMemoryList,
	}
	listCmd.Flags().BoolP("all", "a", false, "Include superseded memories")

	addCmd := &cobra.Command{
		Use:   "add <fact>",
		Short: "Remember a fact",
		Args:  cobra.MinimumNArgs(1),
		Run:   runMemoryAdd,
	}
	addCmd.Flags().String("category", "general", "Category label")

	supersedeCmd := &cobra.Command{
		Use:   "supersede <old-id> <fact>",
		Short: "Replace a memory with a corrected fact",
		Args:  cobra.MinimumNArgs(2),
		Run:   runMemorySupersede,
	}

	historyCmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show a memory and everything that replaced it",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryHistory,
	}

	memoryCmd.AddCommand(listCmd, addCmd, supersedeCmd, historyCmd)
	RootCmd.AddCommand(memoryCmd)
}

func runMemoryList(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")

	s, err := openStore(loadConfig())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mems, err := s.ListMemories(cmd.Context(), all)
	if err != nil {
		exitErr("list memories", err)
	}
	printJSON(mems)
}

func runMemoryAdd(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	fact := strings.TrimSpace(strings.Join(args, " "))

	a := openApp()
	defer a.Close()

	id, created, err := a.memory.Add(cmd.Context(), fact, category, "")
	if err != nil {
		exitErr("add memory", err)
	}
	printJSON(map[string]any{"id": id, "fact": fact, "created": created})
}

func runMemorySupersede(cmd *cobra.Command, args []string) {
	oldID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		exitErr("parse id", err)
	}
	fact := strings.TrimSpace(strings.Join(args[1:], " "))

	a := openApp()
	defer a.Close()

	newID, err := a.memory.Supersede(cmd.Context(), oldID, fact)
	if err != nil {
		exitErr("supersede memory", err)
	}
	printJSON(map[string]any{"superseded": oldID, "id": newID, "fact": fact})
}

func runMemoryHistory(cmd *cobra.Command, args []string) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		exitErr("parse id", err)
	}

	s, err := openStore(loadConfig())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	chain, err := s.MemoryHistory(cmd.Context(), id)
	if err != nil {
		exitErr("memory history", err)
	}
	printJSON(chain)
}
