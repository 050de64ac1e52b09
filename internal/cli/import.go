package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/legacy"
	"github.com/rcliao/recall/internal/logger"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import legacy conversation logs and a memory document",
		Long: "Import one JSONL file per session from --logs and bullet-point facts from --memory. " +
			"Sessions that already exist and facts already remembered are skipped, so re-running is safe.",
		Run: runImport,
	}

	cmd.Flags().String("logs", "", "Directory of *.jsonl session logs")
	cmd.Flags().String("memory", "", "Markdown memory document")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	logsDir, _ := cmd.Flags().GetString("logs")
	memoryPath, _ := cmd.Flags().GetString("memory")
	if logsDir == "" && memoryPath == "" {
		exitErr("import", fmt.Errorf("nothing to import: pass --logs and/or --memory"))
	}

	a := openApp()
	defer a.Close()

	report, err := legacy.NewImporter(a.store, a.memory, a.log).Import(cmd.Context(), logsDir, memoryPath)
	printJSON(report)

	if a.semantic.Enabled() && (report.SessionsImported > 0 || report.FactsImported > 0) {
		if _, rerr := reindexAll(cmd.Context(), a); rerr != nil {
			a.log.Warn("reindex after import failed", logger.ErrorField(rerr))
		}
	}
	if err != nil {
		a.Close()
		fmt.Fprintf(os.Stderr, "error: import finished with %d error(s)\n", len(report.Errors))
		os.Exit(1)
	}
}
