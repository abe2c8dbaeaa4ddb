package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	historyRun   int64
	historyLimit int
	historyPrune int
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show previous mirrorlist generations",
		Long: `List recorded generate runs, newest first, or show the ranked mirrors of
a single run with --run. History is only kept when server.db_path (or --db)
is set.`,
		Example: `  mirrorrank history --db ~/.local/share/mirrorrank/history.db
  mirrorrank history --run 12
  mirrorrank history --prune 50`,
		RunE: historyRunE,
	}

	cmd.Flags().Int64Var(&historyRun, "run", 0, "show the mirrors of this run")
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list (0 for all)")
	cmd.Flags().IntVar(&historyPrune, "prune", -1, "delete all but the newest N runs")

	return cmd
}

func historyRunE(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("history is disabled; set server.db_path or pass --db")
	}

	if historyPrune >= 0 {
		removed, err := globalStore.PruneRuns(historyPrune)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d run(s)\n", removed)
		return nil
	}

	if historyRun > 0 {
		return printRunMirrors(historyRun)
	}

	runs, err := globalStore.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-6s %-16s %10s %9s  %s\n", "ID", "When", "Candidates", "Selected", "Output")
	fmt.Println(strings.Repeat("-", 70))
	for _, run := range runs {
		output := run.OutputPath
		if output == "" {
			output = "stdout"
		}
		fmt.Printf("%-6d %-16s %10d %9d  %s\n",
			run.ID,
			humanize.Time(run.CreatedAt),
			run.Candidates,
			run.Selected,
			output,
		)
	}

	return nil
}

func printRunMirrors(id int64) error {
	run, err := globalStore.GetRun(id)
	if err != nil {
		return err
	}
	mirrors, err := globalStore.ListRunMirrors(id)
	if err != nil {
		return err
	}

	fmt.Printf("Run %d (%s, %s)\n", run.ID, run.CreatedAt.Local().Format("2006-01-02 15:04"), humanize.Time(run.CreatedAt))
	fmt.Printf("Criteria: %s\n", run.Criteria)
	fmt.Printf("Selected %s of %s candidates\n\n", humanize.Comma(int64(run.Selected)), humanize.Comma(int64(run.Candidates)))

	fmt.Printf("%4s  %-55s %-8s %4s %8s %8s\n", "#", "Mirror", "Protocol", "CC", "Score", "Delay")
	fmt.Println(strings.Repeat("-", 94))
	for _, m := range mirrors {
		fmt.Printf("%4d  %-55s %-8s %4s %8.3f %7ds\n", m.Position, m.URL, m.Protocol, m.CountryCode, m.Score, m.Delay)
	}

	return nil
}
