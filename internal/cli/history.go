package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jython1415/mathnasium-session-notes/internal/history"
	"github.com/Jython1415/mathnasium-session-notes/internal/output"
)

var (
	flagHistorySuite  string
	flagHistoryFailed bool
	flagHistoryLimit  int
	flagHistoryKeep   int
)

func init() {
	historyListCmd.Flags().StringVar(&flagHistorySuite, "suite", "", "only runs of this suite (smoke, e2e, validate)")
	historyListCmd.Flags().BoolVar(&flagHistoryFailed, "failed", false, "only failed runs")
	historyListCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 20, "maximum runs to list (0 = all)")
	historyStatsCmd.Flags().StringVar(&flagHistorySuite, "suite", "", "only checks of this suite")
	historyPruneCmd.Flags().IntVar(&flagHistoryKeep, "keep", 100, "number of newest runs to keep")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyStatsCmd, historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded runs",
}

func openHistory(cmd *cobra.Command) (*history.DB, error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, err
	}
	path := historyPath(cfg)
	if path == "" {
		return nil, fmt.Errorf("run history is disabled (history.enabled = false)")
	}
	return history.Open(path)
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.List(cmd.Context(), history.ListOptions{
			Suite:      flagHistorySuite,
			FailedOnly: flagHistoryFailed,
			Limit:      flagHistoryLimit,
		})
		if err != nil {
			return err
		}
		if output.IsJSON() {
			if runs == nil {
				runs = []*history.Run{}
			}
			return output.WriteJSON(cmd.OutOrStdout(), runs, true)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		rows := make([][]string, len(runs))
		for i, r := range runs {
			status := "PASS"
			if !r.Passed {
				status = "FAIL"
			}
			rows[i] = []string{
				shortID(r.ID),
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Suite,
				status,
				fmt.Sprintf("%d/%d", r.Total-r.Failed, r.Total),
				r.Duration().Round(100 * time.Millisecond).String(),
			}
		}
		output.Table(cmd.OutOrStdout(), []string{"RUN", "STARTED", "SUITE", "STATUS", "PASSED", "DURATION"}, rows)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run (a unique id prefix is enough)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		rep, err := run.Report()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if output.IsJSON() {
			return output.WriteJSON(w, rep, true)
		}

		fmt.Fprintf(w, "Run:      %s\n", rep.RunID)
		fmt.Fprintf(w, "Suite:    %s\n", rep.Suite)
		fmt.Fprintf(w, "Target:   %s\n", rep.Target)
		if rep.Engine != "" {
			fmt.Fprintf(w, "Engine:   %s\n", rep.Engine)
		}
		fmt.Fprintf(w, "Started:  %s\n", rep.StartedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Duration: %s\n", rep.Duration())
		fmt.Fprintf(w, "Result:   %d/%d passed\n\n", rep.Total-rep.Failed, rep.Total)

		rows := make([][]string, len(rep.Checks))
		for i, c := range rep.Checks {
			status := "PASS"
			switch {
			case c.Skipped:
				status = "SKIP"
			case !c.Passed:
				status = "FAIL"
			}
			rows[i] = []string{c.Name, status, c.Kind, c.Message}
		}
		output.Table(w, []string{"CHECK", "STATUS", "KIND", "MESSAGE"}, rows)

		if v := rep.Validation; v != nil && !v.Skipped {
			fmt.Fprintf(w, "\nOracle (%s): %d/%d cases passed, %d missing, %d unjudged\n",
				v.Extractor, v.Total-v.Failed, v.Total, v.Missing, v.Unjudged)
		}
		if len(rep.Artifacts) > 0 {
			fmt.Fprintf(w, "\nArtifacts: %s\n", strings.Join(rep.Artifacts, ", "))
		}
		if rep.Error != "" {
			fmt.Fprintf(w, "\nError: %s\n", rep.Error)
		}
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Failure rate per check across recorded runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(cmd.Context(), flagHistorySuite)
		if err != nil {
			return err
		}
		if output.IsJSON() {
			if stats == nil {
				stats = []history.CheckStats{}
			}
			return output.WriteJSON(cmd.OutOrStdout(), stats, true)
		}
		rows := make([][]string, len(stats))
		for i, s := range stats {
			rows[i] = []string{
				s.Name,
				fmt.Sprint(s.Runs),
				fmt.Sprint(s.Failures),
				fmt.Sprintf("%.0f%%", s.FailureRate*100),
				s.LastKind,
				fmt.Sprintf("%.0fms", s.AvgMS),
			}
		}
		output.Table(cmd.OutOrStdout(), []string{"CHECK", "RUNS", "FAILURES", "RATE", "LAST KIND", "AVG"}, rows)
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Prune(cmd.Context(), flagHistoryKeep)
		if err != nil {
			return err
		}
		if output.IsJSON() {
			return output.WriteJSON(cmd.OutOrStdout(), map[string]any{"deleted": n, "kept": flagHistoryKeep}, true)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d runs.\n", n)
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
