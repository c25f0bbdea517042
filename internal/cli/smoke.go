package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
	"github.com/Jython1415/mathnasium-session-notes/internal/history"
	"github.com/Jython1415/mathnasium-session-notes/internal/output"
	"github.com/Jython1415/mathnasium-session-notes/internal/smoke"
)

var (
	flagSmokeProbes []string
	flagSmokeList   bool
)

func init() {
	smokeCmd.Flags().StringSliceVarP(&flagSmokeProbes, "probe", "p", nil, "run only the named probes (repeatable)")
	smokeCmd.Flags().BoolVar(&flagSmokeList, "list", false, "list the probes and exit")

	rootCmd.AddCommand(smokeCmd)
}

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Run the availability probes",
	Long: `Run each smoke probe in its own browser session.

Every probe runs even when an earlier one fails. The final line is the
"X/N passed" tally; the exit status is 1 if any probe failed.

Examples:
  notescheck smoke
  notescheck smoke --probe site_loads --probe file_input
  notescheck smoke --url http://localhost:5173/ --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		probes, err := smoke.Select(smoke.DefaultProbes(), flagSmokeProbes)
		if err != nil {
			return err
		}
		if flagSmokeList {
			return listProbes(cmd, probes)
		}

		e, err := setup(cmd, nil)
		if err != nil {
			return err
		}
		defer e.Close()

		wait, err := browser.ParseWaitPolicy(e.cfg.Browser.SmokeWait)
		if err != nil {
			return err
		}
		drv, err := e.driver()
		if err != nil {
			return err
		}
		defer func() {
			if err := drv.Close(); err != nil {
				e.logger.Warn("closing browser driver", "error", err)
			}
		}()

		runner := &smoke.Runner{
			Driver: drv,
			Target: smoke.Target{
				URL:               e.cfg.Target.URL,
				Title:             e.cfg.Target.Title,
				Markers:           e.cfg.Target.Markers,
				FileInput:         browser.CSS(e.cfg.Selectors.FileInput),
				Wait:              wait,
				NavigationTimeout: e.cfg.Timeouts.Navigation(),
				SelectorTimeout:   e.cfg.Timeouts.Selector(),
			},
			Probes:  probes,
			Printer: e.printer,
			Logger:  e.logger,
		}
		e.logger.Info("smoke run starting", "url", e.cfg.Target.URL, "probes", len(probes))
		sum := runner.Run(cmd.Context())

		rep := sum.Report(history.NewRunID(), e.cfg.Target.URL, drv.Name())
		if err := e.finish(cmd.Context(), rep); err != nil {
			return err
		}
		return exitFor(sum.ExitCode())
	},
}

func listProbes(cmd *cobra.Command, probes []smoke.Probe) error {
	if output.IsJSON() {
		type probe struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		list := make([]probe, len(probes))
		for i, p := range probes {
			list[i] = probe{Name: p.Name, Description: p.Description}
		}
		return output.WriteJSON(cmd.OutOrStdout(), list, true)
	}
	rows := make([][]string, len(probes))
	for i, p := range probes {
		rows[i] = []string{fmt.Sprint(i + 1), p.Name, p.Description}
	}
	output.Table(cmd.OutOrStdout(), []string{"#", "PROBE", "DESCRIPTION"}, rows)
	return nil
}
