package cli

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
	"github.com/Jython1415/mathnasium-session-notes/internal/e2e"
	"github.com/Jython1415/mathnasium-session-notes/internal/extract"
	"github.com/Jython1415/mathnasium-session-notes/internal/history"
	"github.com/Jython1415/mathnasium-session-notes/internal/oracle"
)

var (
	flagE2EInput      string
	flagE2EOracle     string
	flagE2EExtractor  string
	flagE2EObserved   string
	flagE2EExact      bool
	flagE2ECompletion int
)

func init() {
	e2eCmd.Flags().StringVarP(&flagE2EInput, "input", "i", "", "workbook to upload")
	e2eCmd.Flags().StringVar(&flagE2EOracle, "oracle", "", "case oracle YAML (default: built-in)")
	e2eCmd.Flags().StringVarP(&flagE2EExtractor, "extractor", "x", "", "results extractor (none, dom, script, file)")
	e2eCmd.Flags().StringVar(&flagE2EObserved, "observed", "", "results file read by the file extractor")
	e2eCmd.Flags().BoolVar(&flagE2EExact, "exact", false, "require the exact expected category for positive cases")
	e2eCmd.Flags().IntVar(&flagE2ECompletion, "completion-timeout", 0, "seconds to wait for processing to finish")

	rootCmd.AddCommand(e2eCmd)
}

var e2eCmd = &cobra.Command{
	Use:   "e2e",
	Short: "Upload the sample workbook and validate the review",
	Long: `Run the full end-to-end scenario in one browser session:

  1. check the input workbook exists
  2. open the app and upload the workbook
  3. click "Review Session Notes" and wait for the results
  4. save results.html and results.png
  5. extract per-row results and check them against the case oracle

Any stage failure stops the run, saves timeout.png or error.png and exits 1.
With the "none" extractor the oracle check is skipped and manual steps are
printed instead.

Examples:
  notescheck e2e
  notescheck e2e --extractor dom --exact
  notescheck e2e --input ./fixtures/report.xlsx --completion-timeout 300`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o := overrides{}
		o.setString(cmd, "input", "e2e.input_file", flagE2EInput)
		o.setString(cmd, "oracle", "e2e.oracle_file", flagE2EOracle)
		o.setString(cmd, "extractor", "e2e.extractor", flagE2EExtractor)
		o.setString(cmd, "observed", "e2e.observed_file", flagE2EObserved)
		o.setBool(cmd, "exact", "e2e.exact_category", flagE2EExact)
		o.setInt(cmd, "completion-timeout", "timeouts.completion", flagE2ECompletion)

		e, err := setup(cmd, o)
		if err != nil {
			return err
		}
		defer e.Close()
		cfg := e.cfg

		cases, err := oracle.LoadFile(cfg.E2E.OracleFile)
		if err != nil {
			return err
		}
		ex, err := extract.New(cfg.E2E.Extractor, extract.Options{
			DOMSelector: cfg.Extract.DOMSelector,
			Script:      cfg.Extract.Script,
			File:        cfg.E2E.ObservedFile,
		})
		if err != nil {
			return err
		}
		completion, err := regexp.Compile(cfg.Selectors.CompletionPattern)
		if err != nil {
			return fmt.Errorf("completion pattern: %w", err)
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

		runner := &e2e.Runner{
			Driver: drv,
			Config: e2e.Config{
				URL:               cfg.Target.URL,
				InputFile:         cfg.E2E.InputFile,
				ResultsDir:        cfg.Results.Dir,
				FileInput:         browser.CSS(cfg.Selectors.FileInput),
				ReviewButton:      browser.WithText(cfg.Selectors.ReviewButton, cfg.Selectors.ReviewButtonText),
				Completion:        completion,
				NavigationTimeout: cfg.Timeouts.Navigation(),
				CompletionTimeout: cfg.Timeouts.Completion(),
				ConsoleMarkers:    cfg.Console.Markers,
				ConsoleBuffer:     cfg.Console.Buffer,
			},
			Oracle:    cases,
			Extractor: ex,
			Options:   oracle.Options{ExactCategory: cfg.E2E.ExactCategory},
			Printer:   e.printer,
			Logger:    e.logger,
		}
		e.logger.Info("e2e run starting", "url", cfg.Target.URL, "input", cfg.E2E.InputFile, "extractor", ex.Name())
		out := runner.Run(cmd.Context())

		rep := out.Report(history.NewRunID(), cfg.Target.URL, drv.Name(), cases.Len())
		if err := e.finish(cmd.Context(), rep); err != nil {
			return err
		}
		return exitFor(out.ExitCode())
	},
}
