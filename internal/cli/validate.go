package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jython1415/mathnasium-session-notes/internal/extract"
	"github.com/Jython1415/mathnasium-session-notes/internal/failure"
	"github.com/Jython1415/mathnasium-session-notes/internal/history"
	"github.com/Jython1415/mathnasium-session-notes/internal/oracle"
	"github.com/Jython1415/mathnasium-session-notes/internal/output"
)

var (
	flagValidateOracle string
	flagValidateExact  bool
)

func init() {
	validateCmd.Flags().StringVar(&flagValidateOracle, "oracle", "", "case oracle YAML (default: built-in)")
	validateCmd.Flags().BoolVar(&flagValidateExact, "exact", false, "require the exact expected category for positive cases")

	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate <results-file>",
	Short: "Check exported review results against the case oracle",
	Long: `Validate observed results without a browser.

The results file is JSON, YAML or XLSX with one record per reviewed row:
row, category and confidence. Every oracle entry is evaluated and every
failure is listed; the exit status is 1 if any entry failed.

Examples:
  notescheck validate results.json
  notescheck validate export.xlsx --oracle cases.yaml --exact`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o := overrides{}
		o.setString(cmd, "oracle", "e2e.oracle_file", flagValidateOracle)
		o.setBool(cmd, "exact", "e2e.exact_category", flagValidateExact)

		e, err := setup(cmd, o)
		if err != nil {
			return err
		}
		defer e.Close()

		started := time.Now()
		cases, err := oracle.LoadFile(e.cfg.E2E.OracleFile)
		if err != nil {
			return err
		}
		observed, err := extract.ReadFile(args[0])
		if err != nil {
			return err
		}

		p := e.printer
		p.Header("Session Notes Reviewer - Case Oracle Validation")
		p.Line("Results: %s (%d rows)", args[0], len(observed))
		p.Line("Oracle: %d positive, %d negative cases", len(cases.Positive()), len(cases.Negative()))
		p.Blank()

		report := oracle.Validate(cases, observed, oracle.Options{ExactCategory: e.cfg.E2E.ExactCategory})
		for _, v := range report.Verdicts {
			if v.Passed {
				p.Pass("%s", v)
			} else {
				p.Fail("%s", v)
			}
		}
		if report.Unjudged > 0 {
			p.Info("%d observed rows are not in the oracle", report.Unjudged)
		}
		p.Blank()
		p.Verdict(report.Passed, "%s", report.Summary())

		rep := validationReport(args[0], report, started)
		if err := e.finish(cmd.Context(), rep); err != nil {
			return err
		}
		if !report.Passed {
			return exitFor(1)
		}
		return nil
	},
}

func validationReport(source string, r oracle.Report, started time.Time) *output.Report {
	rep := &output.Report{
		RunID:      history.NewRunID(),
		Suite:      "validate",
		Target:     source,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Passed:     r.Passed,
		Total:      len(r.Verdicts),
		Failed:     r.FailedCount,
		Validation: output.FromOracle(extract.KindFile, r),
	}
	for _, v := range r.Verdicts {
		c := output.Check{
			Name:   fmt.Sprintf("row_%d", v.Entry.RowID),
			Passed: v.Passed,
		}
		if !v.Passed {
			c.Kind = string(failure.KindValidation)
			c.Message = string(v.Reason)
		}
		rep.Checks = append(rep.Checks, c)
	}
	return rep
}
