// Package smoke runs independent availability probes against the deployed
// reviewer. Every probe runs, each in its own browser session, and failures
// are aggregated into one summary.
package smoke

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
	"github.com/Jython1415/mathnasium-session-notes/internal/failure"
	"github.com/Jython1415/mathnasium-session-notes/internal/logging"
	"github.com/Jython1415/mathnasium-session-notes/internal/output"
)

// Result is the outcome of one probe.
type Result struct {
	Probe       string
	Description string
	Passed      bool
	Kind        failure.Kind
	Message     string
	Duration    time.Duration
}

// Summary aggregates every probe result of a run.
type Summary struct {
	Results    []Result
	StartedAt  time.Time
	FinishedAt time.Time
}

// Total returns the number of probes run.
func (s *Summary) Total() int { return len(s.Results) }

// PassedCount returns the number of passing probes.
func (s *Summary) PassedCount() int {
	n := 0
	for _, r := range s.Results {
		if r.Passed {
			n++
		}
	}
	return n
}

// Failures returns the failing probe results.
func (s *Summary) Failures() []Result {
	var out []Result
	for _, r := range s.Results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// Passed reports whether every probe passed.
func (s *Summary) Passed() bool {
	return len(s.Failures()) == 0
}

// Line returns "X/N passed".
func (s *Summary) Line() string {
	return fmt.Sprintf("%d/%d passed", s.PassedCount(), s.Total())
}

// ExitCode is 0 when every probe passed, 1 otherwise.
func (s *Summary) ExitCode() int {
	if s.Passed() {
		return 0
	}
	return 1
}

// Report converts the summary into a machine-readable report.
func (s *Summary) Report(runID, target, engine string) *output.Report {
	r := &output.Report{
		RunID:      runID,
		Suite:      "smoke",
		Target:     target,
		Engine:     engine,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Passed:     s.Passed(),
		Total:      s.Total(),
		Failed:     len(s.Failures()),
	}
	for _, res := range s.Results {
		r.Checks = append(r.Checks, output.Check{
			Name:       res.Probe,
			Passed:     res.Passed,
			Kind:       string(res.Kind),
			Message:    res.Message,
			DurationMS: float64(res.Duration.Microseconds()) / 1000,
		})
	}
	return r
}

// Runner executes probes sequentially.
type Runner struct {
	Driver  browser.Driver
	Target  Target
	Probes  []Probe
	Printer *output.Printer
	Logger  *log.Logger
}

// Run executes every probe and returns the aggregated summary. It never
// stops early; a cancelled ctx fails the remaining probes.
func (r *Runner) Run(ctx context.Context) *Summary {
	p := r.Printer
	if p == nil {
		p = output.Discard()
	}
	logger := r.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	probes := r.Probes
	if probes == nil {
		probes = DefaultProbes()
	}

	sum := &Summary{StartedAt: time.Now()}
	p.Header("Session Notes Reviewer - Smoke Tests")
	for i, probe := range probes {
		p.Step("Test", i+1, "%s...", probe.Description)
		res := r.runProbe(ctx, probe, logger)
		if res.Passed {
			p.Pass("%s", res.Message)
		} else {
			p.Fail("FAILED: %s", res.Message)
		}
		logger.Debug("probe finished", "probe", probe.Name, "passed", res.Passed, "kind", res.Kind, "duration", res.Duration)
		sum.Results = append(sum.Results, res)
	}
	sum.FinishedAt = time.Now()

	p.Blank()
	if failed := sum.Failures(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = f.Probe
		}
		p.Verdict(false, "%d/%d tests FAILED", len(failed), sum.Total())
		p.Line("Failed tests: %s", strings.Join(names, ", "))
	} else {
		p.Verdict(true, "All %d tests PASSED", sum.Total())
	}
	p.Line("%s", sum.Line())
	p.Elapsed()
	return sum
}

// runProbe runs one probe in a fresh session. The session is closed on every
// path and a panic becomes an internal failure.
func (r *Runner) runProbe(ctx context.Context, probe Probe, logger *log.Logger) (res Result) {
	start := time.Now()
	res = Result{Probe: probe.Name, Description: probe.Description}
	defer func() {
		if rec := recover(); rec != nil {
			res.Passed = false
			res.Kind = failure.KindInternal
			res.Message = fmt.Sprintf("panic: %v", rec)
		}
		res.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		res.Kind = failure.KindInternal
		res.Message = err.Error()
		return res
	}

	session, err := r.Driver.Launch(ctx)
	if err != nil {
		res.Kind = failure.KindInternal
		res.Message = fmt.Sprintf("launching browser: %v", err)
		return res
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("closing browser session", "probe", probe.Name, "error", cerr)
		}
	}()

	msg, err := probe.Run(ctx, session, r.Target)
	if err != nil {
		res.Kind = failure.Classify(err)
		res.Message = err.Error()
		return res
	}
	res.Passed = true
	res.Message = msg
	return res
}
