// Package e2e runs the full reviewer scenario: upload the sample workbook,
// trigger processing, wait for results and check them against the Case
// Oracle. The pipeline is an explicit state machine; every stage except
// validation stops the run on its first failure.
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
	"github.com/Jython1415/mathnasium-session-notes/internal/extract"
	"github.com/Jython1415/mathnasium-session-notes/internal/failure"
	"github.com/Jython1415/mathnasium-session-notes/internal/logging"
	"github.com/Jython1415/mathnasium-session-notes/internal/oracle"
	"github.com/Jython1415/mathnasium-session-notes/internal/output"
)

// Artifact file names written to the results directory.
const (
	TimeoutScreenshot = "timeout.png"
	ErrorScreenshot   = "error.png"
	ResultsScreenshot = "results.png"
	ResultsHTML       = "results.html"
)

// Config is the scenario definition.
type Config struct {
	URL        string
	InputFile  string
	ResultsDir string

	FileInput    browser.Selector
	ReviewButton browser.Selector
	Completion   *regexp.Regexp

	NavigationTimeout time.Duration
	CompletionTimeout time.Duration

	ConsoleMarkers []string
	ConsoleBuffer  int
}

// StageResult records one completed or failed stage.
type StageResult struct {
	Stage    State
	Passed   bool
	Skipped  bool
	Message  string
	Duration time.Duration
}

// Outcome is the result of one scenario run.
type Outcome struct {
	State      State
	Stages     []StageResult
	Err        *StageError
	FileSize   int64
	Validation *oracle.Report
	// ValidationSkipped is set when no extractor is configured.
	ValidationSkipped bool
	Extractor         string
	Artifacts         []string
	ConsoleDropped    int64
	StartedAt         time.Time
	FinishedAt        time.Time
}

// Passed reports whether the scenario ended in Passed.
func (o *Outcome) Passed() bool { return o.State == Passed }

// ExitCode is 0 on success and 1 otherwise.
func (o *Outcome) ExitCode() int {
	if o.Passed() {
		return 0
	}
	return 1
}

// Report converts the outcome into a machine-readable report.
func (o *Outcome) Report(runID, target, engine string, cases int) *output.Report {
	r := &output.Report{
		RunID:      runID,
		Suite:      "e2e",
		Target:     target,
		Engine:     engine,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		Passed:     o.Passed(),
		Total:      len(o.Stages),
		Artifacts:  o.Artifacts,
	}
	for _, s := range o.Stages {
		c := output.Check{
			Name:       string(s.Stage),
			Passed:     s.Passed,
			Skipped:    s.Skipped,
			Message:    s.Message,
			DurationMS: float64(s.Duration.Microseconds()) / 1000,
		}
		if !s.Passed {
			r.Failed++
			if o.Err != nil && o.Err.Stage == s.Stage {
				c.Kind = string(o.Err.Kind)
			}
		}
		r.Checks = append(r.Checks, c)
	}
	switch {
	case o.ValidationSkipped:
		r.Validation = output.SkippedValidation(o.Extractor, cases)
	case o.Validation != nil:
		r.Validation = output.FromOracle(o.Extractor, *o.Validation)
	}
	if o.Err != nil {
		r.Error = o.Err.Error()
	}
	return r
}

// Runner executes the scenario.
type Runner struct {
	Driver    browser.Driver
	Config    Config
	Oracle    *oracle.Oracle
	Extractor extract.Extractor
	Options   oracle.Options
	Printer   *output.Printer
	Logger    *log.Logger
}

// run holds the state of one execution.
type run struct {
	*Runner
	ctx       context.Context
	m         *Machine
	out       *Outcome
	p         *output.Printer
	log       *log.Logger
	extractor extract.Extractor
	session   browser.Session
	input     string
	observed  []oracle.Observed
}

// Run executes the scenario once. It never retries.
func (r *Runner) Run(ctx context.Context) *Outcome {
	logger := r.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	p := r.Printer
	if p == nil {
		p = output.Discard()
	}
	ex := r.Extractor
	if ex == nil {
		ex = extract.None{}
	}

	x := &run{
		Runner:    r,
		ctx:       ctx,
		m:         NewMachine(),
		out:       &Outcome{State: NotStarted, StartedAt: time.Now(), Extractor: ex.Name()},
		p:         p,
		log:       logger,
		extractor: ex,
	}
	p.Header("Session Notes Reviewer - Full E2E Test")

	err := x.execute()
	if x.session != nil {
		if cerr := x.session.Close(); cerr != nil {
			logger.Warn("closing browser session", "error", cerr)
		}
	}
	x.finish(err)
	return x.out
}

// execute walks the pipeline. The forwarder is drained before returning so
// no console line is printed after the verdict.
func (x *run) execute() *StageError {
	if err := x.stage(FileValidated, x.validateFile); err != nil {
		return err
	}

	x.p.Blank()
	x.p.Line("Launching browser...")
	session, err := x.Driver.Launch(x.ctx)
	if err != nil {
		return x.fail(Navigated, stageError(Navigated, failure.KindInternal, fmt.Errorf("launching browser: %w", err)), 0)
	}
	x.session = session

	fwd := NewForwarder(x.Config.ConsoleMarkers, x.Config.ConsoleBuffer, x.p.Console)
	session.OnConsole(fwd.Observe)
	defer func() {
		if dropped := fwd.Close(); dropped > 0 {
			x.out.ConsoleDropped = dropped
			x.log.Warn("console messages dropped", "count", dropped)
		}
	}()

	steps := []struct {
		state State
		title string
		fn    func() (string, error)
	}{
		{Navigated, "Navigating to production site...", x.navigate},
		{FileUploaded, "Uploading test file...", x.upload},
		{ProcessingTriggered, fmt.Sprintf("Clicking '%s' button...", buttonLabel(x.Config.ReviewButton)), x.trigger},
		{ProcessingComplete, "Waiting for processing to complete...", x.awaitCompletion},
		{ResultsExtracted, "Extracting results...", x.extractResults},
		{Validated, "Validating test cases...", x.validate},
	}
	for i, s := range steps {
		x.p.Blank()
		x.p.Step("Step", i+1, "%s", s.title)
		if err := x.stage(s.state, s.fn); err != nil {
			return err
		}
	}
	return nil
}

// stage runs fn and advances the machine to state on success.
func (x *run) stage(state State, fn func() (string, error)) *StageError {
	start := time.Now()
	if err := x.ctx.Err(); err != nil {
		return x.fail(state, stageError(state, failure.KindInternal, err), time.Since(start))
	}

	msg, err := fn()
	if err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			se = stageError(state, "", err)
		}
		return x.fail(state, se, time.Since(start))
	}
	if err := x.m.Advance(state); err != nil {
		return x.fail(state, stageError(state, failure.KindInternal, err), time.Since(start))
	}
	res := StageResult{Stage: state, Passed: true, Message: msg, Duration: time.Since(start)}
	if state == Validated && x.out.ValidationSkipped {
		res.Skipped = true
	}
	x.out.Stages = append(x.out.Stages, res)
	if msg != "" {
		x.p.Pass("%s", msg)
	}
	x.log.Debug("stage complete", "stage", state, "duration", res.Duration)
	return nil
}

func (x *run) fail(state State, se *StageError, took time.Duration) *StageError {
	x.capture(se)
	x.out.Stages = append(x.out.Stages, StageResult{Stage: state, Message: se.Err.Error(), Duration: took})
	x.log.Error("stage failed", "stage", state, "kind", se.Kind, "error", se.Err)
	return se
}

// finish moves the machine to its terminal state and prints the verdict.
func (x *run) finish(se *StageError) {
	out := x.out
	defer func() {
		out.State = x.m.State()
		out.FinishedAt = time.Now()
	}()
	defer x.p.Elapsed()

	x.p.Blank()
	if se == nil {
		if err := x.m.Advance(Passed); err != nil {
			se = stageError(x.m.State(), failure.KindInternal, err)
		}
	}
	if se != nil {
		out.Err = se
		_ = x.m.Advance(Failed)
		x.p.Verdict(false, "Test failed: %v", se.Err)
		for _, a := range out.Artifacts {
			x.p.Info("Screenshot saved: %s", a)
		}
		return
	}

	x.p.Verdict(true, "E2E TEST PASSED")
	if out.ValidationSkipped {
		x.p.Blank()
		x.p.Line("Next steps:")
		x.p.Line("1. Review screenshot: %s", filepath.Join(x.Config.ResultsDir, ResultsScreenshot))
		x.p.Line("2. Verify test cases against the case oracle (notescheck oracle)")
		x.p.Line("3. Check that %d positive cases were flagged", len(x.Oracle.Positive()))
		x.p.Line("4. Check that %d negative cases were NOT flagged", len(x.Oracle.Negative()))
	}
}

func buttonLabel(sel browser.Selector) string {
	if sel.Text != "" {
		return sel.Text
	}
	return sel.Query
}

// capture saves a diagnostic screenshot for a failed stage.
func (x *run) capture(se *StageError) {
	if x.session == nil || se.Kind == failure.KindValidation {
		return
	}
	name := ErrorScreenshot
	if se.Kind == failure.KindTimeout {
		name = TimeoutScreenshot
	}
	path := filepath.Join(x.Config.ResultsDir, name)
	// The run context may already be cancelled; the capture gets its own.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(x.ctx), 30*time.Second)
	defer cancel()
	if err := x.session.Screenshot(ctx, path); err != nil {
		x.log.Warn("diagnostic screenshot failed", "path", path, "error", err)
		return
	}
	x.out.Artifacts = append(x.out.Artifacts, path)
}

func (x *run) validateFile() (string, error) {
	abs, err := filepath.Abs(x.Config.InputFile)
	if err != nil {
		return "", stageError(FileValidated, failure.KindConfig, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", stageError(FileValidated, failure.KindConfig, fmt.Errorf("test file not found: %s", abs))
	}
	if !info.Mode().IsRegular() {
		return "", stageError(FileValidated, failure.KindConfig, fmt.Errorf("test file is not a regular file: %s", abs))
	}
	x.input = abs
	x.out.FileSize = info.Size()
	x.p.Pass("Test file found: %s", abs)
	x.p.Info("File size: %.1f KB", float64(info.Size())/1024)
	return "", nil
}

func (x *run) navigate() (string, error) {
	resp, err := x.session.Navigate(x.ctx, x.Config.URL, browser.WaitNetworkIdle, x.Config.NavigationTimeout)
	if err != nil {
		if browser.IsTimeout(err) {
			return "", stageError(Navigated, failure.KindTimeout, err)
		}
		return "", stageError(Navigated, failure.KindNavigation, err)
	}
	if resp.Status >= 400 {
		return "", stageError(Navigated, failure.KindNavigation,
			fmt.Errorf("navigating to %s: HTTP %d %s", x.Config.URL, resp.Status, resp.StatusText))
	}
	return "Page loaded", nil
}

func (x *run) upload() (string, error) {
	if err := x.session.SetFiles(x.ctx, x.Config.FileInput, x.input); err != nil {
		return "", err
	}
	return "File uploaded", nil
}

func (x *run) trigger() (string, error) {
	if err := x.session.Click(x.ctx, x.Config.ReviewButton); err != nil {
		return "", err
	}
	return "Button clicked, processing started", nil
}

func (x *run) awaitCompletion() (string, error) {
	x.p.Info("(waiting up to %s for results)", x.Config.CompletionTimeout)
	if err := x.session.WaitForText(x.ctx, x.Config.Completion, x.Config.CompletionTimeout); err != nil {
		if browser.IsTimeout(err) {
			return "", stageError(ProcessingComplete, failure.KindTimeout,
				fmt.Errorf("timeout waiting for results: %w", err))
		}
		return "", err
	}
	return "Processing completed", nil
}

func (x *run) extractResults() (string, error) {
	html, err := x.session.Content(x.ctx)
	if err != nil {
		return "", stageError(ResultsExtracted, failure.KindInternal, err)
	}
	htmlPath := filepath.Join(x.Config.ResultsDir, ResultsHTML)
	if err := os.MkdirAll(x.Config.ResultsDir, 0o755); err != nil {
		return "", stageError(ResultsExtracted, failure.KindInternal, err)
	}
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		return "", stageError(ResultsExtracted, failure.KindInternal, err)
	}
	x.out.Artifacts = append(x.out.Artifacts, htmlPath)

	shot := filepath.Join(x.Config.ResultsDir, ResultsScreenshot)
	if err := x.session.Screenshot(x.ctx, shot); err != nil {
		return "", stageError(ResultsExtracted, failure.KindInternal, err)
	}
	x.out.Artifacts = append(x.out.Artifacts, shot)
	x.p.Pass("Screenshot saved: %s", shot)

	src := extract.Source{HTML: html, Eval: x.session.Evaluate}
	observed, err := x.extractor.Extract(x.ctx, src)
	switch {
	case errors.Is(err, extract.ErrDisabled):
		x.out.ValidationSkipped = true
		return "Results captured (no extractor configured)", nil
	case err != nil:
		return "", stageError(ResultsExtracted, failure.KindAssertion, fmt.Errorf("extracting results with %s: %w", x.extractor.Name(), err))
	}
	x.observed = observed
	return fmt.Sprintf("Results extracted (%d rows via %s)", len(observed), x.extractor.Name()), nil
}

func (x *run) validate() (string, error) {
	pos, neg := len(x.Oracle.Positive()), len(x.Oracle.Negative())
	x.p.Info("Checking %d positive cases (should flag)...", pos)
	x.p.Info("Checking %d negative cases (should NOT flag)...", neg)
	if x.out.ValidationSkipped {
		x.p.Warn("Validation skipped: results must be verified manually")
		return "", nil
	}

	report := oracle.Validate(x.Oracle, x.observed, x.Options)
	x.out.Validation = &report
	for _, v := range report.Verdicts {
		if v.Passed {
			x.p.Pass("%s", v)
		} else {
			x.p.Fail("%s", v)
		}
	}
	if report.Unjudged > 0 {
		x.p.Info("%d observed rows are not in the oracle", report.Unjudged)
	}
	if !report.Passed {
		if err := x.m.Advance(Validated); err != nil {
			return "", stageError(Validated, failure.KindInternal, err)
		}
		return "", stageError(Validated, failure.KindValidation,
			fmt.Errorf("%d of %d cases failed", report.FailedCount, len(report.Verdicts)))
	}
	return report.Summary(), nil
}
