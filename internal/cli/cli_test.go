package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
	"github.com/Jython1415/mathnasium-session-notes/internal/browser/browsertest"
	"github.com/Jython1415/mathnasium-session-notes/internal/history"
	"github.com/Jython1415/mathnasium-session-notes/internal/oracle"
	"github.com/Jython1415/mathnasium-session-notes/internal/output"
)

const appHTML = `<html><head><title>Session Notes Reviewer</title></head>` +
	`<body><div id="root"></div><script type="module" src="/src/app.jsx"></script>` +
	`<input id="file-input" type="file"></body></html>`

var reviewButton = browser.WithText("button", "Review Session Notes")

// resetFlags restores every flag in the tree to its default so that
// consecutive executions of rootCmd do not leak state.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) result {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	code := execute(context.Background(), rootCmd, args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// isolate points HOME and the project at fresh directories and returns the
// project directory.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "NOTES_") {
			t.Setenv(strings.SplitN(kv, "=", 2)[0], "")
		}
	}
	return t.TempDir()
}

func useDriver(t *testing.T, d browser.Driver) {
	t.Helper()
	old := newDriver
	newDriver = func(string, browser.Options) (browser.Driver, error) { return d, nil }
	t.Cleanup(func() { newDriver = old })
}

func healthyPage() browsertest.Page {
	return browsertest.Page{
		Status: 200,
		HTML:   appHTML,
		Counts: map[string]int{"#file-input": 1},
	}
}

func decodeReport(t *testing.T, data string) *output.Report {
	t.Helper()
	var rep output.Report
	require.NoError(t, json.Unmarshal([]byte(data), &rep), data)
	return &rep
}

func validateSchema(t *testing.T, data string) {
	t.Helper()
	schema, err := jsonschema.NewCompiler().Compile(filepath.Join("..", "output", "testdata", "report.schema.json"))
	require.NoError(t, err)
	v, err := jsonschema.UnmarshalJSON(strings.NewReader(data))
	require.NoError(t, err)
	assert.NoError(t, schema.Validate(v))
}

func TestSmoke_AllPass(t *testing.T) {
	project := isolate(t)
	drv := browsertest.NewDriver(healthyPage())
	useDriver(t, drv)

	res := runCLI(t, "smoke", "-C", project)
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "All 4 tests PASSED")
	assert.Contains(t, res.stdout, "4/4 passed")
	assert.Equal(t, 4, drv.Launches())

	// The run was recorded.
	res = runCLI(t, "history", "list", "--json", "-C", project)
	require.Equal(t, 0, res.code, res.stderr)
	var runs []history.Run
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "smoke", runs[0].Suite)
	assert.True(t, runs[0].Passed)
}

func TestSmoke_FailureAggregates(t *testing.T) {
	project := isolate(t)
	page := healthyPage()
	page.HTML = `<html><head><title>Session Notes Reviewer</title></head><body><input id="file-input"></body></html>`
	useDriver(t, browsertest.NewDriver(page))

	res := runCLI(t, "smoke", "-C", project)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "1/4 tests FAILED")
	assert.Contains(t, res.stdout, "Failed tests: app_marker")
	assert.Contains(t, res.stdout, "3/4 passed")
}

func TestSmoke_JSONReport(t *testing.T) {
	project := isolate(t)
	useDriver(t, browsertest.NewDriver(healthyPage()))

	res := runCLI(t, "smoke", "--json", "-C", project, "--url", "http://localhost:5173/")
	require.Equal(t, 0, res.code, res.stderr)
	assert.NotContains(t, res.stdout, "Smoke Tests", "progress lines suppressed")

	rep := decodeReport(t, res.stdout)
	assert.Equal(t, "smoke", rep.Suite)
	assert.Equal(t, "http://localhost:5173/", rep.Target)
	assert.Equal(t, "fake", rep.Engine)
	assert.Equal(t, 4, rep.Total)
	assert.NotEmpty(t, rep.RunID)
	validateSchema(t, res.stdout)
}

func TestSmoke_SelectedProbes(t *testing.T) {
	project := isolate(t)
	drv := browsertest.NewDriver(healthyPage())
	useDriver(t, drv)

	res := runCLI(t, "smoke", "-C", project, "--probe", "site_loads", "--probe", "file_input")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "2/2 passed")
	assert.Equal(t, 2, drv.Launches())
}

func TestSmoke_UnknownProbe(t *testing.T) {
	project := isolate(t)
	drv := browsertest.NewDriver(healthyPage())
	useDriver(t, drv)

	res := runCLI(t, "smoke", "-C", project, "--probe", "bogus")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "bogus")
	assert.Equal(t, 0, drv.Launches())
}

func TestSmoke_List(t *testing.T) {
	isolate(t)
	res := runCLI(t, "smoke", "--list")
	require.Equal(t, 0, res.code)
	for _, name := range []string{"site_loads", "app_title", "app_marker", "file_input"} {
		assert.Contains(t, res.stdout, name)
	}
}

func TestSmoke_MetricsTextfile(t *testing.T) {
	project := isolate(t)
	path := filepath.Join(t.TempDir(), "notescheck.prom")
	t.Setenv("NOTES_METRICS_TEXTFILE", path)
	useDriver(t, browsertest.NewDriver(healthyPage()))

	res := runCLI(t, "smoke", "-C", project)
	require.Equal(t, 0, res.code, res.stderr)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `notescheck_run_success{suite="smoke"} 1`)
	assert.Contains(t, string(data), `notescheck_check_success{check="file_input",suite="smoke"} 1`)
}

func TestInvalidConfig(t *testing.T) {
	project := isolate(t)
	drv := browsertest.NewDriver(healthyPage())
	useDriver(t, drv)

	res := runCLI(t, "smoke", "-C", project, "--engine", "webkit")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "browser.engine")
	assert.Equal(t, 0, drv.Launches())

	res = runCLI(t, "smoke", "-C", project, "--engine", "webkit", "--json")
	assert.Equal(t, 1, res.code)
	var payload output.ErrorPayload
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &payload))
	assert.Contains(t, payload.Message, "browser.engine")
}

func TestJSONErrors_FollowOutputMode(t *testing.T) {
	isolate(t)

	res := runCLI(t, "validate", "--json")
	assert.Equal(t, 1, res.code)
	var payload output.ErrorPayload
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &payload), res.stdout)
	assert.Equal(t, "error", payload.Error)
	assert.Contains(t, payload.Message, "arg")
	assert.Equal(t, map[string]any{"code": float64(1)}, payload.Details)
	assert.Empty(t, res.stderr)

	res = runCLI(t, "validate")
	assert.Equal(t, 1, res.code)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, "notescheck: ")
	assert.False(t, output.IsJSON())
}

func resultsHTML(observed []oracle.Observed) string {
	var b strings.Builder
	b.WriteString("<html><body><h2>Priority Reviews</h2>")
	for _, o := range observed {
		fmt.Fprintf(&b, `<div data-row-id="%d" data-category="%s" data-confidence="%.2f"></div>`, o.RowID, o.Category, o.Confidence)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func passingObservations(t *testing.T) []oracle.Observed {
	t.Helper()
	o, err := oracle.Default()
	require.NoError(t, err)
	var out []oracle.Observed
	for _, e := range o.Positive() {
		out = append(out, oracle.Observed{RowID: e.RowID, Category: e.Category, Confidence: 0.9})
	}
	for _, e := range o.Negative() {
		out = append(out, oracle.Observed{RowID: e.RowID, Category: oracle.CategoryNone})
	}
	return out
}

func reviewPage(observed []oracle.Observed) browsertest.Page {
	html := resultsHTML(observed)
	return browsertest.Page{
		Status: 200,
		HTML:   appHTML,
		Counts: map[string]int{
			"#file-input":          1,
			reviewButton.String(): 1,
		},
		OnClick: func(sel browser.Selector, p *browsertest.Page) {
			p.BodyText = "Priority Reviews\n12 sessions require review"
			p.HTML = html
		},
	}
}

func workbook(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Digital Workout Plan Report.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("PK fake workbook"), 0o644))
	return path
}

func TestE2E_DOMValidationPasses(t *testing.T) {
	project := isolate(t)
	results := filepath.Join(t.TempDir(), "results")
	drv := browsertest.NewDriver(reviewPage(passingObservations(t)))
	useDriver(t, drv)

	res := runCLI(t, "e2e", "-C", project, "--json",
		"--input", workbook(t), "--results-dir", results, "--extractor", "dom", "--exact")
	require.Equal(t, 0, res.code, res.stderr)

	rep := decodeReport(t, res.stdout)
	assert.Equal(t, "e2e", rep.Suite)
	assert.True(t, rep.Passed)
	require.NotNil(t, rep.Validation)
	assert.False(t, rep.Validation.Skipped)
	assert.Equal(t, "dom", rep.Validation.Extractor)
	assert.Equal(t, 12, rep.Validation.Total)
	assert.Equal(t, 0, rep.Validation.Failed)
	validateSchema(t, res.stdout)

	assert.FileExists(t, filepath.Join(results, "results.html"))
	assert.FileExists(t, filepath.Join(results, "results.png"))
}

func TestE2E_ValidationFailureExitsOne(t *testing.T) {
	project := isolate(t)
	observed := passingObservations(t)[1:] // first positive row missing
	useDriver(t, browsertest.NewDriver(reviewPage(observed)))

	res := runCLI(t, "e2e", "-C", project,
		"--input", workbook(t), "--results-dir", t.TempDir(), "--extractor", "dom")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "no match found")
	assert.Contains(t, res.stdout, "1 of 12 cases failed")
}

func TestE2E_NoExtractorPrintsNextSteps(t *testing.T) {
	project := isolate(t)
	useDriver(t, browsertest.NewDriver(reviewPage(nil)))

	res := runCLI(t, "e2e", "-C", project, "--input", workbook(t), "--results-dir", t.TempDir())
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "E2E TEST PASSED")
	assert.Contains(t, res.stdout, "Next steps:")
}

func TestE2E_MissingInput(t *testing.T) {
	project := isolate(t)
	drv := browsertest.NewDriver(reviewPage(nil))
	useDriver(t, drv)

	res := runCLI(t, "e2e", "-C", project, "--input", filepath.Join(t.TempDir(), "missing.xlsx"), "--results-dir", t.TempDir())
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "test file not found")
	assert.Equal(t, 0, drv.Launches())
}

func writeObserved(t *testing.T, observed []oracle.Observed) string {
	t.Helper()
	data, err := json.Marshal(observed)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "observed.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestValidate(t *testing.T) {
	project := isolate(t)

	res := runCLI(t, "validate", "-C", project, writeObserved(t, passingObservations(t)))
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "12/12 cases passed")

	bad := passingObservations(t)
	bad[len(bad)-1].Category = oracle.CategoryOther
	bad[len(bad)-1].Confidence = 0.95
	res = runCLI(t, "validate", "-C", project, "--json", writeObserved(t, bad))
	assert.Equal(t, 1, res.code)
	rep := decodeReport(t, res.stdout)
	assert.Equal(t, "validate", rep.Suite)
	assert.Equal(t, 1, rep.Failed)
	validateSchema(t, res.stdout)
}

func TestValidate_MissingFile(t *testing.T) {
	project := isolate(t)
	res := runCLI(t, "validate", "-C", project, filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, 1, res.code)
	assert.NotEmpty(t, res.stderr)
}

func TestOracleCommands(t *testing.T) {
	isolate(t)

	res := runCLI(t, "oracle", "show")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "ROW")
	assert.Contains(t, res.stdout, "name_mismatch")

	res = runCLI(t, "oracle", "show", "--yaml")
	require.Equal(t, 0, res.code, res.stderr)
	fixture := filepath.Join(t.TempDir(), "cases.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(res.stdout), 0o644))

	res = runCLI(t, "oracle", "check", fixture)
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "valid")

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("positive:\n  - row: 0\n"), 0o644))
	res = runCLI(t, "oracle", "check", broken)
	assert.Equal(t, 1, res.code)
}

func TestConfigCommands(t *testing.T) {
	project := isolate(t)

	res := runCLI(t, "config", "set", "-C", project, "browser.engine", "playwright")
	require.Equal(t, 0, res.code, res.stderr)
	assert.FileExists(t, filepath.Join(project, ".notescheck", "config.toml"))

	res = runCLI(t, "config", "get", "-C", project, "browser.engine")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "playwright", strings.TrimSpace(res.stdout))

	res = runCLI(t, "config", "get", "-C", project, "browser.engine", "--engine", "chromedp")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "chromedp", strings.TrimSpace(res.stdout), "flag beats file")

	res = runCLI(t, "config", "set", "-C", project, "timeouts.completion", "soon")
	assert.Equal(t, 1, res.code)

	res = runCLI(t, "config", "get", "-C", project, "no.such.key")
	assert.Equal(t, 1, res.code)

	res = runCLI(t, "config", "show", "-C", project)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, `engine = "playwright"`)

	res = runCLI(t, "config", "keys")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "e2e.extractor")
}

func TestHistoryCommands(t *testing.T) {
	project := isolate(t)
	page := healthyPage()
	page.Counts = nil // file_input fails
	useDriver(t, browsertest.NewDriver(page))

	res := runCLI(t, "smoke", "-C", project, "--json")
	require.Equal(t, 1, res.code)
	rep := decodeReport(t, res.stdout)

	res = runCLI(t, "history", "show", "-C", project, rep.RunID[:8])
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, rep.RunID)
	assert.Contains(t, res.stdout, "file_input")
	assert.Contains(t, res.stdout, "FAIL")

	res = runCLI(t, "history", "stats", "-C", project)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "file_input")
	assert.Contains(t, res.stdout, "100%")

	res = runCLI(t, "history", "list", "-C", project, "--failed")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, rep.RunID[:8])

	res = runCLI(t, "history", "prune", "-C", project, "--keep", "0")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Deleted 1 runs.")

	res = runCLI(t, "history", "show", "-C", project, rep.RunID)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "run not found")
}

func TestHistoryDisabled(t *testing.T) {
	project := isolate(t)
	t.Setenv("NOTES_HISTORY", "false")
	res := runCLI(t, "history", "list", "-C", project)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "disabled")
}
