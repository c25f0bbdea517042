package smoke

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
	"github.com/Jython1415/mathnasium-session-notes/internal/browser/browsertest"
	"github.com/Jython1415/mathnasium-session-notes/internal/failure"
	"github.com/Jython1415/mathnasium-session-notes/internal/output"
)

const healthyHTML = `<html><head><title>Session Notes Reviewer</title><script type="text/babel" src="app.jsx"></script></head><body><input id="file-input" type="file"></body></html>`

func testTarget() Target {
	return Target{
		URL:               "https://mathsense.com/session-notes/",
		Title:             "Session Notes Reviewer",
		Markers:           []string{"app.jsx", "SessionNotesReviewer"},
		FileInput:         browser.CSS("#file-input"),
		Wait:              browser.WaitLoad,
		NavigationTimeout: 15 * time.Second,
		SelectorTimeout:   10 * time.Second,
	}
}

func healthyPage() *browsertest.Page {
	return &browsertest.Page{
		Status: 200,
		HTML:   healthyHTML,
		Counts: map[string]int{"#file-input": 1},
	}
}

func TestRun_AllPass(t *testing.T) {
	driver := &browsertest.Driver{Script: func(int) *browsertest.Page { return healthyPage() }}
	var buf bytes.Buffer
	r := &Runner{Driver: driver, Target: testTarget(), Printer: output.NewPrinter(&buf)}

	sum := r.Run(context.Background())

	if !sum.Passed() || sum.ExitCode() != 0 {
		t.Fatalf("expected pass, got failures %+v", sum.Failures())
	}
	if got := sum.Line(); got != "4/4 passed" {
		t.Errorf("Line() = %q", got)
	}
	if !strings.Contains(buf.String(), "✓ All 4 tests PASSED") {
		t.Errorf("missing pass banner in:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "Elapsed: ") {
		t.Errorf("missing elapsed time in:\n%s", buf.String())
	}
}

func TestRun_LeavesRunnerFieldsUntouched(t *testing.T) {
	driver := &browsertest.Driver{Script: func(int) *browsertest.Page { return healthyPage() }}
	r := &Runner{Driver: driver, Target: testTarget()}

	if sum := r.Run(context.Background()); !sum.Passed() {
		t.Fatalf("expected pass, got failures %+v", sum.Failures())
	}
	if r.Logger != nil || r.Printer != nil || r.Probes != nil {
		t.Errorf("Run filled in defaults on the caller's Runner: %+v", r)
	}
}

func TestRun_AggregatesFailures(t *testing.T) {
	// Second probe fails: pass, fail, pass, pass.
	driver := &browsertest.Driver{Script: func(n int) *browsertest.Page {
		p := healthyPage()
		if n == 1 {
			p.HTML = "<html><body>maintenance</body></html>"
		}
		return p
	}}
	var buf bytes.Buffer
	r := &Runner{Driver: driver, Target: testTarget(), Printer: output.NewPrinter(&buf)}

	sum := r.Run(context.Background())

	if got := sum.Line(); got != "3/4 passed" {
		t.Errorf("Line() = %q, want 3/4 passed", got)
	}
	if sum.ExitCode() != 1 {
		t.Errorf("ExitCode() = %d, want 1", sum.ExitCode())
	}
	if got := driver.Launches(); got != 4 {
		t.Errorf("launches = %d, want 4 (every probe runs)", got)
	}
	for i, s := range driver.Sessions() {
		if s.Closed() != 1 {
			t.Errorf("session %d closed %d times, want 1", i, s.Closed())
		}
	}

	failed := sum.Failures()
	if len(failed) != 1 || failed[0].Probe != "app_title" || failed[0].Kind != failure.KindAssertion {
		t.Fatalf("failures = %+v", failed)
	}

	out := buf.String()
	for _, want := range []string{
		"Test 2: Checking application title...",
		`✗ FAILED: application title "Session Notes Reviewer" not found`,
		"✗ 1/4 tests FAILED",
		"Failed tests: app_title",
		"3/4 passed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_ProbeFailureKinds(t *testing.T) {
	tests := []struct {
		name     string
		page     func() *browsertest.Page
		probe    string
		wantKind failure.Kind
		wantMsg  string
	}{
		{
			name:     "non-200 status",
			page:     func() *browsertest.Page { p := healthyPage(); p.Status = 503; return p },
			probe:    "site_loads",
			wantKind: failure.KindAssertion,
			wantMsg:  "expected 200, got 503",
		},
		{
			name: "navigation error",
			page: func() *browsertest.Page {
				p := healthyPage()
				p.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
				return p
			},
			probe:    "site_loads",
			wantKind: failure.KindNavigation,
			wantMsg:  "ERR_NAME_NOT_RESOLVED",
		},
		{
			name:     "file input never attached",
			page:     func() *browsertest.Page { p := healthyPage(); p.Counts = nil; return p },
			probe:    "file_input",
			wantKind: failure.KindTimeout,
			wantMsg:  "file input not found after waiting",
		},
		{
			name:     "no app marker",
			page:     func() *browsertest.Page { p := healthyPage(); p.HTML = "<title>Session Notes Reviewer</title>"; return p },
			probe:    "app_marker",
			wantKind: failure.KindAssertion,
			wantMsg:  "React app not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probes, err := Select(DefaultProbes(), []string{tt.probe})
			if err != nil {
				t.Fatal(err)
			}
			driver := &browsertest.Driver{Script: func(int) *browsertest.Page { return tt.page() }}
			r := &Runner{Driver: driver, Target: testTarget(), Probes: probes}

			sum := r.Run(context.Background())
			if sum.Passed() {
				t.Fatal("expected failure")
			}
			res := sum.Results[0]
			if res.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", res.Kind, tt.wantKind)
			}
			if !strings.Contains(res.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want substring %q", res.Message, tt.wantMsg)
			}
		})
	}
}

func TestRun_PanicIsRecoveredAndSessionClosed(t *testing.T) {
	driver := &browsertest.Driver{Script: func(n int) *browsertest.Page {
		p := healthyPage()
		if n == 0 {
			p.PanicOnNavigate = "renderer crashed"
		}
		return p
	}}
	r := &Runner{Driver: driver, Target: testTarget()}

	sum := r.Run(context.Background())

	if got := sum.Line(); got != "3/4 passed" {
		t.Errorf("Line() = %q", got)
	}
	first := sum.Results[0]
	if first.Passed || first.Kind != failure.KindInternal || !strings.Contains(first.Message, "renderer crashed") {
		t.Errorf("first result = %+v", first)
	}
	if s := driver.Sessions()[0]; s.Closed() != 1 {
		t.Errorf("panicking probe's session closed %d times", s.Closed())
	}
}

func TestRun_LaunchFailure(t *testing.T) {
	driver := &browsertest.Driver{LaunchErr: errors.New("chrome not found")}
	r := &Runner{Driver: driver, Target: testTarget()}

	sum := r.Run(context.Background())
	if sum.PassedCount() != 0 || sum.Total() != 4 {
		t.Errorf("summary = %s", sum.Line())
	}
	for _, res := range sum.Results {
		if !strings.Contains(res.Message, "chrome not found") {
			t.Errorf("%s: message %q", res.Probe, res.Message)
		}
	}
}

func TestSelect(t *testing.T) {
	got, err := Select(DefaultProbes(), []string{"file_input", "site_loads"})
	if err != nil {
		t.Fatal(err)
	}
	if names := strings.Join(Names(got), ","); names != "site_loads,file_input" {
		t.Errorf("Select order = %s", names)
	}
	if _, err := Select(DefaultProbes(), []string{"dns"}); err == nil {
		t.Error("expected unknown probe error")
	}
}

func TestSummary_Report(t *testing.T) {
	sum := &Summary{
		StartedAt:  time.Unix(0, 0),
		FinishedAt: time.Unix(2, 0),
		Results: []Result{
			{Probe: "site_loads", Passed: true, Duration: 1500 * time.Microsecond},
			{Probe: "file_input", Kind: failure.KindTimeout, Message: "timed out"},
		},
	}
	r := sum.Report("run-1", "https://example.test", "fake")
	if r.Passed || r.Total != 2 || r.Failed != 1 {
		t.Errorf("report = %+v", r)
	}
	if r.Checks[0].DurationMS != 1.5 || r.Checks[1].Kind != "timeout" {
		t.Errorf("checks = %+v", r.Checks)
	}
}
