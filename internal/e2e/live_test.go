//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
	"github.com/Jython1415/mathnasium-session-notes/internal/extract"
	"github.com/Jython1415/mathnasium-session-notes/internal/oracle"
	"github.com/Jython1415/mathnasium-session-notes/internal/output"
	"github.com/Jython1415/mathnasium-session-notes/internal/smoke"
)

// liveApp serves a stand-in for the review app: clicking the button renders
// one result row per oracle entry after a short delay.
func liveApp(t *testing.T, o *oracle.Oracle) *httptest.Server {
	t.Helper()
	var rows []string
	for _, e := range o.Positive() {
		rows = append(rows, fmt.Sprintf(`{row:%d,category:%q,confidence:0.9}`, e.RowID, e.Category))
	}
	for _, e := range o.Negative() {
		rows = append(rows, fmt.Sprintf(`{row:%d,category:"none",confidence:0.05}`, e.RowID))
	}
	page := `<!doctype html>
<html><head><title>Session Notes Reviewer</title></head>
<body>
<div id="root"></div>
<script type="module" src="/src/app.jsx"></script>
<input id="file-input" type="file">
<button id="review">Review Session Notes</button>
<div id="out"></div>
<script>
const results = [` + strings.Join(rows, ",") + `];
document.getElementById('review').addEventListener('click', () => {
  console.log('BATCH 1/1 started');
  setTimeout(() => {
    window.__reviewResults = results;
    const out = document.getElementById('out');
    out.innerHTML = '<h2>Priority Reviews</h2>' + results.map(r =>
      '<div data-row-id="' + r.row + '" data-category="' + r.category + '" data-confidence="' + r.confidence + '"></div>').join('');
    console.log('BATCH 1/1 complete');
  }, 500);
});
</script>
</body></html>`

	mux := http.NewServeMux()
	mux.HandleFunc("/src/app.jsx", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript")
		fmt.Fprint(w, "export {};")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func liveDriver(t *testing.T) browser.Driver {
	t.Helper()
	if os.Getenv("NOTES_E2E_ENABLED") != "true" {
		t.Skip("set NOTES_E2E_ENABLED=true to run live browser tests")
	}
	engine := os.Getenv("NOTES_E2E_ENGINE")
	opts := browser.DefaultOptions()
	opts.ExecPath = os.Getenv("NOTES_BROWSER_PATH")
	opts.Logf = t.Logf
	drv, err := browser.New(engine, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = drv.Close() })
	return drv
}

func TestLive_Smoke(t *testing.T) {
	drv := liveDriver(t)
	o, err := oracle.Default()
	if err != nil {
		t.Fatal(err)
	}
	srv := liveApp(t, o)

	var buf bytes.Buffer
	r := &smoke.Runner{
		Driver: drv,
		Target: smoke.Target{
			URL:               srv.URL,
			Title:             "Session Notes Reviewer",
			Markers:           []string{"app.jsx"},
			FileInput:         browser.CSS("#file-input"),
			Wait:              browser.WaitLoad,
			NavigationTimeout: 15 * time.Second,
			SelectorTimeout:   10 * time.Second,
		},
		Printer: output.NewPrinter(&buf),
	}
	sum := r.Run(context.Background())
	t.Log(buf.String())
	if !sum.Passed() {
		t.Fatalf("smoke failed: %s", sum.Line())
	}
}

func TestLive_E2E(t *testing.T) {
	drv := liveDriver(t)
	o, err := oracle.Default()
	if err != nil {
		t.Fatal(err)
	}
	srv := liveApp(t, o)

	dir := t.TempDir()
	input := filepath.Join(dir, "Digital Workout Plan Report.xlsx")
	if err := os.WriteFile(input, []byte("PK"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, kind := range []string{extract.KindDOM, extract.KindScript} {
		t.Run(kind, func(t *testing.T) {
			ex, err := extract.New(kind, extract.Options{})
			if err != nil {
				t.Fatal(err)
			}
			var buf bytes.Buffer
			r := &Runner{
				Driver: drv,
				Config: Config{
					URL:               srv.URL,
					InputFile:         input,
					ResultsDir:        filepath.Join(dir, kind),
					FileInput:         browser.CSS("#file-input"),
					ReviewButton:      browser.WithText("button", "Review Session Notes"),
					Completion:        regexp.MustCompile(`Priority Reviews`),
					NavigationTimeout: 15 * time.Second,
					CompletionTimeout: 20 * time.Second,
					ConsoleMarkers:    []string{"BATCH"},
				},
				Oracle:    o,
				Extractor: ex,
				Printer:   output.NewPrinter(&buf),
			}
			out := r.Run(context.Background())
			t.Log(buf.String())
			if !out.Passed() {
				t.Fatalf("e2e failed in %s: %v", out.State, out.Err)
			}
			if !strings.Contains(buf.String(), "[Browser] BATCH 1/1 complete") {
				t.Error("console marker was not forwarded")
			}
			if _, err := os.Stat(filepath.Join(dir, kind, ResultsScreenshot)); err != nil {
				t.Errorf("results screenshot: %v", err)
			}
		})
	}
}
