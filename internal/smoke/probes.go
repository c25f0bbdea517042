package smoke

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
	"github.com/Jython1415/mathnasium-session-notes/internal/failure"
)

// Target describes the deployment the probes check.
type Target struct {
	URL               string
	Title             string
	Markers           []string
	FileInput         browser.Selector
	Wait              browser.WaitPolicy
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
}

// Probe is one independent availability check. Run receives a fresh session
// and returns the success message.
type Probe struct {
	Name        string
	Description string
	Run         func(ctx context.Context, s browser.Session, t Target) (string, error)
}

// DefaultProbes returns the standard catalog in execution order.
func DefaultProbes() []Probe {
	return []Probe{
		{Name: "site_loads", Description: "Checking site accessibility", Run: siteLoads},
		{Name: "app_title", Description: "Checking application title", Run: appTitle},
		{Name: "app_marker", Description: "Checking React application", Run: appMarker},
		{Name: "file_input", Description: "Checking file upload input", Run: fileInput},
	}
}

// Names returns the probe names in order.
func Names(probes []Probe) []string {
	names := make([]string, len(probes))
	for i, p := range probes {
		names[i] = p.Name
	}
	return names
}

// Select returns the probes whose names are listed, in catalog order.
func Select(probes []Probe, names []string) ([]Probe, error) {
	if len(names) == 0 {
		return probes, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}
	var out []Probe
	for _, p := range probes {
		if want[p.Name] {
			out = append(out, p)
			delete(want, p.Name)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for n := range want {
			unknown = append(unknown, n)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown probe %q (want one of %s)", unknown[0], strings.Join(Names(probes), ", "))
	}
	return out, nil
}

func navigate(ctx context.Context, s browser.Session, t Target) (*browser.Response, error) {
	resp, err := s.Navigate(ctx, t.URL, t.Wait, t.NavigationTimeout)
	if err != nil {
		return nil, failure.New(failure.KindNavigation, err)
	}
	return resp, nil
}

func siteLoads(ctx context.Context, s browser.Session, t Target) (string, error) {
	resp, err := navigate(ctx, s, t)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", failure.Newf(failure.KindAssertion, "expected 200, got %d", resp.Status)
	}
	return "Site loads (HTTP 200)", nil
}

func content(ctx context.Context, s browser.Session, t Target) (string, error) {
	if _, err := navigate(ctx, s, t); err != nil {
		return "", err
	}
	html, err := s.Content(ctx)
	if err != nil {
		return "", failure.New(failure.KindInternal, err)
	}
	return html, nil
}

func appTitle(ctx context.Context, s browser.Session, t Target) (string, error) {
	html, err := content(ctx, s, t)
	if err != nil {
		return "", err
	}
	if !strings.Contains(html, t.Title) {
		return "", failure.Newf(failure.KindAssertion, "application title %q not found", t.Title)
	}
	return "Application title found", nil
}

func appMarker(ctx context.Context, s browser.Session, t Target) (string, error) {
	html, err := content(ctx, s, t)
	if err != nil {
		return "", err
	}
	for _, m := range t.Markers {
		if strings.Contains(html, m) {
			return fmt.Sprintf("React application loaded (%s)", m), nil
		}
	}
	return "", failure.Newf(failure.KindAssertion, "React app not found (looked for %s)", strings.Join(t.Markers, ", "))
}

func fileInput(ctx context.Context, s browser.Session, t Target) (string, error) {
	if _, err := navigate(ctx, s, t); err != nil {
		return "", err
	}
	if err := s.WaitForSelector(ctx, t.FileInput, t.SelectorTimeout); err != nil {
		return "", fmt.Errorf("file input not found after waiting: %w", err)
	}
	n, err := s.Count(ctx, t.FileInput)
	if err != nil {
		return "", failure.New(failure.KindInternal, err)
	}
	if n == 0 {
		return "", failure.Newf(failure.KindAssertion, "file input %s not found", t.FileInput)
	}
	return "File upload input exists", nil
}
