// Package browsertest provides a scriptable in-memory browser for suite tests.
package browsertest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
)

// Page is the scripted state a fake Session serves.
type Page struct {
	Status      int
	HTML        string
	BodyText    string
	NavigateErr error
	// Counts maps Selector.String() to the number of matching elements.
	Counts map[string]int
	// ClickErr maps Selector.String() to the error a click returns.
	ClickErr map[string]error
	// OnClick, when set, runs after a successful click and may mutate the page.
	OnClick func(sel browser.Selector, p *Page)
	// Console is emitted to observers on every successful click.
	Console []browser.ConsoleMessage
	// Eval answers Evaluate; nil returns "null".
	Eval func(expr string) ([]byte, error)
	// PanicOnNavigate makes Navigate panic with this value.
	PanicOnNavigate any
}

// Driver is a fake browser.Driver. Each Launch asks Script for the page the
// new session serves.
type Driver struct {
	// Script returns the page for the n-th launched session (0-based).
	Script    func(n int) *Page
	LaunchErr error

	mu       sync.Mutex
	sessions []*Session
	closed   bool
}

// NewDriver returns a Driver whose sessions all serve copies of page.
func NewDriver(page Page) *Driver {
	return &Driver{Script: func(int) *Page {
		p := page
		return &p
	}}
}

// Name implements browser.Driver.
func (d *Driver) Name() string { return "fake" }

// Launch implements browser.Driver.
func (d *Driver) Launch(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	page := &Page{Status: 200}
	if d.Script != nil {
		page = d.Script(len(d.sessions))
	}
	s := &Session{page: page}
	d.sessions = append(d.sessions, s)
	return s, nil
}

// Close implements browser.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Sessions returns every session launched so far.
func (d *Driver) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session(nil), d.sessions...)
}

// Launches returns the number of sessions launched.
func (d *Driver) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

// Session is a fake browser.Session. It records the calls made on it.
type Session struct {
	mu          sync.Mutex
	page        *Page
	observers   []func(browser.ConsoleMessage)
	calls       []string
	files       []string
	screenshots []string
	closed      int
}

func (s *Session) record(format string, args ...any) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func timeout(what string, after time.Duration) error {
	return fmt.Errorf("%s: %w after %s", what, browser.ErrTimeout, after)
}

// Navigate implements browser.Session.
func (s *Session) Navigate(ctx context.Context, url string, wait browser.WaitPolicy, after time.Duration) (*browser.Response, error) {
	s.mu.Lock()
	s.record("navigate %s %s", url, wait)
	page := s.page
	s.mu.Unlock()

	if page.PanicOnNavigate != nil {
		panic(page.PanicOnNavigate)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page.NavigateErr != nil {
		return nil, page.NavigateErr
	}
	status := page.Status
	if status == 0 {
		status = 200
	}
	return &browser.Response{URL: url, Status: status}, nil
}

// SetFiles implements browser.Session.
func (s *Session) SetFiles(ctx context.Context, sel browser.Selector, paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("set-files %s", sel)
	if s.page.Counts[sel.String()] == 0 {
		return timeout("set files on "+sel.String(), 30*time.Second)
	}
	s.files = append(s.files, paths...)
	return nil
}

// Click implements browser.Session.
func (s *Session) Click(ctx context.Context, sel browser.Selector) error {
	s.mu.Lock()
	s.record("click %s", sel)
	page := s.page
	if err := page.ClickErr[sel.String()]; err != nil {
		s.mu.Unlock()
		return err
	}
	if page.Counts[sel.String()] == 0 {
		s.mu.Unlock()
		return timeout("click "+sel.String(), 30*time.Second)
	}
	if page.OnClick != nil {
		page.OnClick(sel, page)
	}
	observers := append(([]func(browser.ConsoleMessage))(nil), s.observers...)
	msgs := append([]browser.ConsoleMessage(nil), page.Console...)
	s.mu.Unlock()

	for _, m := range msgs {
		for _, fn := range observers {
			fn(m)
		}
	}
	return nil
}

// Count implements browser.Session.
func (s *Session) Count(ctx context.Context, sel browser.Selector) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("count %s", sel)
	return s.page.Counts[sel.String()], nil
}

// WaitForSelector implements browser.Session.
func (s *Session) WaitForSelector(ctx context.Context, sel browser.Selector, after time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("wait %s", sel)
	if s.page.Counts[sel.String()] > 0 {
		return nil
	}
	return timeout("waiting for "+sel.String(), after)
}

// WaitForText implements browser.Session.
func (s *Session) WaitForText(ctx context.Context, pattern *regexp.Regexp, after time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("wait-text %s", pattern)
	if pattern.MatchString(s.page.BodyText) {
		return nil
	}
	return timeout(fmt.Sprintf("waiting for text /%s/", pattern), after)
}

// Content implements browser.Session.
func (s *Session) Content(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("content")
	return s.page.HTML, nil
}

// Screenshot implements browser.Session. It writes a placeholder file so
// callers can assert on artifact paths.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	s.mu.Lock()
	s.record("screenshot %s", filepath.Base(path))
	s.screenshots = append(s.screenshots, path)
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("\x89PNG fake"), 0o644)
}

// Evaluate implements browser.Session.
func (s *Session) Evaluate(ctx context.Context, expr string) ([]byte, error) {
	s.mu.Lock()
	s.record("evaluate")
	eval := s.page.Eval
	s.mu.Unlock()
	if eval == nil {
		return []byte("null"), nil
	}
	return eval(expr)
}

// OnConsole implements browser.Session.
func (s *Session) OnConsole(fn func(browser.ConsoleMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Close implements browser.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Closed reports how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Calls returns the recorded call log.
func (s *Session) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Called reports whether any recorded call starts with prefix.
func (s *Session) Called(prefix string) bool {
	for _, c := range s.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// Files returns the paths passed to SetFiles.
func (s *Session) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

// Screenshots returns the paths passed to Screenshot.
func (s *Session) Screenshots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.screenshots...)
}
