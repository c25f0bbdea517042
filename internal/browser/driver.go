// Package browser abstracts the headless browser used by the check suites.
//
// A Driver launches isolated Sessions. One Session drives one probe or one
// scenario at a time and must be closed on every exit path. Two engines are
// provided: chromedp (default) and playwright.
package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrTimeout is wrapped by every wait that runs out of time.
var ErrTimeout = errors.New("timed out")

// ErrClosed is returned when a closed Session is used.
var ErrClosed = errors.New("browser session closed")

// WaitPolicy controls when a navigation is considered finished.
type WaitPolicy string

const (
	WaitLoad             WaitPolicy = "load"
	WaitDOMContentLoaded WaitPolicy = "domcontentloaded"
	WaitNetworkIdle      WaitPolicy = "networkidle"
)

// ParseWaitPolicy converts a config string into a WaitPolicy.
func ParseWaitPolicy(s string) (WaitPolicy, error) {
	switch WaitPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case WaitLoad, "":
		return WaitLoad, nil
	case WaitDOMContentLoaded:
		return WaitDOMContentLoaded, nil
	case WaitNetworkIdle:
		return WaitNetworkIdle, nil
	default:
		return "", fmt.Errorf("unknown wait policy %q (want load|domcontentloaded|networkidle)", s)
	}
}

// Selector locates elements: a CSS query, optionally narrowed to elements
// whose visible text contains Text.
type Selector struct {
	Query string
	Text  string
}

// CSS returns a Selector for a plain CSS query.
func CSS(query string) Selector {
	return Selector{Query: query}
}

// WithText returns a Selector for elements matching query that contain text.
func WithText(query, text string) Selector {
	return Selector{Query: query, Text: text}
}

func (s Selector) String() string {
	if s.Text == "" {
		return s.Query
	}
	return fmt.Sprintf("%s:has-text(%q)", s.Query, s.Text)
}

// Response describes the main-document response of a navigation.
type Response struct {
	URL        string
	Status     int
	StatusText string
}

// OK reports whether the response status is 200.
func (r *Response) OK() bool {
	return r != nil && r.Status == 200
}

// ConsoleMessage is a console call observed in the page.
type ConsoleMessage struct {
	Type string
	Text string
}

// Session is one isolated browsing context.
type Session interface {
	Navigate(ctx context.Context, url string, wait WaitPolicy, timeout time.Duration) (*Response, error)
	SetFiles(ctx context.Context, sel Selector, paths ...string) error
	Click(ctx context.Context, sel Selector) error
	Count(ctx context.Context, sel Selector) (int, error)
	// WaitForSelector waits until at least one element matching sel is
	// attached to the DOM.
	WaitForSelector(ctx context.Context, sel Selector, timeout time.Duration) error
	// WaitForText waits until the page's visible text matches pattern.
	WaitForText(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error
	// Content returns the serialized DOM.
	Content(ctx context.Context) (string, error)
	// Screenshot writes a full-page PNG to path.
	Screenshot(ctx context.Context, path string) error
	// Evaluate runs a JavaScript expression and returns its JSON-encoded result.
	Evaluate(ctx context.Context, expression string) ([]byte, error)
	// OnConsole registers a best-effort observer for console messages.
	OnConsole(fn func(ConsoleMessage))
	Close() error
}

// Driver launches sessions.
type Driver interface {
	Name() string
	Launch(ctx context.Context) (Session, error)
	Close() error
}

// Options configure a Driver.
type Options struct {
	Headless     bool
	NoSandbox    bool
	WindowWidth  int
	WindowHeight int
	// ExecPath overrides the browser binary.
	ExecPath string
	// Logf receives engine debug output; nil discards it.
	Logf func(format string, args ...any)
}

// DefaultOptions returns headless options with a desktop-sized window.
func DefaultOptions() Options {
	return Options{
		Headless:     true,
		NoSandbox:    true,
		WindowWidth:  1920,
		WindowHeight: 1080,
	}
}

// Engine names.
const (
	EngineChromedp   = "chromedp"
	EnginePlaywright = "playwright"
)

// New returns a Driver for the named engine.
func New(engine string, opts Options) (Driver, error) {
	switch strings.ToLower(engine) {
	case EngineChromedp, "":
		return NewChromedp(opts), nil
	case EnginePlaywright:
		return NewPlaywright(opts), nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q (want %s|%s)", engine, EngineChromedp, EnginePlaywright)
	}
}

// IsTimeout reports whether err is a wait timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// timeoutError wraps err so that it matches ErrTimeout.
func timeoutError(what string, after time.Duration, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w after %s", what, ErrTimeout, after)
	}
	return fmt.Errorf("%s: %w after %s: %v", what, ErrTimeout, after, err)
}
