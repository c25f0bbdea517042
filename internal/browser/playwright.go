package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver drives Chromium through the Playwright driver process.
// The driver process is started on first Launch and shared by all sessions;
// every session gets its own browser.
type PlaywrightDriver struct {
	opts Options

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywright creates a playwright-backed Driver. Nothing is started
// until Launch.
func NewPlaywright(opts Options) *PlaywrightDriver {
	return &PlaywrightDriver{opts: opts}
}

// InstallPlaywright downloads the Playwright driver and Chromium.
func InstallPlaywright() error {
	if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
		return fmt.Errorf("installing playwright: %w", err)
	}
	return nil
}

// Name implements Driver.
func (d *PlaywrightDriver) Name() string { return EnginePlaywright }

func (d *PlaywrightDriver) runtime() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw != nil {
		return d.pw, nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright (try `notescheck install`): %w", err)
	}
	d.pw = pw
	return pw, nil
}

// Launch starts a Chromium instance with a single page.
func (d *PlaywrightDriver) Launch(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := d.runtime()
	if err != nil {
		return nil, err
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(d.opts.Headless),
		Args:     []string{"--disable-gpu", "--disable-dev-shm-usage"},
	}
	if d.opts.NoSandbox {
		launch.ChromiumSandbox = playwright.Bool(false)
	}
	if d.opts.ExecPath != "" {
		launch.ExecutablePath = playwright.String(d.opts.ExecPath)
	}
	b, err := pw.Chromium.Launch(launch)
	if err != nil {
		return nil, fmt.Errorf("launching chromium: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if d.opts.WindowWidth > 0 && d.opts.WindowHeight > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: d.opts.WindowWidth, Height: d.opts.WindowHeight}
	}
	bctx, err := b.NewContext(ctxOpts)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	p, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		return nil, fmt.Errorf("opening page: %w", err)
	}

	s := &playwrightSession{browser: b, context: bctx, page: p, logf: d.opts.Logf}
	p.OnConsole(s.onConsole)
	return s, nil
}

// Close stops the shared driver process.
func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw == nil {
		return nil
	}
	err := d.pw.Stop()
	d.pw = nil
	if err != nil {
		return fmt.Errorf("stopping playwright: %w", err)
	}
	return nil
}

type playwrightSession struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	logf    func(string, ...any)

	mu      sync.Mutex
	console []func(ConsoleMessage)
	closed  bool
}

func (s *playwrightSession) onConsole(msg playwright.ConsoleMessage) {
	m := ConsoleMessage{Type: msg.Type(), Text: msg.Text()}
	s.mu.Lock()
	handlers := append(([]func(ConsoleMessage))(nil), s.console...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(m)
	}
}

func (s *playwrightSession) alive(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return ctx.Err()
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

// pwError maps playwright timeouts onto ErrTimeout.
func pwError(what string, timeout time.Duration, err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return timeoutError(what, timeout, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *playwrightSession) locator(sel Selector) playwright.Locator {
	if sel.Text == "" {
		return s.page.Locator(sel.Query)
	}
	return s.page.Locator(sel.Query, playwright.PageLocatorOptions{HasText: sel.Text})
}

func (s *playwrightSession) Navigate(ctx context.Context, url string, wait WaitPolicy, timeout time.Duration) (*Response, error) {
	if err := s.alive(ctx); err != nil {
		return nil, err
	}
	opts := playwright.PageGotoOptions{Timeout: ms(timeout)}
	switch wait {
	case WaitNetworkIdle:
		opts.WaitUntil = playwright.WaitUntilStateNetworkidle
	case WaitDOMContentLoaded:
		opts.WaitUntil = playwright.WaitUntilStateDomcontentloaded
	default:
		opts.WaitUntil = playwright.WaitUntilStateLoad
	}

	resp, err := s.page.Goto(url, opts)
	if err != nil {
		return nil, pwError("navigating to "+url, timeout, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("navigating to %s: no document response", url)
	}
	return &Response{URL: resp.URL(), Status: resp.Status(), StatusText: resp.StatusText()}, nil
}

func (s *playwrightSession) SetFiles(ctx context.Context, sel Selector, paths ...string) error {
	if err := s.alive(ctx); err != nil {
		return err
	}
	abs := make([]string, len(paths))
	for i, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}
		abs[i] = a
	}
	err := s.locator(sel).SetInputFiles(abs, playwright.LocatorSetInputFilesOptions{Timeout: ms(defaultActionTimeout)})
	if err != nil {
		return pwError("set files on "+sel.String(), defaultActionTimeout, err)
	}
	return nil
}

func (s *playwrightSession) Click(ctx context.Context, sel Selector) error {
	if err := s.alive(ctx); err != nil {
		return err
	}
	if err := s.locator(sel).First().Click(playwright.LocatorClickOptions{Timeout: ms(defaultActionTimeout)}); err != nil {
		return pwError("click "+sel.String(), defaultActionTimeout, err)
	}
	return nil
}

func (s *playwrightSession) Count(ctx context.Context, sel Selector) (int, error) {
	if err := s.alive(ctx); err != nil {
		return 0, err
	}
	n, err := s.locator(sel).Count()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", sel, err)
	}
	return n, nil
}

func (s *playwrightSession) WaitForSelector(ctx context.Context, sel Selector, timeout time.Duration) error {
	if err := s.alive(ctx); err != nil {
		return err
	}
	err := s.locator(sel).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: ms(timeout),
	})
	if err != nil {
		return pwError("waiting for "+sel.String(), timeout, err)
	}
	return nil
}

func (s *playwrightSession) WaitForText(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	if err := s.alive(ctx); err != nil {
		return err
	}
	err := s.page.GetByText(pattern).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: ms(timeout),
	})
	if err != nil {
		return pwError(fmt.Sprintf("waiting for text /%s/", pattern), timeout, err)
	}
	return nil
}

func (s *playwrightSession) Content(ctx context.Context) (string, error) {
	if err := s.alive(ctx); err != nil {
		return "", err
	}
	html, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("reading page content: %w", err)
	}
	return html, nil
}

func (s *playwrightSession) Screenshot(ctx context.Context, path string) error {
	if err := s.alive(ctx); err != nil {
		return err
	}
	buf, err := s.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
	if err != nil {
		return fmt.Errorf("capturing screenshot: %w", err)
	}
	return writeArtifact(path, buf)
}

func (s *playwrightSession) Evaluate(ctx context.Context, expression string) ([]byte, error) {
	if err := s.alive(ctx); err != nil {
		return nil, err
	}
	v, err := s.page.Evaluate(expression)
	if err != nil {
		return nil, fmt.Errorf("evaluating script: %w", err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding script result: %w", err)
	}
	return raw, nil
}

func (s *playwrightSession) OnConsole(fn func(ConsoleMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = append(s.console, fn)
}

func (s *playwrightSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.console = nil
	s.mu.Unlock()

	var errs []error
	if err := s.context.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		if s.logf != nil {
			s.logf("closing chromium: %v", err)
		}
		return fmt.Errorf("closing chromium: %w", err)
	}
	return nil
}
