package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/goccy/go-json"
)

const (
	pollInterval         = 250 * time.Millisecond
	defaultActionTimeout = 30 * time.Second
)

// ChromedpDriver launches a fresh Chrome process per session through the
// DevTools protocol.
type ChromedpDriver struct {
	opts Options
}

// NewChromedp creates a chromedp-backed Driver.
func NewChromedp(opts Options) *ChromedpDriver {
	return &ChromedpDriver{opts: opts}
}

// Name implements Driver.
func (d *ChromedpDriver) Name() string { return EngineChromedp }

// Close implements Driver. Each session owns its own browser process.
func (d *ChromedpDriver) Close() error { return nil }

// Launch starts a browser and returns a session bound to its first tab.
func (d *ChromedpDriver) Launch(ctx context.Context) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if d.opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.Flag("no-sandbox", true))
	}
	if d.opts.WindowWidth > 0 && d.opts.WindowHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(d.opts.WindowWidth, d.opts.WindowHeight))
	}
	if d.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(d.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)

	var ctxOpts []chromedp.ContextOption
	if d.opts.Logf != nil {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(d.opts.Logf))
	}
	browserCtx, cancel := chromedp.NewContext(allocCtx, ctxOpts...)

	// Run with no actions starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	s := &chromedpSession{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}
	chromedp.ListenTarget(browserCtx, s.onEvent)
	return s, nil
}

type chromedpSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu      sync.Mutex
	console []func(ConsoleMessage)
	idle    *idleWatch
	closed  bool
}

// loaderKey identifies one document load in one frame.
type loaderKey struct {
	frame  cdp.FrameID
	loader cdp.LoaderID
}

// idleWatch records networkIdle lifecycle events per document load. Events
// from other frames or earlier documents are kept but never satisfy a wait
// for a different load.
type idleWatch struct {
	mu     sync.Mutex
	seen   map[loaderKey]bool
	notify chan struct{}
}

func newIdleWatch() *idleWatch {
	return &idleWatch{seen: make(map[loaderKey]bool), notify: make(chan struct{}, 1)}
}

func (w *idleWatch) add(k loaderKey) {
	w.mu.Lock()
	w.seen[k] = true
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *idleWatch) has(k loaderKey) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen[k]
}

// wait blocks until networkIdle was seen for k.
func (w *idleWatch) wait(ctx context.Context, k loaderKey) error {
	for {
		if w.has(k) {
			return nil
		}
		select {
		case <-w.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// onEvent runs on chromedp's event goroutine and must not block.
func (s *chromedpSession) onEvent(ev any) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		msg := ConsoleMessage{Type: string(e.Type), Text: consoleText(e.Args)}
		s.mu.Lock()
		handlers := append(([]func(ConsoleMessage))(nil), s.console...)
		s.mu.Unlock()
		for _, h := range handlers {
			h(msg)
		}
	case *page.EventLifecycleEvent:
		if e.Name != "networkIdle" {
			return
		}
		s.mu.Lock()
		w := s.idle
		s.mu.Unlock()
		if w != nil {
			w.add(loaderKey{frame: e.FrameID, loader: e.LoaderID})
		}
	}
}

func consoleText(args []*runtime.RemoteObject) string {
	var b []byte
	for i, arg := range args {
		if i > 0 {
			b = append(b, ' ')
		}
		switch {
		case len(arg.Value) > 0:
			var str string
			if err := json.Unmarshal(arg.Value, &str); err == nil {
				b = append(b, str...)
			} else {
				b = append(b, arg.Value...)
			}
		case arg.Description != "":
			b = append(b, arg.Description...)
		default:
			b = append(b, string(arg.Type)...)
		}
	}
	return string(b)
}

func (s *chromedpSession) alive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// runCtx derives a context from the browser context that also ends when
// parent is cancelled.
func (s *chromedpSession) runCtx(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(s.ctx)
	}
	stop := context.AfterFunc(parent, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// wrap classifies a failure of an action run under rctx.
func wrap(parent, rctx context.Context, what string, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s: %w", what, parent.Err())
	}
	if errors.Is(rctx.Err(), context.DeadlineExceeded) {
		return timeoutError(what, timeout, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *chromedpSession) Navigate(ctx context.Context, url string, wait WaitPolicy, timeout time.Duration) (*Response, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	rctx, cancel := s.runCtx(ctx, timeout)
	defer cancel()

	what := "navigating to " + url
	var idle *idleWatch
	if wait == WaitNetworkIdle {
		idle = newIdleWatch()
		s.mu.Lock()
		s.idle = idle
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			s.idle = nil
			s.mu.Unlock()
		}()
		if err := chromedp.Run(rctx, page.SetLifecycleEventsEnabled(true)); err != nil {
			return nil, wrap(ctx, rctx, what, timeout, err)
		}
	}

	resp, err := chromedp.RunResponse(rctx, chromedp.Navigate(url))
	if err != nil {
		return nil, wrap(ctx, rctx, what, timeout, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%s: no document response", what)
	}
	if idle != nil {
		what += " (waiting for network idle)"
		key, err := mainLoader(rctx)
		if err != nil {
			return nil, wrap(ctx, rctx, what, timeout, err)
		}
		if err := idle.wait(rctx, key); err != nil {
			return nil, wrap(ctx, rctx, what, timeout, err)
		}
	}
	return &Response{URL: resp.URL, Status: int(resp.Status), StatusText: resp.StatusText}, nil
}

// mainLoader returns the main frame and the loader of its current document.
func mainLoader(ctx context.Context) (loaderKey, error) {
	var key loaderKey
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		key = loaderKey{frame: tree.Frame.ID, loader: tree.Frame.LoaderID}
		return nil
	}))
	if err != nil {
		return loaderKey{}, fmt.Errorf("reading frame tree: %w", err)
	}
	return key, nil
}

func (s *chromedpSession) SetFiles(ctx context.Context, sel Selector, paths ...string) error {
	if err := s.alive(); err != nil {
		return err
	}
	if sel.Text != "" {
		return fmt.Errorf("set files on %s: text selectors are not supported for file inputs", sel)
	}
	abs := make([]string, len(paths))
	for i, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}
		abs[i] = a
	}

	rctx, cancel := s.runCtx(ctx, defaultActionTimeout)
	defer cancel()
	err := chromedp.Run(rctx,
		chromedp.WaitReady(sel.Query, chromedp.ByQuery),
		chromedp.SetUploadFiles(sel.Query, abs, chromedp.ByQuery),
	)
	if err != nil {
		return wrap(ctx, rctx, "set files on "+sel.String(), defaultActionTimeout, err)
	}
	return nil
}

func (s *chromedpSession) Click(ctx context.Context, sel Selector) error {
	if err := s.alive(); err != nil {
		return err
	}
	rctx, cancel := s.runCtx(ctx, defaultActionTimeout)
	defer cancel()

	what := "click " + sel.String()
	if sel.Text == "" {
		if err := chromedp.Run(rctx, chromedp.Click(sel.Query, chromedp.ByQuery)); err != nil {
			return wrap(ctx, rctx, what, defaultActionTimeout, err)
		}
		return nil
	}

	expr := fmt.Sprintf(`(() => { const el = %s[0]; if (!el) return false; el.click(); return true; })()`, matchExpr(sel))
	if err := s.poll(rctx, expr, isTrue); err != nil {
		return wrap(ctx, rctx, what, defaultActionTimeout, err)
	}
	return nil
}

func (s *chromedpSession) Count(ctx context.Context, sel Selector) (int, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	rctx, cancel := s.runCtx(ctx, defaultActionTimeout)
	defer cancel()

	var n int
	if err := chromedp.Run(rctx, chromedp.Evaluate(matchExpr(sel)+".length", &n)); err != nil {
		return 0, wrap(ctx, rctx, "count "+sel.String(), defaultActionTimeout, err)
	}
	return n, nil
}

func (s *chromedpSession) WaitForSelector(ctx context.Context, sel Selector, timeout time.Duration) error {
	if err := s.alive(); err != nil {
		return err
	}
	rctx, cancel := s.runCtx(ctx, timeout)
	defer cancel()

	var err error
	if sel.Text == "" {
		err = chromedp.Run(rctx, chromedp.WaitReady(sel.Query, chromedp.ByQuery))
	} else {
		err = s.poll(rctx, matchExpr(sel)+".length > 0", isTrue)
	}
	if err != nil {
		return wrap(ctx, rctx, "waiting for "+sel.String(), timeout, err)
	}
	return nil
}

func (s *chromedpSession) WaitForText(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	if err := s.alive(); err != nil {
		return err
	}
	rctx, cancel := s.runCtx(ctx, timeout)
	defer cancel()

	const expr = `document.body ? document.body.innerText : ""`
	err := s.poll(rctx, expr, func(raw []byte) bool {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return false
		}
		return pattern.MatchString(text)
	})
	if err != nil {
		return wrap(ctx, rctx, fmt.Sprintf("waiting for text /%s/", pattern), timeout, err)
	}
	return nil
}

func (s *chromedpSession) Content(ctx context.Context) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	rctx, cancel := s.runCtx(ctx, defaultActionTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(rctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", wrap(ctx, rctx, "reading page content", defaultActionTimeout, err)
	}
	return html, nil
}

func (s *chromedpSession) Screenshot(ctx context.Context, path string) error {
	if err := s.alive(); err != nil {
		return err
	}
	rctx, cancel := s.runCtx(ctx, defaultActionTimeout)
	defer cancel()

	var buf []byte
	// Quality 100 selects PNG encoding.
	if err := chromedp.Run(rctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return wrap(ctx, rctx, "capturing screenshot", defaultActionTimeout, err)
	}
	return writeArtifact(path, buf)
}

func (s *chromedpSession) Evaluate(ctx context.Context, expression string) ([]byte, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	rctx, cancel := s.runCtx(ctx, defaultActionTimeout)
	defer cancel()

	var raw []byte
	if err := chromedp.Run(rctx, chromedp.Evaluate(expression, &raw)); err != nil {
		return nil, wrap(ctx, rctx, "evaluating script", defaultActionTimeout, err)
	}
	return raw, nil
}

func (s *chromedpSession) OnConsole(fn func(ConsoleMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = append(s.console, fn)
}

func (s *chromedpSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.console = nil
	s.mu.Unlock()

	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing chrome: %w", err)
	}
	return nil
}

// poll evaluates expr until check accepts its JSON result or ctx ends.
func (s *chromedpSession) poll(ctx context.Context, expr string, check func([]byte) bool) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		var raw []byte
		if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &raw)); err != nil {
			return err
		}
		if check(raw) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func isTrue(raw []byte) bool {
	return string(raw) == "true"
}

// matchExpr builds a JS expression yielding the array of elements matching sel.
func matchExpr(sel Selector) string {
	q := jsString(sel.Query)
	if sel.Text == "" {
		return fmt.Sprintf("Array.from(document.querySelectorAll(%s))", q)
	}
	return fmt.Sprintf("Array.from(document.querySelectorAll(%s)).filter(e => (e.innerText || e.textContent || '').includes(%s))", q, jsString(sel.Text))
}

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func writeArtifact(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
