package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Marks used in progress lines.
const (
	MarkPass = "✓"
	MarkFail = "✗"
	MarkWarn = "⚠"
)

// Printer writes human progress lines. It is safe for concurrent use.
//
// Output format:
//
//	Test 1: Site loads (HTTP 200)...
//	  ✓ Site loaded successfully (200)
//	  ✗ FAILED: waiting for #file-input: timed out after 10s
type Printer struct {
	mu     sync.Mutex
	out    io.Writer
	start  time.Time
	styled bool

	pass lipgloss.Style
	fail lipgloss.Style
	warn lipgloss.Style
	bold lipgloss.Style
	dim  lipgloss.Style
}

// NewPrinter returns a Printer writing to w. Styling is enabled only when w
// is a terminal and NO_COLOR is unset.
func NewPrinter(w io.Writer) *Printer {
	return newPrinter(w, IsTerminal(w) && os.Getenv("NO_COLOR") == "")
}

// Discard returns a Printer that drops everything.
func Discard() *Printer {
	return newPrinter(io.Discard, false)
}

func newPrinter(w io.Writer, styled bool) *Printer {
	return &Printer{
		out:    w,
		start:  time.Now(),
		styled: styled,
		pass:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		fail:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		bold:   lipgloss.NewStyle().Bold(true),
		dim:    lipgloss.NewStyle().Faint(true),
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *Printer) write(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

// Header prints a bold title followed by a rule.
func (p *Printer) Header(format string, args ...any) {
	title := fmt.Sprintf(format, args...)
	p.write(p.render(p.bold, title))
	p.write(p.render(p.dim, rule(len([]rune(title)))))
}

// Step prints a numbered step line, e.g. "Test 2: Page title...".
func (p *Printer) Step(label string, n int, format string, args ...any) {
	p.write(fmt.Sprintf("%s %d: %s", label, n, fmt.Sprintf(format, args...)))
}

// Pass prints an indented success line.
func (p *Printer) Pass(format string, args ...any) {
	p.write("  " + p.render(p.pass, MarkPass+" "+fmt.Sprintf(format, args...)))
}

// Fail prints an indented failure line.
func (p *Printer) Fail(format string, args ...any) {
	p.write("  " + p.render(p.fail, MarkFail+" "+fmt.Sprintf(format, args...)))
}

// Warn prints an indented warning line.
func (p *Printer) Warn(format string, args ...any) {
	p.write("  " + p.render(p.warn, MarkWarn+" "+fmt.Sprintf(format, args...)))
}

// Info prints an indented informational line.
func (p *Printer) Info(format string, args ...any) {
	p.write("  " + fmt.Sprintf(format, args...))
}

// Line prints an unindented line.
func (p *Printer) Line(format string, args ...any) {
	p.write(fmt.Sprintf(format, args...))
}

// Blank prints an empty line.
func (p *Printer) Blank() {
	p.write("")
}

// Console prints a forwarded browser console message.
func (p *Printer) Console(text string) {
	p.write(p.render(p.dim, "[Browser] ") + text)
}

// Verdict prints the final overall line.
func (p *Printer) Verdict(passed bool, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if passed {
		p.write(p.render(p.pass, MarkPass+" "+msg))
		return
	}
	p.write(p.render(p.fail, MarkFail+" "+msg))
}

// Elapsed prints the time since the printer was created.
func (p *Printer) Elapsed() {
	p.write(p.render(p.dim, fmt.Sprintf("Elapsed: %s", time.Since(p.start).Round(time.Millisecond))))
}

func rule(n int) string {
	if n < 10 {
		n = 10
	}
	b := make([]rune, n)
	for i := range b {
		b[i] = '─'
	}
	return string(b)
}
