package e2e

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
)

const defaultConsoleBuffer = 64

// Forwarder relays interesting browser console messages to a sink without
// ever blocking the caller. Messages that do not fit the buffer are dropped.
type Forwarder struct {
	markers []string
	ch      chan string
	sink    func(string)
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewForwarder starts a forwarder. Messages containing any marker are
// relayed; with no markers every message is.
func NewForwarder(markers []string, buffer int, sink func(string)) *Forwarder {
	if buffer <= 0 {
		buffer = defaultConsoleBuffer
	}
	f := &Forwarder{
		markers: markers,
		ch:      make(chan string, buffer),
		sink:    sink,
		done:    make(chan struct{}),
	}
	go f.drain()
	return f
}

func (f *Forwarder) drain() {
	defer close(f.done)
	for text := range f.ch {
		f.sink(text)
	}
}

func (f *Forwarder) matches(text string) bool {
	if len(f.markers) == 0 {
		return true
	}
	for _, m := range f.markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Observe is a browser.Session console observer.
func (f *Forwarder) Observe(msg browser.ConsoleMessage) {
	if !f.matches(msg.Text) {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- msg.Text:
	default:
		f.dropped.Add(1)
	}
}

// Close stops accepting messages, waits for the buffer to drain and returns
// the number of dropped messages.
func (f *Forwarder) Close() int64 {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
	f.mu.Unlock()
	<-f.done
	return f.dropped.Load()
}
