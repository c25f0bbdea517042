// Package output renders suite progress for humans and reports for machines.
package output

import "sync/atomic"

// Mode selects human or machine output.
type Mode string

const (
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

var mode atomic.Value

func init() {
	mode.Store(ModeText)
}

// SetMode sets the global output mode.
func SetMode(json bool) {
	if json {
		mode.Store(ModeJSON)
		return
	}
	mode.Store(ModeText)
}

// GetMode returns the current global output mode.
func GetMode() Mode {
	if v, ok := mode.Load().(Mode); ok {
		return v
	}
	return ModeText
}

// IsJSON returns true if the global output mode is JSON.
func IsJSON() bool {
	return GetMode() == ModeJSON
}
