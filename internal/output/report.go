package output

import (
	"io"
	"time"

	"github.com/goccy/go-json"
)

// Check is one probe or stage outcome in a Report.
type Check struct {
	Name       string  `json:"name"`
	Passed     bool    `json:"passed"`
	Skipped    bool    `json:"skipped,omitempty"`
	Kind       string  `json:"kind,omitempty"`
	Message    string  `json:"message,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// CaseResult is one Case Oracle verdict in a Report.
type CaseResult struct {
	Row        int      `json:"row"`
	Set        string   `json:"set"`
	Expected   string   `json:"expected"`
	Bound      float64  `json:"bound"`
	Observed   string   `json:"observed,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Passed     bool     `json:"passed"`
	Reason     string   `json:"reason,omitempty"`
}

// Validation summarizes the Case Oracle stage.
type Validation struct {
	Extractor string       `json:"extractor"`
	Skipped   bool         `json:"skipped"`
	Passed    bool         `json:"passed"`
	Total     int          `json:"total"`
	Failed    int          `json:"failed"`
	Missing   int          `json:"missing"`
	Unjudged  int          `json:"unjudged"`
	Cases     []CaseResult `json:"cases,omitempty"`
}

// Report is the machine-readable outcome of one suite run.
type Report struct {
	RunID      string      `json:"run_id"`
	Suite      string      `json:"suite"`
	Target     string      `json:"target,omitempty"`
	Engine     string      `json:"engine,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Passed     bool        `json:"passed"`
	Total      int         `json:"total"`
	Failed     int         `json:"failed"`
	Checks     []Check     `json:"checks"`
	Validation *Validation `json:"validation,omitempty"`
	Artifacts  []string    `json:"artifacts,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ErrorPayload is the JSON shape for errors that prevent a report.
type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON encodes v to w.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// WriteError writes a structured error payload carrying the exit code.
func WriteError(w io.Writer, err error, code int) error {
	return WriteJSON(w, ErrorPayload{
		Error:   "error",
		Message: err.Error(),
		Details: map[string]any{"code": code},
	}, true)
}
