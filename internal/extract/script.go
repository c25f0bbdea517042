package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/Jython1415/mathnasium-session-notes/internal/oracle"
)

// DefaultScript reads results the page publishes on window.
const DefaultScript = "JSON.stringify(window.__reviewResults || [])"

// Script evaluates a JavaScript expression in the page. The expression must
// yield an array of {row, category, confidence} objects, either directly or
// as a JSON string.
type Script struct {
	expression string
}

// NewScript returns a Script extractor; an empty expression uses DefaultScript.
func NewScript(expression string) *Script {
	if strings.TrimSpace(expression) == "" {
		expression = DefaultScript
	}
	return &Script{expression: expression}
}

// Name implements Extractor.
func (s *Script) Name() string { return KindScript }

// Extract implements Extractor.
func (s *Script) Extract(ctx context.Context, src Source) ([]oracle.Observed, error) {
	if src.Eval == nil {
		return nil, errors.New("script extractor needs a live page")
	}
	raw, err := src.Eval(ctx, s.expression)
	if err != nil {
		return nil, fmt.Errorf("evaluating results script: %w", err)
	}
	return decodeJSON(raw)
}

// decodeJSON accepts an array of records or a JSON string holding one.
func decodeJSON(raw []byte) ([]oracle.Observed, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = []byte(encoded)
	}
	if s := strings.TrimSpace(string(raw)); s == "" || s == "null" {
		return nil, ErrNoResults
	}
	var recs []record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("decoding results: %w", err)
	}
	return fromRecords(recs)
}
