// Package extract turns a finished review page (or an exported results
// file) into Observed Results for the Case Oracle validator.
package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Jython1415/mathnasium-session-notes/internal/oracle"
)

var (
	// ErrDisabled is returned by the none extractor. Callers record the
	// validation stage as skipped.
	ErrDisabled = errors.New("results extraction disabled")
	// ErrNoResults means the source held no per-row results.
	ErrNoResults = errors.New("no results found")
	// ErrMissingConfidence means a flagged result carried no confidence.
	ErrMissingConfidence = errors.New("missing confidence")
)

// Source is what an extractor reads from: the serialized DOM of the results
// page and a hook that evaluates JavaScript in it. Eval may be nil offline.
type Source struct {
	HTML string
	Eval func(ctx context.Context, expression string) ([]byte, error)
}

// Extractor produces Observed Results.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, src Source) ([]oracle.Observed, error)
}

// Extractor names accepted by New.
const (
	KindNone   = "none"
	KindDOM    = "dom"
	KindScript = "script"
	KindFile   = "file"
)

// Kinds lists the valid extractor names.
var Kinds = []string{KindNone, KindDOM, KindScript, KindFile}

// Options parameterize New.
type Options struct {
	DOMSelector string
	Script      string
	File        string
}

// New returns the extractor with the given name.
func New(kind string, opts Options) (Extractor, error) {
	switch strings.ToLower(kind) {
	case KindNone, "":
		return None{}, nil
	case KindDOM:
		return NewDOM(opts.DOMSelector), nil
	case KindScript:
		return NewScript(opts.Script), nil
	case KindFile:
		if opts.File == "" {
			return nil, errors.New("file extractor needs e2e.observed_file")
		}
		return NewFile(opts.File), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q (want %s)", kind, strings.Join(Kinds, "|"))
	}
}

// None performs no extraction.
type None struct{}

// Name implements Extractor.
func (None) Name() string { return KindNone }

// Extract always returns ErrDisabled.
func (None) Extract(context.Context, Source) ([]oracle.Observed, error) {
	return nil, ErrDisabled
}

// record is the loosely typed shape shared by the script and file formats.
type record struct {
	Row        any    `json:"row" yaml:"row"`
	Category   string `json:"category" yaml:"category"`
	Reason     string `json:"reason" yaml:"reason"`
	Confidence any    `json:"confidence" yaml:"confidence"`
}

func (r record) observed() (oracle.Observed, error) {
	row, err := toInt(r.Row)
	if err != nil {
		return oracle.Observed{}, fmt.Errorf("row: %w", err)
	}
	cat := r.Category
	if cat == "" {
		cat = r.Reason
	}
	conf, ok, err := toConfidence(r.Confidence)
	if err != nil {
		return oracle.Observed{}, fmt.Errorf("row %d confidence: %w", row, err)
	}
	return build(row, cat, conf, ok)
}

// build normalizes and checks one observation. A flagged row must carry a
// confidence; an unflagged row without one is read as 0.
func build(row int, category string, confidence float64, hasConfidence bool) (oracle.Observed, error) {
	if row < 1 {
		return oracle.Observed{}, fmt.Errorf("row %d: row must be >= 1", row)
	}
	cat := oracle.Category(strings.ToLower(strings.TrimSpace(category)))
	if cat == "" {
		cat = oracle.CategoryNone
	}
	if !cat.Valid() {
		return oracle.Observed{}, fmt.Errorf("row %d: unknown category %q", row, category)
	}
	if !hasConfidence {
		if cat.Flagged() {
			return oracle.Observed{}, fmt.Errorf("row %d: %w for flagged category %s", row, ErrMissingConfidence, cat)
		}
		confidence = 0
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return oracle.Observed{}, fmt.Errorf("row %d: confidence %v outside [0,1]", row, confidence)
	}
	return oracle.Observed{RowID: row, Category: cat, Confidence: confidence}, nil
}

func fromRecords(recs []record) ([]oracle.Observed, error) {
	if len(recs) == 0 {
		return nil, ErrNoResults
	}
	out := make([]oracle.Observed, 0, len(recs))
	for i, r := range recs {
		o, err := r.observed()
		if err != nil {
			return nil, fmt.Errorf("result %d: %w", i+1, err)
		}
		out = append(out, o)
	}
	return out, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	case nil:
		return 0, errors.New("missing")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// toConfidence converts a decoded confidence. ok is false when the value is
// absent.
func toConfidence(v any) (conf float64, ok bool, err error) {
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case uint64:
		return float64(n), true, nil
	case string:
		return parseConfidence(n)
	case nil:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("unsupported type %T", v)
	}
}

// parseConfidence accepts "0.85" and "85%". ok is false for an empty string.
func parseConfidence(s string) (conf float64, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	if pct, found := strings.CutSuffix(s, "%"); found {
		f, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil {
			return 0, false, err
		}
		return f / 100, true, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return f, true, nil
}
