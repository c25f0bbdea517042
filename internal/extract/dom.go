package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Jython1415/mathnasium-session-notes/internal/oracle"
)

// DefaultDOMSelector matches result rows that carry data attributes.
const DefaultDOMSelector = "[data-row-id]"

// Attributes read from each matched element.
const (
	AttrRowID      = "data-row-id"
	AttrCategory   = "data-category"
	AttrConfidence = "data-confidence"
)

// DOM reads results from data attributes in the serialized page.
type DOM struct {
	selector string
}

// NewDOM returns a DOM extractor; an empty selector uses DefaultDOMSelector.
func NewDOM(selector string) *DOM {
	if strings.TrimSpace(selector) == "" {
		selector = DefaultDOMSelector
	}
	return &DOM{selector: selector}
}

// Name implements Extractor.
func (d *DOM) Name() string { return KindDOM }

// Extract implements Extractor.
func (d *DOM) Extract(ctx context.Context, src Source) ([]oracle.Observed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src.HTML))
	if err != nil {
		return nil, fmt.Errorf("parsing results page: %w", err)
	}

	var (
		out      []oracle.Observed
		firstErr error
	)
	doc.Find(d.selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		o, err := d.row(s)
		if err != nil {
			firstErr = fmt.Errorf("element %d: %w", i+1, err)
			return false
		}
		out = append(out, o)
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no elements match %q", ErrNoResults, d.selector)
	}
	return out, nil
}

func (d *DOM) row(s *goquery.Selection) (oracle.Observed, error) {
	raw, ok := s.Attr(AttrRowID)
	if !ok {
		return oracle.Observed{}, fmt.Errorf("missing %s", AttrRowID)
	}
	row, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return oracle.Observed{}, fmt.Errorf("%s=%q: %w", AttrRowID, raw, err)
	}
	conf, ok, err := parseConfidence(s.AttrOr(AttrConfidence, ""))
	if err != nil {
		return oracle.Observed{}, fmt.Errorf("row %d %s: %w", row, AttrConfidence, err)
	}
	return build(row, s.AttrOr(AttrCategory, ""), conf, ok)
}
