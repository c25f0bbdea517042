// Package oracle holds the Case Oracle: the fixed table of expected per-row
// review outcomes, and the validator that judges observed results against it.
package oracle

import (
	"fmt"
	"sort"
)

// Category is a review reason label emitted by the reviewer.
type Category string

// Known categories. CategoryNone means the row should not be flagged.
const (
	CategoryLanguageIssues     Category = "language_issues"
	CategoryMissingSummary     Category = "missing_summary"
	CategorySchoolworkNotEmpty Category = "schoolwork_not_empty"
	CategoryGuardianInInternal Category = "guardian_in_internal"
	CategoryNameMismatch       Category = "name_mismatch"
	CategoryBehaviorNoStrategy Category = "behavior_no_strategy"
	CategoryPoorFitSuggestion  Category = "poor_fit_suggestion"
	CategoryOther              Category = "other"
	CategoryAPIFailure         Category = "api_failure"
	CategoryNone               Category = "none"
)

var knownCategories = map[Category]bool{
	CategoryLanguageIssues:     true,
	CategoryMissingSummary:     true,
	CategorySchoolworkNotEmpty: true,
	CategoryGuardianInInternal: true,
	CategoryNameMismatch:       true,
	CategoryBehaviorNoStrategy: true,
	CategoryPoorFitSuggestion:  true,
	CategoryOther:              true,
	CategoryAPIFailure:         true,
	CategoryNone:               true,
}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	return knownCategories[c]
}

// Flagged reports whether an observation with this category counts as a raised flag.
func (c Category) Flagged() bool {
	return c != CategoryNone && c != ""
}

// Set identifies which partition of the oracle an entry belongs to.
type Set string

const (
	SetPositive Set = "positive"
	SetNegative Set = "negative"
)

// Entry is one expected outcome. Exactly one of MinConfidence and
// MaxConfidence is set: MinConfidence for positive entries, MaxConfidence for
// negative ones.
type Entry struct {
	RowID         int      `yaml:"row" json:"row"`
	Category      Category `yaml:"category" json:"category"`
	MinConfidence *float64 `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty"`
	MaxConfidence *float64 `yaml:"max_confidence,omitempty" json:"max_confidence,omitempty"`
}

// Set returns the partition the entry belongs to.
func (e Entry) Set() Set {
	if e.MinConfidence != nil {
		return SetPositive
	}
	return SetNegative
}

// Bound returns the entry's confidence bound.
func (e Entry) Bound() float64 {
	if e.MinConfidence != nil {
		return *e.MinConfidence
	}
	if e.MaxConfidence != nil {
		return *e.MaxConfidence
	}
	return 0
}

func (e Entry) String() string {
	if e.Set() == SetPositive {
		return fmt.Sprintf("row %d: %s (confidence >= %.2f)", e.RowID, e.Category, e.Bound())
	}
	return fmt.Sprintf("row %d: %s (confidence <= %.2f)", e.RowID, e.Category, e.Bound())
}

// Oracle is an immutable, validated set of expected outcomes.
type Oracle struct {
	positive []Entry
	negative []Entry
}

// Positive returns a copy of the entries that must be flagged, ordered by row.
func (o *Oracle) Positive() []Entry {
	return append([]Entry(nil), o.positive...)
}

// Negative returns a copy of the entries that must not be flagged, ordered by row.
func (o *Oracle) Negative() []Entry {
	return append([]Entry(nil), o.negative...)
}

// Entries returns all entries, positive first.
func (o *Oracle) Entries() []Entry {
	out := make([]Entry, 0, len(o.positive)+len(o.negative))
	out = append(out, o.positive...)
	return append(out, o.negative...)
}

// Len returns the total number of entries.
func (o *Oracle) Len() int {
	return len(o.positive) + len(o.negative)
}

// MaxRow returns the highest row id referenced by the oracle.
func (o *Oracle) MaxRow() int {
	maxRow := 0
	for _, e := range o.Entries() {
		if e.RowID > maxRow {
			maxRow = e.RowID
		}
	}
	return maxRow
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].RowID < entries[j].RowID })
}

// Observed is the per-row outcome produced by the system under test.
type Observed struct {
	RowID      int      `json:"row" yaml:"row"`
	Category   Category `json:"category" yaml:"category"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
}

// Reason explains a failed verdict.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNoMatch          Reason = "no match found"
	ReasonCategoryMismatch Reason = "category mismatch"
	ReasonBelowBound       Reason = "confidence below bound"
	ReasonAboveBound       Reason = "confidence above bound"
)

// Verdict is the outcome of judging one oracle entry.
type Verdict struct {
	Entry    Entry     `json:"entry"`
	Set      Set       `json:"set"`
	Observed *Observed `json:"observed,omitempty"`
	Passed   bool      `json:"passed"`
	Reason   Reason    `json:"reason,omitempty"`
}

func (v Verdict) String() string {
	if v.Passed {
		return fmt.Sprintf("PASS %s", v.Entry)
	}
	if v.Observed == nil {
		return fmt.Sprintf("FAIL %s: %s", v.Entry, v.Reason)
	}
	return fmt.Sprintf("FAIL %s: %s (observed %s @ %.2f)", v.Entry, v.Reason, v.Observed.Category, v.Observed.Confidence)
}
