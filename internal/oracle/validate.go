package oracle

import "fmt"

// Options tune how observations are matched against the oracle.
type Options struct {
	// ExactCategory requires positive observations to carry the expected
	// category instead of any flagged category.
	ExactCategory bool
}

// Report is the outcome of one validation pass.
type Report struct {
	Verdicts []Verdict `json:"verdicts"`
	Passed   bool      `json:"passed"`
	// PassedCount and FailedCount count verdicts.
	PassedCount int `json:"passed_count"`
	FailedCount int `json:"failed_count"`
	// Missing counts entries that had no observation at all.
	Missing int `json:"missing"`
	// Unjudged counts observations for rows the oracle does not mention.
	Unjudged int `json:"unjudged"`
}

// Failures returns the failed verdicts in oracle order.
func (r Report) Failures() []Verdict {
	var out []Verdict
	for _, v := range r.Verdicts {
		if !v.Passed {
			out = append(out, v)
		}
	}
	return out
}

// Summary renders a one-line tally.
func (r Report) Summary() string {
	return fmt.Sprintf("%d/%d cases passed", r.PassedCount, len(r.Verdicts))
}

// Validate judges every oracle entry against the observations. It never stops
// at the first failure. The result depends only on its arguments.
func Validate(o *Oracle, observed []Observed, opts Options) Report {
	byRow := indexObserved(observed)

	var report Report
	judged := make(map[int]bool, o.Len())
	for _, e := range o.positive {
		judged[e.RowID] = true
		report.add(judgePositive(e, byRow, opts))
	}
	for _, e := range o.negative {
		judged[e.RowID] = true
		report.add(judgeNegative(e, byRow))
	}
	for row := range byRow {
		if !judged[row] {
			report.Unjudged++
		}
	}
	report.Passed = report.FailedCount == 0
	return report
}

func (r *Report) add(v Verdict) {
	r.Verdicts = append(r.Verdicts, v)
	if v.Passed {
		r.PassedCount++
		return
	}
	r.FailedCount++
	if v.Reason == ReasonNoMatch {
		r.Missing++
	}
}

// indexObserved keys observations by row. When a row was observed more than
// once the highest-confidence observation wins.
func indexObserved(observed []Observed) map[int]Observed {
	byRow := make(map[int]Observed, len(observed))
	for _, obs := range observed {
		prev, ok := byRow[obs.RowID]
		if !ok || obs.Confidence > prev.Confidence {
			byRow[obs.RowID] = obs
		}
	}
	return byRow
}

func judgePositive(e Entry, byRow map[int]Observed, opts Options) Verdict {
	v := Verdict{Entry: e, Set: SetPositive}
	obs, ok := byRow[e.RowID]
	if !ok {
		v.Reason = ReasonNoMatch
		return v
	}
	v.Observed = &obs

	categoryOK := obs.Category.Flagged()
	if opts.ExactCategory {
		categoryOK = obs.Category == e.Category
	}
	switch {
	case !categoryOK:
		v.Reason = ReasonCategoryMismatch
	case !(obs.Confidence >= *e.MinConfidence):
		v.Reason = ReasonBelowBound
	default:
		v.Passed = true
	}
	return v
}

func judgeNegative(e Entry, byRow map[int]Observed) Verdict {
	v := Verdict{Entry: e, Set: SetNegative}
	obs, ok := byRow[e.RowID]
	if !ok {
		v.Reason = ReasonNoMatch
		return v
	}
	v.Observed = &obs

	if obs.Category.Flagged() && !(obs.Confidence <= *e.MaxConfidence) {
		v.Reason = ReasonAboveBound
		return v
	}
	v.Passed = true
	return v
}
