package output

import "github.com/Jython1415/mathnasium-session-notes/internal/oracle"

// FromOracle converts a validator report into its JSON shape.
func FromOracle(extractor string, r oracle.Report) *Validation {
	v := &Validation{
		Extractor: extractor,
		Passed:    r.Passed,
		Total:     len(r.Verdicts),
		Failed:    r.FailedCount,
		Missing:   r.Missing,
		Unjudged:  r.Unjudged,
	}
	for _, verdict := range r.Verdicts {
		c := CaseResult{
			Row:      verdict.Entry.RowID,
			Set:      string(verdict.Set),
			Expected: string(verdict.Entry.Category),
			Bound:    verdict.Entry.Bound(),
			Passed:   verdict.Passed,
			Reason:   string(verdict.Reason),
		}
		if obs := verdict.Observed; obs != nil {
			conf := obs.Confidence
			c.Observed = string(obs.Category)
			c.Confidence = &conf
		}
		v.Cases = append(v.Cases, c)
	}
	return v
}

// SkippedValidation records a validation stage that did not run.
func SkippedValidation(extractor string, cases int) *Validation {
	return &Validation{Extractor: extractor, Skipped: true, Passed: true, Total: cases}
}
