package oracle

import (
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

var flaggedCategories = []Category{
	CategoryLanguageIssues,
	CategoryMissingSummary,
	CategorySchoolworkNotEmpty,
	CategoryGuardianInInternal,
	CategoryNameMismatch,
	CategoryBehaviorNoStrategy,
	CategoryPoorFitSuggestion,
	CategoryOther,
	CategoryAPIFailure,
}

func drawConfidence(t *rapid.T, label string) float64 {
	// Hundredths keep boundary hits frequent.
	return float64(rapid.IntRange(0, 100).Draw(t, label)) / 100
}

func TestProperty_PositivePassRequiresMinConfidence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bound := drawConfidence(t, "bound")
		conf := drawConfidence(t, "confidence")
		cat := rapid.SampledFrom(flaggedCategories).Draw(t, "category")

		o, err := New([]Entry{positive(1, CategoryOther, bound)}, nil)
		if err != nil {
			t.Fatal(err)
		}
		report := Validate(o, []Observed{{RowID: 1, Category: cat, Confidence: conf}}, Options{})

		if got, want := report.Verdicts[0].Passed, conf >= bound; got != want {
			t.Fatalf("bound=%.2f confidence=%.2f: passed=%v want %v", bound, conf, got, want)
		}
	})
}

func TestProperty_NegativeFailsOnlyAboveMaxConfidence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bound := drawConfidence(t, "bound")
		conf := drawConfidence(t, "confidence")
		flagged := rapid.Bool().Draw(t, "flagged")
		cat := CategoryNone
		if flagged {
			cat = rapid.SampledFrom(flaggedCategories).Draw(t, "category")
		}

		o, err := New(nil, []Entry{negative(1, bound)})
		if err != nil {
			t.Fatal(err)
		}
		report := Validate(o, []Observed{{RowID: 1, Category: cat, Confidence: conf}}, Options{})

		wantFail := flagged && conf > bound
		if got := !report.Verdicts[0].Passed; got != wantFail {
			t.Fatalf("flagged=%v bound=%.2f confidence=%.2f: failed=%v want %v", flagged, bound, conf, got, wantFail)
		}
	})
}

// genCase draws an oracle plus a set of observations that may or may not
// cover it.
func genCase(t *rapid.T) (*Oracle, []Observed) {
	n := rapid.IntRange(1, 12).Draw(t, "entries")
	var pos, neg []Entry
	var observed []Observed
	for row := 1; row <= n; row++ {
		bound := drawConfidence(t, "bound")
		if rapid.Bool().Draw(t, "positive") {
			pos = append(pos, positive(row, rapid.SampledFrom(flaggedCategories).Draw(t, "expected"), bound))
		} else {
			neg = append(neg, negative(row, bound))
		}
		if rapid.IntRange(0, 9).Draw(t, "observe") > 0 {
			cat := CategoryNone
			if rapid.Bool().Draw(t, "obsFlagged") {
				cat = rapid.SampledFrom(flaggedCategories).Draw(t, "obsCategory")
			}
			observed = append(observed, Observed{RowID: row, Category: cat, Confidence: drawConfidence(t, "obsConfidence")})
		}
	}
	o, err := New(pos, neg)
	if err != nil {
		t.Fatal(err)
	}
	return o, observed
}

func TestProperty_OverallIsConjunction(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		o, observed := genCase(t)
		exact := rapid.Bool().Draw(t, "exact")
		report := Validate(o, observed, Options{ExactCategory: exact})

		all := true
		for _, v := range report.Verdicts {
			all = all && v.Passed
		}
		if report.Passed != all {
			t.Fatalf("report.Passed=%v but conjunction=%v", report.Passed, all)
		}
		if len(report.Verdicts) != o.Len() {
			t.Fatalf("verdicts=%d entries=%d", len(report.Verdicts), o.Len())
		}
	})
}

func TestProperty_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		o, observed := genCase(t)
		exact := rapid.Bool().Draw(t, "exact")

		first := Validate(o, observed, Options{ExactCategory: exact})
		second := Validate(o, observed, Options{ExactCategory: exact})
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("validation is not repeatable:\n%+v\n%+v", first, second)
		}
	})
}
