package oracle

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	o, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	if got := len(o.Positive()); got != 7 {
		t.Errorf("positive entries = %d, want 7", got)
	}
	if got := len(o.Negative()); got != 5 {
		t.Errorf("negative entries = %d, want 5", got)
	}
	if got := o.MaxRow(); got != 50 {
		t.Errorf("MaxRow() = %d, want 50", got)
	}

	pos := o.Positive()
	if pos[0].RowID != 5 || pos[0].Category != CategoryMissingSummary || pos[0].Bound() != 0.4 {
		t.Errorf("first positive entry = %+v", pos[0])
	}
	for _, e := range o.Negative() {
		if e.Set() != SetNegative || e.Category != CategoryNone {
			t.Errorf("negative entry %d: set=%s category=%s", e.RowID, e.Set(), e.Category)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty",
			yaml:    "",
			wantErr: "empty fixture",
		},
		{
			name:    "no entries",
			yaml:    "positive: []\nnegative: []\n",
			wantErr: "no entries",
		},
		{
			name:    "duplicate row across sets",
			yaml:    "positive:\n  - {row: 5, category: missing_summary, min_confidence: 0.4}\nnegative:\n  - {row: 5, category: none, max_confidence: 0.4}\n",
			wantErr: "duplicate row",
		},
		{
			name:    "zero row",
			yaml:    "positive:\n  - {row: 0, category: missing_summary, min_confidence: 0.4}\n",
			wantErr: "row must be >= 1",
		},
		{
			name:    "both bounds",
			yaml:    "positive:\n  - {row: 1, category: other, min_confidence: 0.4, max_confidence: 0.9}\n",
			wantErr: "exactly one of",
		},
		{
			name:    "no bound",
			yaml:    "negative:\n  - {row: 1, category: none}\n",
			wantErr: "exactly one of",
		},
		{
			name:    "positive with max bound",
			yaml:    "positive:\n  - {row: 1, category: other, max_confidence: 0.4}\n",
			wantErr: "positive entries take min_confidence",
		},
		{
			name:    "positive expecting none",
			yaml:    "positive:\n  - {row: 1, category: none, min_confidence: 0.4}\n",
			wantErr: "cannot expect category none",
		},
		{
			name:    "negative with category",
			yaml:    "negative:\n  - {row: 1, category: other, max_confidence: 0.4}\n",
			wantErr: "must expect category none",
		},
		{
			name:    "unknown category",
			yaml:    "positive:\n  - {row: 1, category: spelling, min_confidence: 0.4}\n",
			wantErr: `unknown category "spelling"`,
		},
		{
			name:    "bound out of range",
			yaml:    "positive:\n  - {row: 1, category: other, min_confidence: 1.5}\n",
			wantErr: "outside [0,1]",
		},
		{
			name:    "bound NaN",
			yaml:    "positive:\n  - {row: 1, category: other, min_confidence: .nan}\n",
			wantErr: "outside [0,1]",
		},
		{
			name:    "bound infinite",
			yaml:    "negative:\n  - {row: 1, category: none, max_confidence: .inf}\n",
			wantErr: "outside [0,1]",
		},
		{
			name:    "unknown field",
			yaml:    "positive:\n  - {row: 1, category: other, min_confidence: 0.4, weight: 2}\n",
			wantErr: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidOracle) {
				t.Errorf("error %v does not wrap ErrInvalidOracle", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cases.yaml")
	body := "positive:\n  - {row: 3, category: name_mismatch, min_confidence: 0.5}\n  - {row: 1, category: other, min_confidence: 0.2}\nnegative:\n  - {row: 2, category: none, max_confidence: 0.3}\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	o, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if o.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", o.Len())
	}
	// Entries are ordered by row within each set.
	if pos := o.Positive(); pos[0].RowID != 1 || pos[1].RowID != 3 {
		t.Errorf("positive order = %d,%d", pos[0].RowID, pos[1].RowID)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFile_EmptyPathUsesDefault(t *testing.T) {
	o, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile(\"\"): %v", err)
	}
	if o.Len() != 12 {
		t.Errorf("Len() = %d, want 12", o.Len())
	}
}

func TestOracle_IsImmutable(t *testing.T) {
	o, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	pos := o.Positive()
	*pos[0].MinConfidence = 0.99
	pos[0].RowID = 999

	again := o.Positive()
	if again[0].RowID != 5 || again[0].Bound() != 0.4 {
		t.Errorf("mutating a copy changed the oracle: %+v", again[0])
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	o, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	data, err := o.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := Parse(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("Parse(Marshal()): %v\n%s", err, data)
	}
	if back.Len() != o.Len() {
		t.Errorf("round trip lost entries: %d vs %d", back.Len(), o.Len())
	}
}
