package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.yaml.in/yaml/v3"

	"github.com/Jython1415/mathnasium-session-notes/internal/oracle"
)

// File reads results exported to disk: JSON, YAML or an XLSX sheet.
type File struct {
	path string
}

// NewFile returns a File extractor for path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Name implements Extractor.
func (f *File) Name() string { return KindFile }

// Path returns the file the extractor reads.
func (f *File) Path() string { return f.path }

// Extract implements Extractor. The page source is ignored.
func (f *File) Extract(ctx context.Context, _ Source) ([]oracle.Observed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadFile(f.path)
}

// ReadFile loads Observed Results from path, choosing the format by extension.
func ReadFile(path string) ([]oracle.Observed, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading results: %w", err)
		}
		return decodeJSON(data)
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading results: %w", err)
		}
		return decodeYAML(data)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported results file %q (want .json, .yaml or .xlsx)", ext)
	}
}

func decodeYAML(data []byte) ([]oracle.Observed, error) {
	var recs []record
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&recs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoResults
		}
		return nil, fmt.Errorf("decoding results: %w", err)
	}
	return fromRecords(recs)
}

// readXLSX reads the first sheet. Row 1 is a header naming the row,
// category (or reason) and confidence columns, in any order.
func readXLSX(path string) ([]oracle.Observed, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening results workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoResults
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, ErrNoResults
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "reason" {
			if _, ok := cols["category"]; ok {
				continue
			}
			name = "category"
		}
		cols[name] = i
	}
	for _, need := range []string{"row", "category", "confidence"} {
		if _, ok := cols[need]; !ok {
			return nil, fmt.Errorf("sheet %s: missing %q column", sheets[0], need)
		}
	}

	cell := func(r []string, name string) string {
		if i := cols[name]; i < len(r) {
			return strings.TrimSpace(r[i])
		}
		return ""
	}

	var out []oracle.Observed
	for i, r := range rows[1:] {
		rowText := cell(r, "row")
		if rowText == "" {
			continue
		}
		line := i + 2
		row, err := strconv.Atoi(rowText)
		if err != nil {
			return nil, fmt.Errorf("sheet row %d: row %q: %w", line, rowText, err)
		}
		conf, ok, err := parseConfidence(cell(r, "confidence"))
		if err != nil {
			return nil, fmt.Errorf("sheet row %d: confidence: %w", line, err)
		}
		o, err := build(row, cell(r, "category"), conf, ok)
		if err != nil {
			return nil, fmt.Errorf("sheet row %d: %w", line, err)
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		return nil, ErrNoResults
	}
	return out, nil
}
