package oracle

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

//go:embed fixtures/cases.yaml
var defaultFixture []byte

// ErrInvalidOracle is returned when a fixture violates the oracle invariants.
var ErrInvalidOracle = errors.New("invalid case oracle")

// fixture is the on-disk representation of an oracle.
type fixture struct {
	Positive []Entry `yaml:"positive"`
	Negative []Entry `yaml:"negative"`
}

// Default returns the oracle compiled into the binary.
func Default() (*Oracle, error) {
	return Parse(bytes.NewReader(defaultFixture))
}

// LoadFile reads and validates an oracle fixture. An empty path selects the
// built-in fixture.
func LoadFile(path string) (*Oracle, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening oracle %s: %w", path, err)
	}
	defer f.Close()

	o, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("oracle %s: %w", path, err)
	}
	return o, nil
}

// Parse decodes a YAML fixture and validates it.
func Parse(r io.Reader) (*Oracle, error) {
	var fx fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty fixture", ErrInvalidOracle)
		}
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidOracle, err)
	}
	return New(fx.Positive, fx.Negative)
}

// New validates the given entries and builds an Oracle from them.
func New(positive, negative []Entry) (*Oracle, error) {
	var errs []string
	seen := make(map[int]Set)

	check := func(set Set, e Entry) {
		where := fmt.Sprintf("%s row %d", set, e.RowID)
		if e.RowID < 1 {
			errs = append(errs, fmt.Sprintf("%s: row must be >= 1", where))
		}
		if prev, dup := seen[e.RowID]; dup {
			errs = append(errs, fmt.Sprintf("%s: duplicate row (already in %s set)", where, prev))
		}
		seen[e.RowID] = set

		if !e.Category.Valid() {
			errs = append(errs, fmt.Sprintf("%s: unknown category %q", where, e.Category))
		}
		if (e.MinConfidence == nil) == (e.MaxConfidence == nil) {
			errs = append(errs, fmt.Sprintf("%s: exactly one of min_confidence and max_confidence is required", where))
			return
		}
		switch set {
		case SetPositive:
			if e.MinConfidence == nil {
				errs = append(errs, fmt.Sprintf("%s: positive entries take min_confidence", where))
			}
			if e.Category == CategoryNone {
				errs = append(errs, fmt.Sprintf("%s: positive entries cannot expect category none", where))
			}
		case SetNegative:
			if e.MaxConfidence == nil {
				errs = append(errs, fmt.Sprintf("%s: negative entries take max_confidence", where))
			}
			if e.Category != CategoryNone {
				errs = append(errs, fmt.Sprintf("%s: negative entries must expect category none", where))
			}
		}
		if b := e.Bound(); math.IsNaN(b) || b < 0 || b > 1 {
			errs = append(errs, fmt.Sprintf("%s: confidence bound %.3f outside [0,1]", where, b))
		}
	}

	for _, e := range positive {
		check(SetPositive, e)
	}
	for _, e := range negative {
		check(SetNegative, e)
	}
	if len(positive)+len(negative) == 0 {
		errs = append(errs, "no entries")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOracle, strings.Join(errs, "; "))
	}

	o := &Oracle{
		positive: cloneEntries(positive),
		negative: cloneEntries(negative),
	}
	sortEntries(o.positive)
	sortEntries(o.negative)
	return o, nil
}

func cloneEntries(in []Entry) []Entry {
	out := make([]Entry, len(in))
	for i, e := range in {
		c := e
		if e.MinConfidence != nil {
			v := *e.MinConfidence
			c.MinConfidence = &v
		}
		if e.MaxConfidence != nil {
			v := *e.MaxConfidence
			c.MaxConfidence = &v
		}
		out[i] = c
	}
	return out
}

// Marshal renders the oracle back into fixture YAML.
func (o *Oracle) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fixture{Positive: o.positive, Negative: o.negative}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
