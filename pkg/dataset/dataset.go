package dataset

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Dataset is a table of named string columns over a fixed number of rows.
// Columns may be added or replaced; rows are never added, removed or reordered.
type Dataset struct {
	rows  int
	names []string
	cols  map[string][]string
}

// New returns an empty dataset with the given number of rows.
func New(rows int) *Dataset {
	if rows < 0 {
		rows = 0
	}
	return &Dataset{
		rows: rows,
		cols: make(map[string][]string),
	}
}

// FromColumns builds a dataset from parallel name and value slices.
func FromColumns(names []string, values [][]string) (*Dataset, error) {
	if len(names) != len(values) {
		return nil, errors.Errorf("got %d column names for %d columns", len(names), len(values))
	}

	rows := 0
	if len(values) > 0 {
		rows = len(values[0])
	}

	d := New(rows)
	for i, n := range names {
		if d.Has(n) {
			return nil, errors.Errorf("duplicate column: %s", n)
		}
		if err := d.Set(n, values[i]); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Rows returns the number of rows.
func (d *Dataset) Rows() int {
	return d.rows
}

// Columns returns the column names in the order they were added.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Has reports whether the named column exists.
func (d *Dataset) Has(name string) bool {
	_, ok := d.cols[name]
	return ok
}

// Column returns the values of the named column. The returned slice must not be modified.
func (d *Dataset) Column(name string) ([]string, bool) {
	v, ok := d.cols[name]
	return v, ok
}

// Set adds the column at the end of the column order, or replaces its values if it already exists.
func (d *Dataset) Set(name string, values []string) error {
	if name == "" {
		return errors.New("column name required")
	}
	if len(values) != d.rows {
		return errors.Errorf("column %s has %d values, dataset has %d rows", name, len(values), d.rows)
	}

	v := make([]string, len(values))
	copy(v, values)

	if _, ok := d.cols[name]; !ok {
		d.names = append(d.names, name)
	}
	d.cols[name] = v
	return nil
}

// SetFloats stores numeric values using the shortest representation that parses back to the same float.
func (d *Dataset) SetFloats(name string, values []float64) error {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = FormatFloat(v)
	}
	return d.Set(name, s)
}

// Select returns a copy holding only the named columns, in the given order.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	out := New(d.rows)
	for _, n := range names {
		v, ok := d.cols[n]
		if !ok {
			return nil, errors.Errorf("column not found: %s", n)
		}
		if err := out.Set(n, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Floats returns the named columns as a row-major feature matrix.
func (d *Dataset) Floats(names ...string) ([][]float64, error) {
	out := make([][]float64, d.rows)
	for i := range out {
		out[i] = make([]float64, len(names))
	}

	for j, n := range names {
		v, ok := d.cols[n]
		if !ok {
			return nil, errors.Errorf("column not found: %s", n)
		}
		for i, s := range v {
			f, err := ParseFloat(s)
			if err != nil {
				return nil, errors.Wrapf(err, "column %s row %d", n, i)
			}
			out[i][j] = f
		}
	}
	return out, nil
}

// FormatFloat formats v so that ParseFloat returns exactly v.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseFloat parses a numeric cell, ignoring surrounding whitespace.
func ParseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Errorf("not a number: %q", s)
	}
	return f, nil
}
