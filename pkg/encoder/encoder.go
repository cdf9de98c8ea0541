// Package encoder provides the reversible column transforms stored alongside trained models.
package encoder

import (
	"sort"
	"strconv"

	"github.com/mchmarny/riskcascade/pkg/dataset"
	"github.com/pkg/errors"
)

const (
	TypeLabel   = "label"
	TypeBins    = "bins"
	TypeNumeric = "numeric"
	TypeOneHot  = "onehot"
	TypeOrdinal = "ordinal"
)

// Encoder transforms one raw column into one encoded value per row and decodes class indices back.
type Encoder interface {
	Transform(values []string) ([]float64, error)
	InverseTransform(codes []int) ([]string, error)
}

// FeatureEncoder transforms one raw column into a feature matrix of Width() columns.
type FeatureEncoder interface {
	Transform(values []string) ([][]float64, error)
	Width() int
}

// Label maps each class to its position in Classes.
type Label struct {
	Classes []string

	index map[string]int
}

// NewLabel returns a label encoder over the given classes.
func NewLabel(classes []string) (*Label, error) {
	if len(classes) == 0 {
		return nil, errors.New("label encoder requires at least one class")
	}
	idx := make(map[string]int, len(classes))
	for i, c := range classes {
		if _, ok := idx[c]; ok {
			return nil, errors.Errorf("duplicate class: %q", c)
		}
		idx[c] = i
	}
	return &Label{Classes: classes, index: idx}, nil
}

func (l *Label) Transform(values []string) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		c, ok := l.index[v]
		if !ok {
			return nil, errors.Errorf("row %d: unseen label %q", i, v)
		}
		out[i] = float64(c)
	}
	return out, nil
}

func (l *Label) InverseTransform(codes []int) ([]string, error) {
	out := make([]string, len(codes))
	for i, c := range codes {
		if c < 0 || c >= len(l.Classes) {
			return nil, errors.Errorf("row %d: class index %d out of range [0,%d)", i, c, len(l.Classes))
		}
		out[i] = l.Classes[c]
	}
	return out, nil
}

// Bins assigns numeric values to the interval they fall in; a value equal to an edge belongs to the upper bin.
type Bins struct {
	Edges  []float64
	Labels []string
}

// NewBins returns a binning encoder. Labels are optional; when set there must be one per bin.
func NewBins(edges []float64, labels []string) (*Bins, error) {
	if len(edges) == 0 {
		return nil, errors.New("bins encoder requires at least one edge")
	}
	if !sort.Float64sAreSorted(edges) {
		return nil, errors.New("bin edges must be ascending")
	}
	if len(labels) > 0 && len(labels) != len(edges)+1 {
		return nil, errors.Errorf("got %d labels for %d bins", len(labels), len(edges)+1)
	}
	return &Bins{Edges: edges, Labels: labels}, nil
}

func (b *Bins) Transform(values []string) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, err := parse(v)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		out[i] = float64(sort.Search(len(b.Edges), func(j int) bool { return b.Edges[j] > f }))
	}
	return out, nil
}

func (b *Bins) InverseTransform(codes []int) ([]string, error) {
	if len(b.Labels) == 0 {
		return nil, errors.New("bins encoder has no labels to decode")
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		if c < 0 || c >= len(b.Labels) {
			return nil, errors.Errorf("row %d: bin index %d out of range [0,%d)", i, c, len(b.Labels))
		}
		out[i] = b.Labels[c]
	}
	return out, nil
}

// Numeric passes numbers through unchanged.
type Numeric struct{}

func (Numeric) Transform(values []string) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, err := parse(v)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		out[i] = f
	}
	return out, nil
}

func (Numeric) InverseTransform(codes []int) ([]string, error) {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = strconv.Itoa(c)
	}
	return out, nil
}

// OneHot expands a categorical column into one indicator column per category.
type OneHot struct {
	Categories []string

	index map[string]int
}

func NewOneHot(categories []string) (*OneHot, error) {
	if len(categories) == 0 {
		return nil, errors.New("onehot encoder requires at least one category")
	}
	idx := make(map[string]int, len(categories))
	for i, c := range categories {
		idx[c] = i
	}
	return &OneHot{Categories: categories, index: idx}, nil
}

func (o *OneHot) Transform(values []string) ([][]float64, error) {
	out := make([][]float64, len(values))
	for i, v := range values {
		c, ok := o.index[v]
		if !ok {
			return nil, errors.Errorf("row %d: unknown category %q", i, v)
		}
		out[i] = make([]float64, len(o.Categories))
		out[i][c] = 1
	}
	return out, nil
}

func (o *OneHot) Width() int {
	return len(o.Categories)
}

// Ordinal maps each category to its position in Categories as a single feature.
// Unseen categories map to UnknownValue when it is set.
type Ordinal struct {
	Categories   []string
	UnknownValue *float64

	index map[string]int
}

func NewOrdinal(categories []string, unknown *float64) (*Ordinal, error) {
	if len(categories) == 0 {
		return nil, errors.New("ordinal encoder requires at least one category")
	}
	idx := make(map[string]int, len(categories))
	for i, c := range categories {
		if _, ok := idx[c]; ok {
			return nil, errors.Errorf("duplicate category: %q", c)
		}
		idx[c] = i
	}
	return &Ordinal{Categories: categories, UnknownValue: unknown, index: idx}, nil
}

func (o *Ordinal) Transform(values []string) ([][]float64, error) {
	out := make([][]float64, len(values))
	for i, v := range values {
		c, ok := o.index[v]
		switch {
		case ok:
			out[i] = []float64{float64(c)}
		case o.UnknownValue != nil:
			out[i] = []float64{*o.UnknownValue}
		default:
			return nil, errors.Errorf("row %d: unknown category %q", i, v)
		}
	}
	return out, nil
}

func (o *Ordinal) Width() int {
	return 1
}

// Column adapts a single-value Encoder to a FeatureEncoder of width 1.
type Column struct {
	Encoder Encoder
}

func (c Column) Transform(values []string) ([][]float64, error) {
	v, err := c.Encoder.Transform(values)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(v))
	for i := range v {
		out[i] = []float64{v[i]}
	}
	return out, nil
}

func (c Column) Width() int {
	return 1
}

func parse(v string) (float64, error) {
	return dataset.ParseFloat(v)
}
