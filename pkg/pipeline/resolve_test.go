package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/mchmarny/riskcascade/pkg/artifact"
	"github.com/mchmarny/riskcascade/pkg/dataset"
	"github.com/mchmarny/riskcascade/pkg/encoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func label(t *testing.T, classes ...string) encoder.Encoder {
	t.Helper()
	e, err := encoder.NewLabel(classes)
	require.NoError(t, err)
	return e
}

func multi(t *testing.T, cols ...string) *artifact.Multi {
	t.Helper()
	a := &artifact.Multi{Ref: artifact.Ref{Name: "groupA"}}
	for _, c := range cols {
		a.Encoders = append(a.Encoders, artifact.NamedEncoder{Column: c, Encoder: label(t, "a", "b")})
	}
	return a
}

func TestOutputColumn(t *testing.T) {
	d, err := dataset.FromColumns([]string{"f1", "f2"}, [][]string{{"a"}, {"b"}})
	require.NoError(t, err)

	orders := [][]string{
		{"groupA_Risk", "f1", "f2"},
		{"f1", "groupA_Risk", "f2"},
		{"f2", "f1", "groupA_Risk"},
	}
	for _, o := range orders {
		t.Run(fmt.Sprint(o), func(t *testing.T) {
			out, err := outputColumn(multi(t, o...), d)
			require.NoError(t, err)
			assert.Equal(t, "groupA_Risk", out)
		})
	}
}

func TestOutputColumn_Unresolved(t *testing.T) {
	d, err := dataset.FromColumns([]string{"f1"}, [][]string{{"a"}})
	require.NoError(t, err)

	_, err = outputColumn(multi(t, "f1"), d)
	assert.ErrorIs(t, err, ErrUnresolvedOutputColumn)

	_, err = outputColumn(multi(t, "x", "f1", "y"), d)
	require.ErrorIs(t, err, ErrUnresolvedOutputColumn)
	assert.Contains(t, err.Error(), "x, y")
}

func TestOutputColumn_Declared(t *testing.T) {
	d, err := dataset.FromColumns([]string{"f1"}, [][]string{{"a"}})
	require.NoError(t, err)

	a := multi(t, "x", "f1", "y")
	a.Output = "y"
	out, err := outputColumn(a, d)
	require.NoError(t, err)
	assert.Equal(t, "y", out)

	a.Output = "f1"
	_, err = outputColumn(a, d)
	assert.ErrorIs(t, err, ErrUnresolvedOutputColumn)
}

func TestGroupInputs(t *testing.T) {
	d, err := dataset.FromColumns([]string{"f1", "f2"}, [][]string{{"a", "b"}, {"b", "z"}})
	require.NoError(t, err)

	inputs, problems := groupInputs(multi(t, "groupA_Risk", "f1", "f2", "f3"), d, "groupA_Risk")
	assert.Equal(t, []string{"f1Encoded"}, inputs)
	assert.Equal(t, []string{"0", "1"}, column(t, d, "f1Encoded"))

	require.Len(t, problems, 2)
	assert.Equal(t, "f2", problems[0].column)
	assert.ErrorIs(t, problems[0].err, ErrEncodingFailure)
	assert.Equal(t, "f3", problems[1].column)
	assert.ErrorIs(t, problems[1].err, ErrMissingColumn)
}

const scenarioGroup = `
kind: multi
output: groupA_Risk
model:
  type: tree
  root:
    feature: 0
    threshold: 0.5
    left: {class: 0}
    right: {class: 1}
encoders:
  groupA_Risk: {type: label, classes: [Elevated, Normal]}
  f1: {type: label, classes: [lo, hi]}
  f2: {type: label, classes: [lo, hi]}
`

func TestGroupStage_Scenarios(t *testing.T) {
	tests := []struct {
		name    string
		cols    []string
		partial bool
		infer   bool
		want    []string
		kinds   []string
		failed  bool
	}{
		{
			name: "all inputs",
			cols: []string{"f1", "f2"},
			want: []string{"Elevated", "Normal"},
		},
		{
			name:   "missing input strict",
			cols:   []string{"f1"},
			kinds:  []string{"MissingColumn", "IncompleteInputs"},
			failed: true,
		},
		{
			name:    "missing input partial",
			cols:    []string{"f1"},
			partial: true,
			want:    []string{"Elevated", "Normal"},
			kinds:   []string{"MissingColumn"},
		},
		{
			name:   "missing input inferred output",
			cols:   []string{"f1"},
			infer:  true,
			kinds:  []string{"UnresolvedOutputColumn"},
			failed: true,
		},
		{
			name:  "all inputs inferred output",
			cols:  []string{"f1", "f2"},
			infer: true,
			want:  []string{"Elevated", "Normal"},
		},
		{
			name:    "no inputs",
			cols:    []string{"f3"},
			partial: true,
			kinds:   []string{"MissingColumn", "MissingColumn", "IncompleteInputs"},
			failed:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			doc := scenarioGroup
			if tt.infer {
				doc = strings.Replace(doc, "output: groupA_Risk\n", "", 1)
			}
			f.level2(t, "groupA_model.yaml", doc)
			f.cfg.AllowPartialInputs = tt.partial

			values := make([][]string, len(tt.cols))
			for i := range values {
				values[i] = []string{"lo", "hi"}
			}
			d, err := dataset.FromColumns(tt.cols, values)
			require.NoError(t, err)

			sr := f.runner().runGroupStage(context.Background(), d)
			assert.Equal(t, tt.kinds, nilIfEmpty(kindsOf(sr.Warnings)))
			if tt.failed {
				assert.ErrorIs(t, sr.Err(), ErrStageExhausted)
				assert.False(t, d.Has("groupA_Risk"))
				return
			}
			require.NoError(t, sr.Err())
			assert.Equal(t, []string{"groupA_Risk"}, sr.Outputs)
			assert.Equal(t, tt.want, column(t, d, "groupA_Risk"))
		})
	}
}

func TestGroupStage_DecodeFailure(t *testing.T) {
	f := newFixture(t)
	f.level2(t, "groupA_model.yaml", `
kind: multi
model: {type: tree, root: {class: 4}}
encoders:
  groupA_Risk: {type: label, classes: [Elevated, Normal]}
  incomeRisk: {type: label, classes: [High, Low]}
`)
	d, err := dataset.FromColumns([]string{"incomeRisk"}, [][]string{{"High"}})
	require.NoError(t, err)

	sr := f.runner().runGroupStage(context.Background(), d)
	assert.ErrorIs(t, sr.Err(), ErrStageExhausted)
	assert.Equal(t, []string{"DecodeFailure"}, kindsOf(sr.Warnings))
	assert.False(t, d.Has("groupA_Risk"))
}

func TestFeatureSet(t *testing.T) {
	bins, err := encoder.NewBins([]float64{30, 60}, nil)
	require.NoError(t, err)

	d, err := dataset.FromColumns([]string{"age", "income"}, [][]string{{"25", "61"}, {"1", "2"}})
	require.NoError(t, err)

	a := &artifact.Final{
		Encoders:     artifact.Encoders{{Column: "age", Encoder: bins}},
		FeatureNames: []string{"ageEncoded", "income", "income", "zipEncoded", "Encoded"},
	}
	usable, problems := featureSet(a, d)
	assert.Equal(t, []string{"ageEncoded", "income"}, usable)
	assert.Equal(t, []string{"0", "2"}, column(t, d, "ageEncoded"))
	require.Len(t, problems, 2)
	assert.Equal(t, "zipEncoded", problems[0].column)
	assert.Equal(t, "Encoded", problems[1].column)
}

func TestFeatureSet_SuffixStrippedOnce(t *testing.T) {
	d, err := dataset.FromColumns([]string{"xEncoded"}, [][]string{{"a"}})
	require.NoError(t, err)

	a := &artifact.Final{
		Encoders:     artifact.Encoders{{Column: "xEncoded", Encoder: label(t, "a")}},
		FeatureNames: []string{"xEncodedEncoded"},
	}
	usable, problems := featureSet(a, d)
	assert.Empty(t, problems)
	assert.Equal(t, []string{"xEncodedEncoded"}, usable)
}

func TestSameSet(t *testing.T) {
	tests := []struct {
		a, b []string
		want bool
	}{
		{[]string{"a", "b"}, []string{"b", "a"}, true},
		{[]string{"a", "a", "b"}, []string{"b", "a"}, true},
		{nil, nil, true},
		{[]string{"a"}, []string{"a", "b"}, false},
		{[]string{"a", "b", "c"}, []string{"a", "b"}, false},
		{[]string{"a", "c"}, []string{"a", "b"}, false},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, sameSet(tt.a, tt.b), "%v vs %v", tt.a, tt.b)
	}
}

func TestMissingFrom(t *testing.T) {
	assert.Equal(t, []string{"a", "c"}, missingFrom([]string{"c", "b", "a", "c"}, []string{"b"}))
	assert.Empty(t, missingFrom([]string{"a"}, []string{"a", "b"}))
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
