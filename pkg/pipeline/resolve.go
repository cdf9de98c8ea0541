package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mchmarny/riskcascade/pkg/artifact"
	"github.com/mchmarny/riskcascade/pkg/dataset"
)

// featureInput builds the one-feature-per-row matrix for a single feature artifact.
func featureInput(a *artifact.Single, d *dataset.Dataset) ([][]float64, error) {
	values, ok := d.Column(a.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, a.Name)
	}

	if a.EncoderX == nil {
		X, err := d.Floats(a.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: raw values of %s: %w", ErrEncodingFailure, a.Name, err)
		}
		return X, nil
	}

	if w := a.EncoderX.Width(); w != 1 {
		return nil, fmt.Errorf("%w: encoder for %s yields %d features per row, model takes 1", ErrEncodingFailure, a.Name, w)
	}
	X, err := a.EncoderX.Transform(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEncodingFailure, a.Name, err)
	}
	return X, nil
}

// outputColumn returns the column a group artifact writes to. A declared output is used as is;
// otherwise it is the only encoder key absent from the dataset.
func outputColumn(a *artifact.Multi, d *dataset.Dataset) (string, error) {
	if a.Output != "" {
		if d.Has(a.Output) {
			return "", fmt.Errorf("%w: declared output %s already exists in the dataset", ErrUnresolvedOutputColumn, a.Output)
		}
		return a.Output, nil
	}

	var candidates []string
	for _, c := range a.Encoders.Columns() {
		if !d.Has(c) {
			candidates = append(candidates, c)
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", fmt.Errorf("%w: every encoder column is already in the dataset", ErrUnresolvedOutputColumn)
	default:
		sort.Strings(candidates)
		return "", fmt.Errorf("%w: ambiguous candidates %s", ErrUnresolvedOutputColumn, strings.Join(candidates, ", "))
	}
}

// groupInputs encodes every non-output encoder column present in the dataset into <col>Encoded.
// Inputs are returned in encoder order; columns that are missing or fail to encode are reported as problems.
func groupInputs(a *artifact.Multi, d *dataset.Dataset, output string) (inputs []string, problems []columnProblem) {
	for _, ne := range a.Encoders {
		if ne.Column == output {
			continue
		}

		values, ok := d.Column(ne.Column)
		if !ok {
			problems = append(problems, columnProblem{
				column: ne.Column,
				err:    fmt.Errorf("%w: input %s for %s", ErrMissingColumn, ne.Column, a.Name),
			})
			continue
		}

		encoded, err := ne.Encoder.Transform(values)
		if err != nil {
			problems = append(problems, columnProblem{
				column: ne.Column,
				err:    fmt.Errorf("%w: %s: %w", ErrEncodingFailure, ne.Column, err),
			})
			continue
		}

		name := ne.Column + EncodedSuffix
		if err := d.SetFloats(name, encoded); err != nil {
			problems = append(problems, columnProblem{column: ne.Column, err: fmt.Errorf("%w: %w", ErrEncodingFailure, err)})
			continue
		}
		inputs = append(inputs, name)
	}
	return inputs, problems
}

type columnProblem struct {
	column string
	err    error
}

// featureSet resolves the final artifact's required features against the dataset, deriving
// <raw>Encoded columns from raw columns when needed. It returns the usable columns in required
// order and the problems for the ones that could not be resolved.
func featureSet(a *artifact.Final, d *dataset.Dataset) (usable []string, problems []columnProblem) {
	for _, col := range unique(a.FeatureNames) {
		if d.Has(col) {
			usable = append(usable, col)
			continue
		}

		raw, ok := strings.CutSuffix(col, EncodedSuffix)
		if !ok || raw == "" || !d.Has(raw) {
			problems = append(problems, columnProblem{column: col, err: fmt.Errorf("%w: %s", ErrMissingColumn, col)})
			continue
		}

		enc, ok := a.Encoders.Get(raw)
		if !ok {
			problems = append(problems, columnProblem{
				column: col,
				err:    fmt.Errorf("%w: no encoder for %s to derive %s", ErrEncodingFailure, raw, col),
			})
			continue
		}

		values, _ := d.Column(raw)
		encoded, err := enc.Transform(values)
		if err == nil {
			err = d.SetFloats(col, encoded)
		}
		if err != nil {
			problems = append(problems, columnProblem{column: col, err: fmt.Errorf("%w: %s: %w", ErrEncodingFailure, raw, err)})
			continue
		}
		usable = append(usable, col)
	}
	return usable, problems
}

// sameSet reports whether a and b hold the same names, ignoring order and duplicates.
func sameSet(a, b []string) bool {
	sa := toSet(a)
	sb := toSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for k := range sa {
		if _, ok := sb[k]; !ok {
			return false
		}
	}
	return true
}

// missingFrom returns the sorted names of required not present in have.
func missingFrom(required, have []string) []string {
	hs := toSet(have)
	var out []string
	for k := range toSet(required) {
		if _, ok := hs[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func toSet(list []string) map[string]struct{} {
	s := make(map[string]struct{}, len(list))
	for _, v := range list {
		s[v] = struct{}{}
	}
	return s
}

func unique(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
