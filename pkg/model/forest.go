package model

import (
	"github.com/pkg/errors"
)

// Forest predicts the majority vote of its trees. Ties go to the smallest class index.
type Forest struct {
	trees    []*Tree
	features int
}

func NewForest(roots []*Node, features int) (*Forest, error) {
	if len(roots) == 0 {
		return nil, errors.New("forest requires at least one tree")
	}
	f := &Forest{features: features, trees: make([]*Tree, 0, len(roots))}
	for i, r := range roots {
		t, err := NewTree(r, features)
		if err != nil {
			return nil, errors.Wrapf(err, "tree %d", i)
		}
		f.trees = append(f.trees, t)
	}
	return f, nil
}

func (f *Forest) Features() int {
	return f.features
}

func (f *Forest) Predict(X [][]float64) ([]int, error) {
	if err := checkShape(X, f.features); err != nil {
		return nil, err
	}

	all := make([][]int, len(f.trees))
	for i, t := range f.trees {
		p, err := t.Predict(X)
		if err != nil {
			return nil, errors.Wrapf(err, "tree %d", i)
		}
		all[i] = p
	}

	out := make([]int, len(X))
	counts := make(map[int]int)
	for i := range X {
		clear(counts)
		for _, p := range all {
			counts[p[i]]++
		}
		best, bestCount := 0, -1
		for cls, cnt := range counts {
			if cnt > bestCount || (cnt == bestCount && cls < best) {
				best, bestCount = cls, cnt
			}
		}
		out[i] = best
	}
	return out, nil
}
