package model

import (
	"github.com/pkg/errors"
)

// Linear scores each class as coef[c]·x + intercept[c] and predicts the highest score.
type Linear struct {
	coef      [][]float64
	intercept []float64
	features  int
}

func NewLinear(coef [][]float64, intercept []float64, features int) (*Linear, error) {
	if len(coef) == 0 {
		return nil, errors.New("linear model requires coefficients")
	}
	if len(intercept) != len(coef) {
		return nil, errors.Errorf("got %d intercepts for %d classes", len(intercept), len(coef))
	}
	width := len(coef[0])
	for c, w := range coef {
		if len(w) != width {
			return nil, errors.Errorf("class %d has %d coefficients, expected %d", c, len(w), width)
		}
	}
	if features == 0 {
		features = width
	}
	if features != width {
		return nil, errors.Errorf("model declares %d features, coefficients have %d", features, width)
	}
	return &Linear{coef: coef, intercept: intercept, features: features}, nil
}

func (m *Linear) Features() int {
	return m.features
}

func (m *Linear) Predict(X [][]float64) ([]int, error) {
	if err := checkShape(X, m.features); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	for i, x := range X {
		best := 0
		bestScore := 0.0
		for c, w := range m.coef {
			s := m.intercept[c]
			for j, v := range x {
				s += w[j] * v
			}
			if c == 0 || s > bestScore {
				best, bestScore = c, s
			}
		}
		out[i] = best
	}
	return out, nil
}
