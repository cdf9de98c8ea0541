// Package model implements inference for the classifiers stored in artifact files.
package model

import (
	"github.com/pkg/errors"
)

const (
	TypeTree   = "tree"
	TypeForest = "forest"
	TypeLinear = "linear"
)

// Classifier predicts a class index for each row of X.
type Classifier interface {
	Predict(X [][]float64) ([]int, error)
	// Features returns the number of features per row the model expects, 0 when unchecked.
	Features() int
}

// Spec is the serialized form of a classifier inside an artifact file.
type Spec struct {
	Type      string      `yaml:"type" json:"type"`
	Features  int         `yaml:"features,omitempty" json:"features,omitempty"`
	Root      *Node       `yaml:"root,omitempty" json:"root,omitempty"`
	Trees     []*Node     `yaml:"trees,omitempty" json:"trees,omitempty"`
	Coef      [][]float64 `yaml:"coef,omitempty" json:"coef,omitempty"`
	Intercept []float64   `yaml:"intercept,omitempty" json:"intercept,omitempty"`
}

// New builds the classifier described by s.
func New(s *Spec) (Classifier, error) {
	if s == nil {
		return nil, errors.New("model spec required")
	}
	if s.Features < 0 {
		return nil, errors.Errorf("invalid feature count: %d", s.Features)
	}

	switch s.Type {
	case TypeTree:
		return NewTree(s.Root, s.Features)
	case TypeForest:
		return NewForest(s.Trees, s.Features)
	case TypeLinear:
		return NewLinear(s.Coef, s.Intercept, s.Features)
	case "":
		return nil, errors.New("model type required")
	default:
		return nil, errors.Errorf("unsupported model type: %s", s.Type)
	}
}

func checkShape(X [][]float64, features int) error {
	if features == 0 {
		return nil
	}
	for i, row := range X {
		if len(row) != features {
			return errors.Errorf("row %d has %d features, model expects %d", i, len(row), features)
		}
	}
	return nil
}
