package model

import (
	"math"

	"github.com/pkg/errors"
)

// Node is a decision tree node. A node without children is a leaf and must carry a Class.
// Internal nodes send x[Feature] <= Threshold (or == Threshold when Categorical) to Left.
type Node struct {
	Feature     int     `yaml:"feature,omitempty" json:"feature,omitempty"`
	Threshold   float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Categorical bool    `yaml:"categorical,omitempty" json:"categorical,omitempty"`
	Samples     int     `yaml:"samples,omitempty" json:"samples,omitempty"`
	Class       *int    `yaml:"class,omitempty" json:"class,omitempty"`
	Left        *Node   `yaml:"left,omitempty" json:"left,omitempty"`
	Right       *Node   `yaml:"right,omitempty" json:"right,omitempty"`
}

func (n *Node) isLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// Tree is a CART-style classification tree.
type Tree struct {
	root     *Node
	features int
}

// NewTree validates the node structure and returns the tree.
func NewTree(root *Node, features int) (*Tree, error) {
	if root == nil {
		return nil, errors.New("tree root required")
	}
	maxFeature, err := validate(root, 0)
	if err != nil {
		return nil, err
	}
	if features > 0 && maxFeature >= features {
		return nil, errors.Errorf("tree splits on feature %d, model declares %d features", maxFeature, features)
	}
	return &Tree{root: root, features: features}, nil
}

func validate(n *Node, depth int) (int, error) {
	if n.isLeaf() {
		if n.Class == nil {
			return 0, errors.Errorf("leaf at depth %d has no class", depth)
		}
		return 0, nil
	}
	if n.Left == nil || n.Right == nil {
		return 0, errors.Errorf("node at depth %d must have both children", depth)
	}
	if n.Feature < 0 {
		return 0, errors.Errorf("node at depth %d has negative feature index", depth)
	}
	l, err := validate(n.Left, depth+1)
	if err != nil {
		return 0, err
	}
	r, err := validate(n.Right, depth+1)
	if err != nil {
		return 0, err
	}
	return max(n.Feature, l, r), nil
}

func (t *Tree) Features() int {
	return t.features
}

func (t *Tree) Predict(X [][]float64) ([]int, error) {
	if err := checkShape(X, t.features); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	for i, x := range X {
		c, err := t.predictSingle(x)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		out[i] = c
	}
	return out, nil
}

func (t *Tree) predictSingle(x []float64) (int, error) {
	node := t.root
	for !node.isLeaf() {
		if node.Feature >= len(x) {
			return 0, errors.Errorf("feature %d out of range for row of %d", node.Feature, len(x))
		}
		val := x[node.Feature]
		switch {
		case math.IsNaN(val):
			// missing: follow the branch that saw more training samples
			if node.Left.Samples >= node.Right.Samples {
				node = node.Left
			} else {
				node = node.Right
			}
		case node.Categorical:
			if val == node.Threshold {
				node = node.Left
			} else {
				node = node.Right
			}
		case val <= node.Threshold:
			node = node.Left
		default:
			node = node.Right
		}
	}
	return *node.Class, nil
}
