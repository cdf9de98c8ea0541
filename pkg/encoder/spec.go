package encoder

import (
	"github.com/pkg/errors"
)

// Spec is the serialized form of an encoder inside an artifact file.
type Spec struct {
	Type       string    `yaml:"type" json:"type"`
	Classes    []string  `yaml:"classes,omitempty" json:"classes,omitempty"`
	Categories []string  `yaml:"categories,omitempty" json:"categories,omitempty"`
	Edges      []float64 `yaml:"edges,omitempty" json:"edges,omitempty"`
	Labels     []string  `yaml:"labels,omitempty" json:"labels,omitempty"`
	// UnknownValue is the ordinal code for categories not seen in training.
	UnknownValue *float64 `yaml:"unknown_value,omitempty" json:"unknown_value,omitempty"`
}

// Column builds a column-level encoder.
func (s *Spec) Column() (Encoder, error) {
	if s == nil {
		return nil, errors.New("encoder spec required")
	}
	switch s.Type {
	case TypeLabel:
		return NewLabel(s.Classes)
	case TypeBins:
		return NewBins(s.Edges, s.Labels)
	case TypeNumeric:
		return Numeric{}, nil
	case "":
		return nil, errors.New("encoder type required")
	default:
		return nil, errors.Errorf("encoder type %q cannot be used as a column encoder", s.Type)
	}
}

// Feature builds a feature encoder; column-level types become width 1 feature encoders.
func (s *Spec) Feature() (FeatureEncoder, error) {
	if s == nil {
		return nil, errors.New("encoder spec required")
	}
	switch s.Type {
	case TypeOneHot:
		return NewOneHot(s.Categories)
	case TypeOrdinal:
		return NewOrdinal(s.Categories, s.UnknownValue)
	}
	e, err := s.Column()
	if err != nil {
		return nil, err
	}
	return Column{Encoder: e}, nil
}
