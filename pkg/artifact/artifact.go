// Package artifact loads the model bundles used by each pipeline stage.
//
// An artifact file is a YAML (or JSON) document whose top level "kind" selects
// one of three shapes:
//
//	single  model + optional encoder_x + encoder_y       (stage 1, one raw feature)
//	multi   model + ordered encoders [+ declared output] (stage 2, group risk)
//	final   model + ordered encoders + feature_names     (stage 3, final risk)
package artifact

import (
	"github.com/mchmarny/riskcascade/pkg/encoder"
	"github.com/mchmarny/riskcascade/pkg/model"
)

// Kind tags the artifact shape.
type Kind string

const (
	KindSingle Kind = "single"
	KindMulti  Kind = "multi"
	KindFinal  Kind = "final"
)

// Artifact is one of *Single, *Multi or *Final.
type Artifact interface {
	Kind() Kind
	Source() Ref
}

// Ref identifies an artifact file. Name is the file name without the "_model" suffix and extension.
type Ref struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

func (r Ref) Source() Ref {
	return r
}

// Single scores one raw feature column.
type Single struct {
	Ref
	Model model.Classifier
	// EncoderX is nil when the raw values are fed to the model directly.
	EncoderX encoder.FeatureEncoder
	EncoderY encoder.Encoder
}

func (*Single) Kind() Kind { return KindSingle }

// Multi combines several columns into one group-level output column.
type Multi struct {
	Ref
	Model    model.Classifier
	Encoders Encoders
	// Output is the declared output column, empty when it has to be inferred from the dataset.
	Output string
}

func (*Multi) Kind() Kind { return KindMulti }

// Final produces the final risk category from a fixed feature set.
type Final struct {
	Ref
	Model        model.Classifier
	Encoders     Encoders
	FeatureNames []string
}

func (*Final) Kind() Kind { return KindFinal }

// NamedEncoder pairs a column name with its encoder.
type NamedEncoder struct {
	Column  string
	Encoder encoder.Encoder
}

// Encoders keeps the column encoders in the order they appear in the artifact file.
type Encoders []NamedEncoder

// Get returns the encoder for the column.
func (e Encoders) Get(column string) (encoder.Encoder, bool) {
	for _, ne := range e {
		if ne.Column == column {
			return ne.Encoder, true
		}
	}
	return nil, false
}

// Columns returns the encoder keys in file order.
func (e Encoders) Columns() []string {
	out := make([]string, len(e))
	for i, ne := range e {
		out[i] = ne.Column
	}
	return out
}
