package artifact

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/riskcascade/pkg/encoder"
	"github.com/mchmarny/riskcascade/pkg/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type document struct {
	Kind         Kind          `yaml:"kind"`
	Output       string        `yaml:"output"`
	Model        *model.Spec   `yaml:"model"`
	EncoderX     *encoder.Spec `yaml:"encoder_x"`
	EncoderY     *encoder.Spec `yaml:"encoder_y"`
	Encoders     yaml.Node     `yaml:"encoders"`
	FeatureNames []string      `yaml:"feature_names"`
}

// Load reads the artifact file and builds the variant named by its kind.
func Load(path string) (Artifact, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading artifact: %s", path)
	}

	a, err := Parse(refFor(path), b)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid artifact: %s", path)
	}
	return a, nil
}

// Parse decodes artifact content.
func Parse(ref Ref, b []byte) (Artifact, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "error decoding artifact")
	}

	if doc.Model == nil {
		return nil, errors.New("model required")
	}
	m, err := model.New(doc.Model)
	if err != nil {
		return nil, errors.Wrap(err, "invalid model")
	}

	switch doc.Kind {
	case KindSingle:
		return parseSingle(ref, m, &doc)
	case KindMulti:
		return parseMulti(ref, m, &doc)
	case KindFinal:
		return parseFinal(ref, m, &doc)
	case "":
		return nil, errors.New("artifact kind required")
	default:
		return nil, errors.Errorf("unknown artifact kind: %s", doc.Kind)
	}
}

func parseSingle(ref Ref, m model.Classifier, doc *document) (*Single, error) {
	a := &Single{Ref: ref, Model: m}

	if doc.EncoderY == nil {
		return nil, errors.New("encoder_y required")
	}
	y, err := doc.EncoderY.Column()
	if err != nil {
		return nil, errors.Wrap(err, "invalid encoder_y")
	}
	a.EncoderY = y

	if doc.EncoderX != nil {
		x, err := doc.EncoderX.Feature()
		if err != nil {
			return nil, errors.Wrap(err, "invalid encoder_x")
		}
		a.EncoderX = x
	}
	return a, nil
}

func parseMulti(ref Ref, m model.Classifier, doc *document) (*Multi, error) {
	encs, err := decodeEncoders(&doc.Encoders)
	if err != nil {
		return nil, err
	}
	if len(encs) == 0 {
		return nil, errors.New("encoders required")
	}
	if doc.Output != "" {
		if _, ok := encs.Get(doc.Output); !ok {
			return nil, errors.Errorf("declared output %q has no encoder", doc.Output)
		}
	}
	return &Multi{Ref: ref, Model: m, Encoders: encs, Output: doc.Output}, nil
}

func parseFinal(ref Ref, m model.Classifier, doc *document) (*Final, error) {
	encs, err := decodeEncoders(&doc.Encoders)
	if err != nil {
		return nil, err
	}
	if len(doc.FeatureNames) == 0 {
		return nil, errors.New("feature_names required")
	}
	return &Final{Ref: ref, Model: m, Encoders: encs, FeatureNames: doc.FeatureNames}, nil
}

// decodeEncoders walks the mapping node directly so file order is preserved.
func decodeEncoders(n *yaml.Node) (Encoders, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, errors.Errorf("encoders must be a mapping (line %d)", n.Line)
	}

	out := make(Encoders, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if _, ok := out.Get(key); ok {
			return nil, errors.Errorf("duplicate encoder: %s", key)
		}

		var s encoder.Spec
		if err := n.Content[i+1].Decode(&s); err != nil {
			return nil, errors.Wrapf(err, "error decoding encoder %s", key)
		}
		e, err := s.Column()
		if err != nil {
			return nil, errors.Wrapf(err, "invalid encoder %s", key)
		}
		out = append(out, NamedEncoder{Column: key, Encoder: e})
	}
	return out, nil
}

// LoadSingle loads a stage 1 artifact.
func LoadSingle(path string) (*Single, error) {
	return loadAs[*Single](path, KindSingle)
}

// LoadMulti loads a stage 2 artifact.
func LoadMulti(path string) (*Multi, error) {
	return loadAs[*Multi](path, KindMulti)
}

// LoadFinal loads the stage 3 artifact.
func LoadFinal(path string) (*Final, error) {
	return loadAs[*Final](path, KindFinal)
}

func loadAs[T Artifact](path string, kind Kind) (T, error) {
	var zero T
	a, err := Load(path)
	if err != nil {
		return zero, err
	}
	t, ok := a.(T)
	if !ok {
		return zero, errors.Errorf("artifact %s is %s, expected %s", path, a.Kind(), kind)
	}
	return t, nil
}

func refFor(path string) Ref {
	name, ok := nameFor(filepath.Base(path))
	if !ok {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return Ref{Name: name, Path: path}
}
