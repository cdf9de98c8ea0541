package pipeline

import (
	"errors"
)

var (
	// ErrMissingColumn: a required raw input column is absent from the dataset.
	ErrMissingColumn = errors.New("missing column")
	// ErrEncodingFailure: an encoder could not transform an input column.
	ErrEncodingFailure = errors.New("encoding failure")
	// ErrUnresolvedOutputColumn: a group artifact has no single output column for the dataset.
	ErrUnresolvedOutputColumn = errors.New("unresolved output column")
	// ErrIncompleteInputs: a group artifact lost some of its inputs and was not run.
	ErrIncompleteInputs = errors.New("incomplete inputs")
	// ErrArtifactLoad: an artifact file could not be read or decoded.
	ErrArtifactLoad = errors.New("artifact load failure")
	// ErrPrediction: the model rejected its input.
	ErrPrediction = errors.New("prediction failure")
	// ErrDecodeFailure: predicted class indices could not be decoded into labels.
	ErrDecodeFailure = errors.New("decode failure")
	// ErrStageExhausted: a stage produced no output column.
	ErrStageExhausted = errors.New("stage produced no outputs")
	// ErrMissingArtifact: the final artifact file does not exist.
	ErrMissingArtifact = errors.New("missing artifact")
	// ErrUnsatisfiableFeatureSet: the final model's features cannot all be resolved.
	ErrUnsatisfiableFeatureSet = errors.New("unsatisfiable feature set")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrMissingColumn, "MissingColumn"},
	{ErrEncodingFailure, "EncodingFailure"},
	{ErrUnresolvedOutputColumn, "UnresolvedOutputColumn"},
	{ErrIncompleteInputs, "IncompleteInputs"},
	{ErrArtifactLoad, "ArtifactLoad"},
	{ErrPrediction, "PredictionFailure"},
	{ErrDecodeFailure, "DecodeFailure"},
	{ErrStageExhausted, "StageExhausted"},
	{ErrMissingArtifact, "MissingArtifact"},
	{ErrUnsatisfiableFeatureSet, "UnsatisfiableFeatureSet"},
}

// KindOf returns the taxonomy name of err, or "Error" when it matches none.
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Error"
}

// Warning is a non-fatal, per-artifact or per-column problem.
type Warning struct {
	Stage    Stage  `json:"stage" yaml:"stage"`
	Artifact string `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Column   string `json:"column,omitempty" yaml:"column,omitempty"`
	Kind     string `json:"kind" yaml:"kind"`
	Message  string `json:"message" yaml:"message"`

	err error
}

// Err returns the underlying error.
func (w Warning) Err() error {
	return w.err
}

func newWarning(stage Stage, art, col string, err error) Warning {
	return Warning{
		Stage:    stage,
		Artifact: art,
		Column:   col,
		Kind:     KindOf(err),
		Message:  err.Error(),
		err:      err,
	}
}
