package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mchmarny/riskcascade/pkg/artifact"
	"github.com/mchmarny/riskcascade/pkg/dataset"
)

func (r *Runner) runFeatureStage(ctx context.Context, d *dataset.Dataset) *StageResult {
	sr := &StageResult{Stage: StageFeature}
	defer exhausted(sr)

	refs, err := artifact.Discover(r.cfg.Level1Dir)
	if err != nil {
		sr.fail(fmt.Errorf("%w: %w", ErrStageExhausted, err))
		return sr
	}

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			sr.fail(err)
			return sr
		}

		if !d.Has(ref.Name) {
			r.warn(sr, ref.Name, ref.Name, fmt.Errorf("%w: %s not in input", ErrMissingColumn, ref.Name))
			continue
		}

		a, err := artifact.LoadSingle(ref.Path)
		if err != nil {
			r.warn(sr, ref.Name, "", fmt.Errorf("%w: %w", ErrArtifactLoad, err))
			continue
		}

		out, err := scoreFeature(a, d)
		if err != nil {
			r.warn(sr, ref.Name, ref.Name, err)
			continue
		}
		sr.Outputs = append(sr.Outputs, out)
	}
	return sr
}

func scoreFeature(a *artifact.Single, d *dataset.Dataset) (string, error) {
	X, err := featureInput(a, d)
	if err != nil {
		return "", err
	}

	preds, err := a.Model.Predict(X)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPrediction, err)
	}

	labels, err := a.EncoderY.InverseTransform(preds)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecodeFailure, err)
	}

	out := a.Name + RiskSuffix
	if err := d.Set(out, labels); err != nil {
		return "", err
	}
	return out, nil
}

func (r *Runner) runGroupStage(ctx context.Context, d *dataset.Dataset) *StageResult {
	sr := &StageResult{Stage: StageGroup}
	defer exhausted(sr)

	refs, err := artifact.Discover(r.cfg.Level2Dir)
	if err != nil {
		sr.fail(fmt.Errorf("%w: %w", ErrStageExhausted, err))
		return sr
	}

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			sr.fail(err)
			return sr
		}

		a, err := artifact.LoadMulti(ref.Path)
		if err != nil {
			r.warn(sr, ref.Name, "", fmt.Errorf("%w: %w", ErrArtifactLoad, err))
			continue
		}

		if out, ok := r.scoreGroup(sr, a, d); ok {
			sr.Outputs = append(sr.Outputs, out)
		}
	}
	return sr
}

func (r *Runner) scoreGroup(sr *StageResult, a *artifact.Multi, d *dataset.Dataset) (string, bool) {
	output, err := outputColumn(a, d)
	if err != nil {
		r.warn(sr, a.Name, "", err)
		return "", false
	}

	inputs, problems := groupInputs(a, d, output)
	for _, p := range problems {
		r.warn(sr, a.Name, p.column, p.err)
	}

	if len(inputs) == 0 {
		r.warn(sr, a.Name, output, fmt.Errorf("%w: no usable inputs for %s", ErrIncompleteInputs, output))
		return "", false
	}
	if len(problems) > 0 && !r.cfg.AllowPartialInputs {
		r.warn(sr, a.Name, output, fmt.Errorf("%w: %d of %d inputs unavailable for %s",
			ErrIncompleteInputs, len(problems), len(problems)+len(inputs), output))
		return "", false
	}

	X, err := d.Floats(inputs...)
	if err != nil {
		r.warn(sr, a.Name, "", fmt.Errorf("%w: %w", ErrEncodingFailure, err))
		return "", false
	}

	preds, err := a.Model.Predict(X)
	if err != nil {
		r.warn(sr, a.Name, "", fmt.Errorf("%w: %w", ErrPrediction, err))
		return "", false
	}

	dec, _ := a.Encoders.Get(output)
	labels, err := dec.InverseTransform(preds)
	if err != nil {
		r.warn(sr, a.Name, output, fmt.Errorf("%w: %w", ErrDecodeFailure, err))
		return "", false
	}

	if err := d.Set(output, labels); err != nil {
		r.warn(sr, a.Name, output, err)
		return "", false
	}
	return output, true
}

func (r *Runner) runFinalStage(ctx context.Context, d *dataset.Dataset) *StageResult {
	sr := &StageResult{Stage: StageFinal}
	defer exhausted(sr)

	if err := ctx.Err(); err != nil {
		sr.fail(err)
		return sr
	}

	path := r.cfg.FinalPath
	if _, err := os.Stat(path); path == "" || errors.Is(err, os.ErrNotExist) {
		sr.fail(fmt.Errorf("%w: %s", ErrMissingArtifact, path))
		return sr
	}

	a, err := artifact.LoadFinal(path)
	if err != nil {
		sr.fail(fmt.Errorf("%w: %w", ErrArtifactLoad, err))
		return sr
	}

	usable, problems := featureSet(a, d)
	for _, p := range problems {
		r.warn(sr, a.Name, p.column, p.err)
	}
	if !sameSet(usable, a.FeatureNames) {
		missing := missingFrom(a.FeatureNames, usable)
		sr.fail(fmt.Errorf("%w: missing %s", ErrUnsatisfiableFeatureSet, strings.Join(missing, ", ")))
		return sr
	}

	X, err := d.Floats(usable...)
	if err != nil {
		sr.fail(fmt.Errorf("%w: %w", ErrPrediction, err))
		return sr
	}

	preds, err := a.Model.Predict(X)
	if err != nil {
		sr.fail(fmt.Errorf("%w: %w", ErrPrediction, err))
		return sr
	}

	pref, _ := a.Encoders.Get(FinalDecoder)
	dec := LabelResolver{Preferred: pref}.Resolve(preds)
	if dec.Cause != nil {
		r.warn(sr, a.Name, FinalColumn, dec.Cause)
	}
	r.log.Debug("final labels decoded", "tier", dec.Tier)

	if err := d.Set(FinalColumn, dec.Labels); err != nil {
		sr.fail(err)
		return sr
	}
	sr.Outputs = append(sr.Outputs, FinalColumn)
	return sr
}
