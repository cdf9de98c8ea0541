package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mchmarny/riskcascade/pkg/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_AllStages(t *testing.T) {
	f := newFixture(t)
	d := borrowers(t)

	res := f.runner().Run(context.Background(), d)
	require.NoError(t, res.Err())
	assert.True(t, res.OK())
	assert.True(t, res.Exportable())
	assert.Equal(t, StateDone, res.State)
	require.Len(t, res.Stages, 3)
	assert.Empty(t, res.Warnings())

	assert.Equal(t, []string{"Low", "High"}, column(t, d, "incomeRisk"))
	assert.Equal(t, []string{"Young", "Mature"}, column(t, d, "ageRisk"))
	assert.Equal(t, []string{"1", "0"}, column(t, d, "incomeRiskEncoded"))
	assert.Equal(t, []string{"1", "0"}, column(t, d, "ageRiskEncoded"))
	assert.Equal(t, []string{"Normal", "Elevated"}, column(t, d, "groupA_Risk"))
	assert.Equal(t, []string{"1", "0"}, column(t, d, "groupA_RiskEncoded"))
	assert.Equal(t, []string{"0", "2"}, column(t, d, "ageEncoded"))
	assert.Equal(t, []string{"Low", "High"}, column(t, d, FinalColumn))

	assert.ElementsMatch(t, []string{"incomeRisk", "ageRisk", "groupA_Risk", FinalColumn}, res.Outputs())
	assert.Equal(t, 2, d.Rows())
	assert.Equal(t, []string{"income", "age"}, d.Columns()[:2])
}

func TestRun_ExportRoundTrip(t *testing.T) {
	f := newFixture(t)
	d := borrowers(t)
	require.True(t, f.runner().Run(context.Background(), d).OK())

	var buf bytes.Buffer
	require.NoError(t, dataset.Write(&buf, d))
	got, err := dataset.Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, d.Rows(), got.Rows())
	assert.Equal(t, d.Columns(), got.Columns())
	for _, n := range d.Columns() {
		if diff := cmp.Diff(column(t, d, n), column(t, got, n)); diff != "" {
			t.Errorf("column %s mismatch (-want +got):\n%s", n, diff)
		}
	}
}

// Scenario A: a feature artifact without encoder_x scores the raw column.
func TestRun_FeatureWithoutEncoder(t *testing.T) {
	f := newFixture(t)
	d, err := dataset.FromColumns([]string{"income"}, [][]string{{"50000", "20000"}})
	require.NoError(t, err)

	sr := f.runner().runFeatureStage(context.Background(), d)
	require.NoError(t, sr.Err())
	assert.Equal(t, []string{"incomeRisk"}, sr.Outputs)
	assert.Equal(t, []string{"Low", "High"}, column(t, d, "incomeRisk"))
}

func TestRun_MissingFactorIsIsolated(t *testing.T) {
	f := newFixture(t)
	d, err := dataset.FromColumns([]string{"age"}, [][]string{{"25", "61"}})
	require.NoError(t, err)

	sr := f.runner().runFeatureStage(context.Background(), d)
	require.NoError(t, sr.Err())
	assert.Equal(t, []string{"ageRisk"}, sr.Outputs)
	assert.False(t, d.Has("incomeRisk"))
	assert.Equal(t, []string{"Young", "Mature"}, column(t, d, "ageRisk"))

	require.Len(t, sr.Warnings, 1)
	assert.Equal(t, "MissingColumn", sr.Warnings[0].Kind)
	assert.Equal(t, "income", sr.Warnings[0].Artifact)
	assert.ErrorIs(t, sr.Warnings[0].Err(), ErrMissingColumn)
}

func TestRun_CorruptArtifactIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.level1(t, "debt_model.yaml", "kind: [")
	d := borrowers(t)
	require.NoError(t, d.Set("debt", []string{"1", "2"}))

	sr := f.runner().runFeatureStage(context.Background(), d)
	require.NoError(t, sr.Err())
	assert.ElementsMatch(t, []string{"incomeRisk", "ageRisk"}, sr.Outputs)
	assert.Equal(t, []string{"ArtifactLoad"}, kindsOf(sr.Warnings))
}

func TestRun_FeatureEncodingProblems(t *testing.T) {
	f := newFixture(t)
	f.level1(t, "region_model.yaml", `
kind: single
model: {type: tree, root: {class: 0}}
encoder_x: {type: onehot, categories: [north, south]}
encoder_y: {type: label, classes: [Low]}
`)
	d := borrowers(t)
	require.NoError(t, d.Set("region", []string{"north", "south"}))
	require.NoError(t, d.Set("income", []string{"n/a", "20000"}))

	sr := f.runner().runFeatureStage(context.Background(), d)
	require.NoError(t, sr.Err())
	assert.Equal(t, []string{"ageRisk"}, sr.Outputs)
	assert.Equal(t, []string{"EncodingFailure", "EncodingFailure"}, kindsOf(sr.Warnings))
	assert.False(t, d.Has("regionRisk"))
	assert.False(t, d.Has("incomeRisk"))
}

func TestRun_FeatureOrdinalEncoder(t *testing.T) {
	f := newFixture(t)
	f.level1(t, "tenure_model.yaml", `
kind: single
model: {type: tree, features: 1, root: {feature: 0, threshold: 0.5, left: {class: 0}, right: {class: 1}}}
encoder_x: {type: ordinal, categories: [new, established], unknown_value: 0}
encoder_y: {type: label, classes: [High, Low]}
`)
	d := borrowers(t)
	require.NoError(t, d.Set("tenure", []string{"established", "unseen"}))

	sr := f.runner().runFeatureStage(context.Background(), d)
	require.NoError(t, sr.Err())
	assert.Empty(t, sr.Warnings)
	assert.Equal(t, []string{"Low", "High"}, column(t, d, "tenureRisk"))
}

func TestRun_FeatureRawValueWithSpaces(t *testing.T) {
	f := newFixture(t)
	d, err := dataset.FromColumns([]string{"income"}, [][]string{{" 50000", "20000 "}})
	require.NoError(t, err)

	sr := f.runner().runFeatureStage(context.Background(), d)
	require.NoError(t, sr.Err())
	assert.Empty(t, sr.Warnings)
	assert.Equal(t, []string{"Low", "High"}, column(t, d, "incomeRisk"))
}

func TestRun_Stage1Failed(t *testing.T) {
	f := newFixture(t)
	d, err := dataset.FromColumns([]string{"zip"}, [][]string{{"10001"}})
	require.NoError(t, err)

	res := f.runner().Run(context.Background(), d)
	assert.Equal(t, StateStage1Failed, res.State)
	assert.True(t, res.State.Failed())
	assert.False(t, res.Exportable())
	assert.ErrorIs(t, res.Err(), ErrStageExhausted)
	assert.Len(t, res.Stages, 1)
	assert.Equal(t, []string{"zip"}, d.Columns())
}

func TestRun_Stage1MissingDirectory(t *testing.T) {
	f := newFixture(t)
	f.cfg.Level1Dir = filepath.Join(f.dir, "nope")

	res := f.runner().Run(context.Background(), borrowers(t))
	assert.Equal(t, StateStage1Failed, res.State)
	assert.ErrorIs(t, res.Err(), ErrStageExhausted)
}

func TestRun_Stage2Failed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.cfg.Level2Dir, "groupA_model.yaml")))
	d := borrowers(t)

	res := f.runner().Run(context.Background(), d)
	assert.Equal(t, StateStage2Failed, res.State)
	assert.False(t, res.Exportable())
	assert.ErrorIs(t, res.Err(), ErrStageExhausted)
	assert.Len(t, res.Stages, 2)
	// stage 1 results stay with the caller
	assert.True(t, d.Has("incomeRisk"))
	assert.False(t, d.Has(FinalColumn))
}

func TestRun_Stage3MissingArtifact(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.cfg.FinalPath))
	d := borrowers(t)

	res := f.runner().Run(context.Background(), d)
	assert.Equal(t, StateStage3Failed, res.State)
	assert.False(t, res.OK())
	assert.True(t, res.Exportable())
	assert.ErrorIs(t, res.Err(), ErrMissingArtifact)
	assert.True(t, d.Has("incomeRisk"))
	assert.True(t, d.Has("groupA_Risk"))
	assert.False(t, d.Has(FinalColumn))
}

func TestRun_Stage3CorruptArtifact(t *testing.T) {
	f := newFixture(t)
	f.final(t, "kind: final\n")

	res := f.runner().Run(context.Background(), borrowers(t))
	assert.Equal(t, StateStage3Failed, res.State)
	assert.ErrorIs(t, res.Err(), ErrArtifactLoad)
}

func TestRun_Stage3Unsatisfiable(t *testing.T) {
	f := newFixture(t)
	f.final(t, `
kind: final
model: {type: tree, root: {class: 0}}
encoders:
  age: {type: bins, edges: [30]}
feature_names: [ageEncoded, zipEncoded, tenure, regionEncoded]
`)
	d := borrowers(t)

	res := f.runner().Run(context.Background(), d)
	assert.Equal(t, StateStage3Failed, res.State)
	require.ErrorIs(t, res.Err(), ErrUnsatisfiableFeatureSet)
	assert.Contains(t, res.Error, "regionEncoded, tenure, zipEncoded")
	assert.NotContains(t, res.Error, "ageEncoded")
	assert.False(t, d.Has(FinalColumn))
}

func TestRun_Stage3NoEncoderForRaw(t *testing.T) {
	f := newFixture(t)
	f.final(t, `
kind: final
model: {type: tree, root: {class: 0}}
feature_names: [incomeEncoded]
`)

	res := f.runner().Run(context.Background(), borrowers(t))
	assert.ErrorIs(t, res.Err(), ErrUnsatisfiableFeatureSet)
	last := res.Stages[len(res.Stages)-1]
	assert.Equal(t, []string{"EncodingFailure"}, kindsOf(last.Warnings))
}

// Scenario C: ageEncoded is derived from the raw age column.
func TestRun_Stage3DerivesEncodedFeature(t *testing.T) {
	f := newFixture(t)
	f.final(t, `
kind: final
model:
  type: linear
  coef: [[1, 0], [0, 0.00001]]
  intercept: [0, 0]
encoders:
  age: {type: bins, edges: [30, 60]}
feature_names: [ageEncoded, income]
`)
	d, err := dataset.FromColumns([]string{"age", "income"}, [][]string{{"25", "61"}, {"50000", "20000"}})
	require.NoError(t, err)

	sr := f.runner().runFinalStage(context.Background(), d)
	require.NoError(t, sr.Err())
	assert.Equal(t, []string{"0", "2"}, column(t, d, "ageEncoded"))
	// row 0: 0 vs 0.5, row 1: 2 vs 0.2
	assert.Equal(t, []string{"Low", "Very Low"}, column(t, d, FinalColumn))
}

func TestRun_Stage3PreferredDecoder(t *testing.T) {
	f := newFixture(t)
	f.final(t, withFinalDecoder("{type: label, classes: [r0, r1, r2, r3, r4, r5, r6]}"))
	d := borrowers(t)

	res := f.runner().Run(context.Background(), d)
	require.True(t, res.OK())
	assert.Equal(t, []string{"r1", "r5"}, column(t, d, FinalColumn))
}

func TestRun_Stage3FailingDecoderFallsBack(t *testing.T) {
	f := newFixture(t)
	f.final(t, withFinalDecoder("{type: label, classes: [only]}"))
	d := borrowers(t)

	res := f.runner().Run(context.Background(), d)
	require.True(t, res.OK())
	assert.Equal(t, []string{"Low", "High"}, column(t, d, FinalColumn))
	last := res.Stages[2]
	assert.Equal(t, []string{"DecodeFailure"}, kindsOf(last.Warnings))
}

func TestRun_Stage3PredictionFailure(t *testing.T) {
	f := newFixture(t)
	f.final(t, `
kind: final
model: {type: tree, features: 3, root: {class: 0}}
feature_names: [income]
`)

	res := f.runner().Run(context.Background(), borrowers(t))
	assert.Equal(t, StateStage3Failed, res.State)
	assert.ErrorIs(t, res.Err(), ErrPrediction)
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.runner().Run(ctx, borrowers(t))
	assert.Equal(t, StateStage1Failed, res.State)
	assert.True(t, errors.Is(res.Err(), context.Canceled))
}

func TestRun_NilDataset(t *testing.T) {
	res := New(Config{}).Run(context.Background(), nil)
	assert.Equal(t, StateAwaitingInput, res.State)
	assert.Error(t, res.Err())
	assert.False(t, res.OK())
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t)
	r := New(f.cfg, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))), WithLogger(nil))

	d, err := dataset.FromColumns([]string{"age"}, [][]string{{"25"}})
	require.NoError(t, err)
	r.runFeatureStage(context.Background(), d)
	assert.Contains(t, buf.String(), "MissingColumn")
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "feature", StageFeature.String())
	assert.Equal(t, "group", StageGroup.String())
	assert.Equal(t, "final", StageFinal.String())
	assert.Equal(t, "stage(9)", Stage(9).String())

	b, err := StageGroup.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "group", string(b))

	var s Stage
	require.NoError(t, s.UnmarshalText([]byte("final")))
	assert.Equal(t, StageFinal, s)
	assert.Error(t, s.UnmarshalText([]byte("stage(9)")))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "UnresolvedOutputColumn", KindOf(ErrUnresolvedOutputColumn))
	assert.Equal(t, "MissingArtifact", KindOf(errors.Join(errors.New("x"), ErrMissingArtifact)))
	assert.Equal(t, "Error", KindOf(errors.New("other")))
}
