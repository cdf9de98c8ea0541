// Package pipeline runs the three stage risk classification cascade over a dataset.
//
// Stage 1 scores single raw features, stage 2 combines them into group risks and
// stage 3 produces the final risk label. Each stage only runs when the previous
// one produced at least one column. The dataset is modified in place and stays
// with the caller whatever state the run ends in.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mchmarny/riskcascade/pkg/artifact"
	"github.com/mchmarny/riskcascade/pkg/dataset"
)

const (
	RiskSuffix    = "Risk"
	EncodedSuffix = "Encoded"
	FinalColumn   = "FinalRiskLabel"
	FinalDecoder  = "Final Risk"
)

// Stage identifies one of the three pipeline stages.
type Stage int

const (
	StageFeature Stage = iota + 1
	StageGroup
	StageFinal
)

func (s Stage) String() string {
	switch s {
	case StageFeature:
		return "feature"
	case StageGroup:
		return "group"
	case StageFinal:
		return "final"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	for _, v := range []Stage{StageFeature, StageGroup, StageFinal} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown stage: %q", b)
}

// State is the position of a run in the stage state machine.
type State string

const (
	StateAwaitingInput State = "awaiting_input"
	StateStage1        State = "stage1"
	StateStage2        State = "stage2"
	StateStage3        State = "stage3"
	StateDone          State = "done"
	StateStage1Failed  State = "stage1_failed"
	StateStage2Failed  State = "stage2_failed"
	StateStage3Failed  State = "stage3_failed"
)

// Failed reports whether s is a terminal failure state.
func (s State) Failed() bool {
	return s == StateStage1Failed || s == StateStage2Failed || s == StateStage3Failed
}

// Config names the artifact locations and the stage 2 input policy.
type Config struct {
	artifact.Layout `yaml:",inline"`
	// AllowPartialInputs runs a group model on the inputs that could be resolved
	// even when some of its encoders' columns are missing or failed to encode.
	AllowPartialInputs bool `json:"allow_partial_inputs" yaml:"allow_partial_inputs"`
}

// StageResult summarizes one stage execution.
type StageResult struct {
	Stage    Stage     `json:"stage" yaml:"stage"`
	Outputs  []string  `json:"outputs" yaml:"outputs"`
	Warnings []Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error    string    `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// Err returns the error that ended the stage, nil when it produced outputs.
func (s *StageResult) Err() error {
	return s.err
}

func (s *StageResult) warn(w Warning) {
	s.Warnings = append(s.Warnings, w)
}

func (s *StageResult) fail(err error) {
	s.err = err
	s.Error = err.Error()
}

// Result is the outcome of a run.
type Result struct {
	State  State          `json:"state" yaml:"state"`
	Stages []*StageResult `json:"stages" yaml:"stages"`
	Error  string         `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// OK reports whether all three stages completed.
func (r *Result) OK() bool {
	return r.State == StateDone
}

// Exportable reports whether the dataset holds stage outputs worth exporting. A final stage
// failure leaves the feature and group outputs valid.
func (r *Result) Exportable() bool {
	return r.State == StateDone || r.State == StateStage3Failed
}

// Err returns the error that stopped the run.
func (r *Result) Err() error {
	return r.err
}

// Warnings returns the warnings of all stages in execution order.
func (r *Result) Warnings() []Warning {
	var out []Warning
	for _, s := range r.Stages {
		out = append(out, s.Warnings...)
	}
	return out
}

// Outputs returns the columns produced by all stages in execution order.
func (r *Result) Outputs() []string {
	var out []string
	for _, s := range r.Stages {
		out = append(out, s.Outputs...)
	}
	return out
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger warnings and stage summaries are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// Runner executes the cascade. It holds no per-run state and loads artifacts on every run.
type Runner struct {
	cfg Config
	log *slog.Logger
}

// New returns a runner for the given artifact layout.
func New(cfg Config, opts ...Option) *Runner {
	r := &Runner{cfg: cfg, log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes the stages in order on d, stopping at the first stage that fails.
func (r *Runner) Run(ctx context.Context, d *dataset.Dataset) *Result {
	res := &Result{State: StateAwaitingInput}
	if d == nil {
		res.err = fmt.Errorf("dataset required")
		res.Error = res.err.Error()
		return res
	}

	steps := []struct {
		state  State
		failed State
		run    func(context.Context, *dataset.Dataset) *StageResult
	}{
		{StateStage1, StateStage1Failed, r.runFeatureStage},
		{StateStage2, StateStage2Failed, r.runGroupStage},
		{StateStage3, StateStage3Failed, r.runFinalStage},
	}

	for _, s := range steps {
		res.State = s.state
		sr := s.run(ctx, d)
		res.Stages = append(res.Stages, sr)

		if sr.err != nil {
			res.State = s.failed
			res.err = sr.err
			res.Error = sr.Error
			r.log.Error("stage failed", "stage", sr.Stage, "error", sr.err)
			return res
		}
		r.log.Info("stage complete", "stage", sr.Stage, "outputs", len(sr.Outputs), "warnings", len(sr.Warnings))
	}

	res.State = StateDone
	return res
}

func (r *Runner) warn(sr *StageResult, art, col string, err error) {
	w := newWarning(sr.Stage, art, col, err)
	sr.warn(w)
	r.log.Warn("stage warning", "stage", sr.Stage, "artifact", art, "column", col, "kind", w.Kind, "error", err)
}

// exhausted fails the stage when it produced nothing.
func exhausted(sr *StageResult) {
	if len(sr.Outputs) == 0 && sr.err == nil {
		sr.fail(fmt.Errorf("%s stage: %w", sr.Stage, ErrStageExhausted))
	}
}
