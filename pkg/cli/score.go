package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/riskcascade/pkg/data"
	"github.com/mchmarny/riskcascade/pkg/dataset"
	"github.com/mchmarny/riskcascade/pkg/pipeline"
	urfave "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const (
	outputFileDefault  = "full_risk_predictions.csv"
	outputSuffix       = "_risk_predictions.csv"
	scoreConcurrency   = 4
	defaultDirFileMode = 0700
)

var (
	outputFlag = &urfave.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   fmt.Sprintf("Output file for one input (default: %s) or directory for several", outputFileDefault),
	}

	scoreCmd = &urfave.Command{
		Name:            "score",
		Usage:           "Run the risk cascade over one or more CSV files",
		ArgsUsage:       "<input.csv>...",
		HideHelpCommand: true,
		Flags: []urfave.Flag{
			outputFlag,
		},
		Action: cmdScore,
	}
)

type scoreReport struct {
	Input  string    `json:"input" yaml:"input"`
	Run    *data.Run `json:"run,omitempty" yaml:"run,omitempty"`
	Output string    `json:"output,omitempty" yaml:"output,omitempty"`
	Error  string    `json:"error,omitempty" yaml:"error,omitempty"`
}

func cmdScore(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)

	inputs := cmd.Args().Slice()
	if len(inputs) == 0 {
		return errors.New("at least one input CSV file required")
	}

	outputs, err := outputPaths(inputs, cmd.String(outputFlag.Name))
	if err != nil {
		return err
	}

	// each input is an independent run, one failing does not cancel the others
	reports := make([]*scoreReport, len(inputs))
	var g errgroup.Group
	g.SetLimit(scoreConcurrency)

	for i := range inputs {
		g.Go(func() error {
			reports[i] = scoreFile(ctx, cfg.Conf.Pipeline(), inputs[i], outputs[i])
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	var saveErrs []error
	for _, r := range reports {
		if r.Run != nil {
			if err := data.SaveRun(cfg.DB, r.Run); err != nil {
				saveErrs = append(saveErrs, fmt.Errorf("saving run for %s: %w", r.Input, err))
			}
		}
		if r.Error != "" || r.Run.State != string(pipeline.StateDone) {
			failed++
		}
	}

	if len(saveErrs) > 0 {
		return errors.Join(saveErrs...)
	}

	var out any = reports
	if len(reports) == 1 {
		out = reports[0]
	}
	if err := encode(cmd, out); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d runs did not complete", failed, len(reports))
	}
	return nil
}

// scoreFile runs the cascade over one CSV file. The enriched dataset is written when the run
// completes or only the final stage failed. Problems are reported, never returned.
func scoreFile(ctx context.Context, pc pipeline.Config, input, output string) *scoreReport {
	rep := &scoreReport{Input: input}
	log := slog.Default().With("input", filepath.Base(input))

	d, err := dataset.ReadFile(input)
	if err != nil {
		log.Error("failed to read input", "error", err)
		rep.Error = fmt.Sprintf("reading input: %v", err)
		return rep
	}

	res := pipeline.New(pc, pipeline.WithLogger(log)).Run(ctx, d)
	rep.Run = data.NewRun(input, d.Rows(), res)
	if !res.OK() {
		log.Error("run did not complete", "state", res.State, "error", res.Error)
	}
	if !res.Exportable() {
		return rep
	}

	if err := dataset.WriteFile(output, d); err != nil {
		log.Error("failed to write output", "path", output, "error", err)
		rep.Error = fmt.Sprintf("writing output: %v", err)
		return rep
	}
	rep.Output = output
	log.Info("predictions saved", "path", output, "rows", d.Rows(), "state", res.State)
	return rep
}

// outputPaths maps each input to its output file. A single input writes to out as a file
// unless out is an existing directory; several inputs always write into the out directory.
func outputPaths(inputs []string, out string) ([]string, error) {
	if len(inputs) == 1 {
		switch fi, err := os.Stat(out); {
		case out == "":
			return []string{outputFileDefault}, nil
		case err == nil && fi.IsDir():
			return []string{filepath.Join(out, outputFileDefault)}, nil
		default:
			return []string{out}, nil
		}
	}

	if out == "" {
		out = "."
	}
	if err := os.MkdirAll(out, defaultDirFileMode); err != nil {
		return nil, fmt.Errorf("creating output dir %s: %w", out, err)
	}

	paths := make([]string, len(inputs))
	seen := make(map[string]string, len(inputs))
	for i, in := range inputs {
		stem := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		p := filepath.Join(out, stem+outputSuffix)
		if prev, ok := seen[p]; ok {
			return nil, fmt.Errorf("inputs %s and %s would both write %s", prev, in, p)
		}
		seen[p] = in
		paths[i] = p
	}
	return paths, nil
}
