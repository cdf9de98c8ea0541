package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/mchmarny/riskcascade/pkg/data"
	urfave "github.com/urfave/cli/v3"
)

var (
	runLimitFlag = &urfave.IntFlag{
		Name:  "limit",
		Usage: "Limits number of runs returned",
		Value: data.RunLimitDefault,
	}

	runsCmd = &urfave.Command{
		Name:            "runs",
		Usage:           "List recorded pipeline runs",
		HideHelpCommand: true,
		Flags:           []urfave.Flag{runLimitFlag},
		Action:          cmdListRuns,
		Commands: []*urfave.Command{
			{
				Name:      "show",
				Usage:     "Show a run with its stages and warnings",
				ArgsUsage: "<run-id>",
				Action:    cmdShowRun,
			},
		},
	}
)

func cmdListRuns(_ context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)

	list, err := data.ListRuns(cfg.DB, int(cmd.Int(runLimitFlag.Name)))
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if err := encode(cmd, list); err != nil {
		return fmt.Errorf("encoding runs: %w", err)
	}
	return nil
}

func cmdShowRun(_ context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)

	id := cmd.Args().First()
	if id == "" {
		return errors.New("run id required")
	}

	r, err := data.GetRun(cfg.DB, id)
	if err != nil {
		return fmt.Errorf("getting run: %w", err)
	}

	if err := encode(cmd, r); err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}
	return nil
}
