package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mchmarny/riskcascade/pkg/data"
	urfave "github.com/urfave/cli/v3"
)

var (
	forceFlag = &urfave.BoolFlag{
		Name:  "force",
		Usage: "Skip the confirmation prompt",
	}

	resetCmd = &urfave.Command{
		Name:            "reset",
		Usage:           "Delete the run history and start fresh",
		HideHelpCommand: true,
		Flags:           []urfave.Flag{forceFlag},
		Action:          cmdReset,
	}
)

func cmdReset(_ context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)
	out := cmd.Root().Writer

	if !cmd.Bool(forceFlag.Name) {
		fmt.Fprintf(out, "This will permanently delete all runs in %s\n", cfg.DBPath)
		fmt.Fprint(out, "Are you sure? [y/N]: ")

		reader := bufio.NewReader(cmd.Root().Reader)
		answer, err := reader.ReadString('\n')
		if err != nil && answer == "" {
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	// close the DB before deleting the file
	if cfg.DB != nil {
		cfg.DB.Close()
		cfg.DB = nil
	}

	if err := os.Remove(cfg.DBPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting database: %w", err)
	}

	slog.Info("database deleted", "path", cfg.DBPath)

	// re-initialize empty database
	if err := data.Init(cfg.DBPath); err != nil {
		return fmt.Errorf("re-initializing database: %w", err)
	}

	slog.Info("database re-initialized", "path", cfg.DBPath)
	fmt.Fprintln(out, "Reset complete.")
	return nil
}
