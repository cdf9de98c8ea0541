package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/riskcascade/pkg/config"
	"github.com/mchmarny/riskcascade/pkg/data"
	"github.com/mchmarny/riskcascade/pkg/logging"
	urfave "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "riskctl"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	formats = []string{formatJSON, formatYAML, "yml"}

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	dbFilePathFlag = &urfave.StringFlag{
		Name:  "db",
		Usage: "Path to the Sqlite run history file",
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	configDirFlag = &urfave.StringFlag{
		Name:  "config",
		Usage: "Directory holding config.yaml (default: $HOME/.riskctl)",
	}

	level1DirFlag = &urfave.StringFlag{
		Name:  "level1",
		Usage: "Directory with the stage 1 (feature) artifacts",
	}

	level2DirFlag = &urfave.StringFlag{
		Name:  "level2",
		Usage: "Directory with the stage 2 (group) artifacts",
	}

	finalModelFlag = &urfave.StringFlag{
		Name:  "final",
		Usage: "Path to the stage 3 (final) artifact",
	}

	allowPartialFlag = &urfave.BoolFlag{
		Name:  "allow-partial",
		Usage: "Run group models on the inputs that resolved when some are missing",
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	HomeDir string
	DBPath  string
	Debug   bool
	Format  string
	DB      *sql.DB
	Conf    *config.Config
}

func getConfig(cmd *urfave.Command) *appConfig {
	return cmd.Root().Metadata[appConfigKey].(*appConfig)
}

func newApp() *urfave.Command {
	return &urfave.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Cascading borrower risk classification over CSV datasets",
		Metadata:              map[string]any{},
		Flags: []urfave.Flag{
			debugFlag,
			dbFilePathFlag,
			formatFlag,
			configDirFlag,
			level1DirFlag,
			level2DirFlag,
			finalModelFlag,
			allowPartialFlag,
		},
		Commands: []*urfave.Command{
			scoreCmd,
			artifactsCmd,
			runsCmd,
			authCmd,
			serverCmd,
			resetCmd,
		},
		Before: before,
		After: func(_ context.Context, cmd *urfave.Command) error {
			if cfg, ok := cmd.Root().Metadata[appConfigKey].(*appConfig); ok && cfg.DB != nil {
				cfg.DB.Close()
			}
			return nil
		},
	}
}

func before(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
	debug := cmd.Bool(debugFlag.Name)
	initLogging(cmd.Root().ErrWriter, debug)

	format := cmd.String(formatFlag.Name)
	if !data.Contains(formats, format) {
		return ctx, fmt.Errorf("unsupported format: %s", format)
	}
	if format == "yml" {
		format = formatYAML
	}

	dir := cmd.String(configDirFlag.Name)
	if dir == "" {
		home, _, err := config.GetOrCreateHomeDir(appName)
		if err != nil {
			return ctx, fmt.Errorf("resolving home dir: %w", err)
		}
		dir = home
	}

	conf, err := config.ReadOrCreate(dir)
	if err != nil {
		return ctx, fmt.Errorf("reading config: %w", err)
	}
	applyOverrides(cmd, conf)

	dbPath := cmd.String(dbFilePathFlag.Name)
	if dbPath == "" {
		dbPath = filepath.Join(dir, data.DataFileName)
	}

	if err := data.Init(dbPath); err != nil {
		return ctx, fmt.Errorf("initializing database: %w", err)
	}

	db, err := data.GetDB(dbPath)
	if err != nil {
		return ctx, fmt.Errorf("opening database: %w", err)
	}

	cmd.Root().Metadata[appConfigKey] = &appConfig{
		HomeDir: dir,
		DBPath:  dbPath,
		Debug:   debug,
		Format:  format,
		DB:      db,
		Conf:    conf,
	}
	return ctx, nil
}

// applyOverrides replaces config values with the flags set on the command line.
func applyOverrides(cmd *urfave.Command, c *config.Config) {
	if cmd.IsSet(level1DirFlag.Name) {
		c.Level1Dir = cmd.String(level1DirFlag.Name)
	}
	if cmd.IsSet(level2DirFlag.Name) {
		c.Level2Dir = cmd.String(level2DirFlag.Name)
	}
	if cmd.IsSet(finalModelFlag.Name) {
		c.FinalModel = cmd.String(finalModelFlag.Name)
	}
	if cmd.IsSet(allowPartialFlag.Name) {
		c.AllowPartialInputs = cmd.Bool(allowPartialFlag.Name)
	}
}

func initLogging(w io.Writer, debug bool) {
	level := "info"
	if debug {
		level = "debug"
	}
	if w == nil {
		w = os.Stderr
	}
	slog.SetDefault(slog.New(logging.NewCLIHandler(w, logging.ParseLogLevel(level))))
}

func encode(cmd *urfave.Command, v any) error {
	w := cmd.Root().Writer
	if w == nil {
		w = os.Stdout
	}
	if getConfig(cmd).Format == formatYAML {
		return yaml.NewEncoder(w).Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
