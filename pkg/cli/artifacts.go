package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mchmarny/riskcascade/pkg/artifact"
	"github.com/mchmarny/riskcascade/pkg/net"
	"github.com/mchmarny/riskcascade/pkg/pipeline"
	urfave "github.com/urfave/cli/v3"
)

const (
	statusOK      = "ok"
	statusInvalid = "invalid"
	statusMissing = "missing"
)

var (
	registryURLFlag = &urfave.StringFlag{
		Name:  "url",
		Usage: "Artifact registry URL (default: registry_url from config)",
	}

	artifactsCmd = &urfave.Command{
		Name:            "artifacts",
		Aliases:         []string{"art"},
		Usage:           "Inspect and download model artifacts",
		HideHelpCommand: true,
		Commands: []*urfave.Command{
			{
				Name:   "list",
				Usage:  "List the artifacts each stage would use",
				Action: cmdListArtifacts,
			},
			{
				Name:   "pull",
				Usage:  "Download artifacts from a registry into the configured locations",
				Flags:  []urfave.Flag{registryURLFlag},
				Action: cmdPullArtifacts,
			},
		},
	}
)

// ArtifactInfo describes one artifact file and whether it loads.
type ArtifactInfo struct {
	Stage  pipeline.Stage `json:"stage" yaml:"stage"`
	Name   string         `json:"name" yaml:"name"`
	Path   string         `json:"path" yaml:"path"`
	Kind   artifact.Kind  `json:"kind,omitempty" yaml:"kind,omitempty"`
	Status string         `json:"status" yaml:"status"`
	Error  string         `json:"error,omitempty" yaml:"error,omitempty"`
}

func cmdListArtifacts(_ context.Context, cmd *urfave.Command) error {
	list := listArtifacts(getConfig(cmd).Conf.Layout())
	if err := encode(cmd, list); err != nil {
		return fmt.Errorf("encoding artifacts: %w", err)
	}
	return nil
}

// listArtifacts loads every artifact in the layout. Load failures are reported per artifact.
func listArtifacts(l artifact.Layout) []*ArtifactInfo {
	list := make([]*ArtifactInfo, 0)

	dirs := []struct {
		stage pipeline.Stage
		dir   string
		kind  artifact.Kind
	}{
		{pipeline.StageFeature, l.Level1Dir, artifact.KindSingle},
		{pipeline.StageGroup, l.Level2Dir, artifact.KindMulti},
	}
	for _, d := range dirs {
		refs, err := artifact.Discover(d.dir)
		if err != nil {
			slog.Debug("artifact dir unavailable", "stage", d.stage, "dir", d.dir, "error", err)
			list = append(list, &ArtifactInfo{Stage: d.stage, Path: d.dir, Status: statusMissing, Error: err.Error()})
			continue
		}
		for _, ref := range refs {
			list = append(list, inspect(d.stage, ref, d.kind))
		}
	}

	final := artifact.Ref{Name: "final", Path: l.FinalPath}
	if _, err := os.Stat(l.FinalPath); l.FinalPath == "" || errors.Is(err, os.ErrNotExist) {
		list = append(list, &ArtifactInfo{Stage: pipeline.StageFinal, Name: final.Name, Path: final.Path, Status: statusMissing})
		return list
	}
	return append(list, inspect(pipeline.StageFinal, final, artifact.KindFinal))
}

func inspect(stage pipeline.Stage, ref artifact.Ref, want artifact.Kind) *ArtifactInfo {
	info := &ArtifactInfo{Stage: stage, Name: ref.Name, Path: ref.Path}

	a, err := artifact.Load(ref.Path)
	if err != nil {
		info.Status = statusInvalid
		info.Error = err.Error()
		return info
	}

	info.Kind = a.Kind()
	if a.Kind() != want {
		info.Status = statusInvalid
		info.Error = fmt.Sprintf("expected %s artifact", want)
		return info
	}
	if stage == pipeline.StageFinal {
		info.Name = a.Source().Name
	}
	info.Status = statusOK
	return info
}

func cmdPullArtifacts(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)

	url := cmd.String(registryURLFlag.Name)
	if url == "" {
		url = cfg.Conf.RegistryURL
	}
	if url == "" {
		return errors.New("registry URL required: set --url or registry_url in config")
	}

	token, err := getRegistryToken(cfg.HomeDir)
	if err != nil {
		slog.Debug("no registry token, pulling anonymously", "error", err)
	}

	client, err := net.GetClient(ctx, token)
	if err != nil {
		return fmt.Errorf("creating HTTP client: %w", err)
	}

	res, err := artifact.Pull(ctx, client, url, cfg.Conf.Layout())
	if err != nil {
		return fmt.Errorf("pulling artifacts: %w", err)
	}

	slog.Info("artifacts pulled", "url", res.URL, "files", len(res.Files))
	if err := encode(cmd, res); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}
