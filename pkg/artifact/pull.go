package artifact

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/riskcascade/pkg/net"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	ManifestFileName = "manifest.yaml"

	pullConcurrency = 4
	dirMode         = 0700
)

// Layout names the three artifact locations used by the pipeline.
type Layout struct {
	Level1Dir string `json:"level1_dir" yaml:"level1_dir"`
	Level2Dir string `json:"level2_dir" yaml:"level2_dir"`
	FinalPath string `json:"final_model" yaml:"final_model"`
}

// Manifest lists the artifact files published by a registry, relative to the manifest URL.
type Manifest struct {
	Level1 []string `json:"level1,omitempty" yaml:"level1,omitempty"`
	Level2 []string `json:"level2,omitempty" yaml:"level2,omitempty"`
	Final  string   `json:"final,omitempty" yaml:"final,omitempty"`
}

// PullResult reports the files written by Pull.
type PullResult struct {
	URL   string   `json:"url" yaml:"url"`
	Files []string `json:"files" yaml:"files"`
}

type pullItem struct {
	url  string
	path string
}

// Pull downloads the registry manifest at baseURL and every artifact it lists into the layout.
// Each downloaded file is loaded once to make sure it is a valid artifact of the expected kind.
func Pull(ctx context.Context, c *http.Client, baseURL string, l Layout) (*PullResult, error) {
	if baseURL == "" {
		return nil, errors.New("registry URL required")
	}
	base := strings.TrimSuffix(baseURL, "/")

	var m Manifest
	if err := net.GetYAML(ctx, c, base+"/"+ManifestFileName, &m); err != nil {
		return nil, errors.Wrap(err, "error fetching manifest")
	}

	items, err := plan(base, &m, l)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pullConcurrency)
	for _, it := range items {
		g.Go(func() error {
			if err := os.MkdirAll(filepath.Dir(it.path), dirMode); err != nil {
				return errors.Wrapf(err, "failed to create dir for %s", it.path)
			}
			slog.Debug("downloading artifact", "url", it.url, "path", it.path)
			return net.Download(gctx, c, it.url, it.path)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &PullResult{URL: base, Files: make([]string, 0, len(items))}
	for _, it := range items {
		res.Files = append(res.Files, it.path)
	}

	if err := verify(&m, l); err != nil {
		return res, err
	}
	return res, nil
}

func plan(base string, m *Manifest, l Layout) ([]pullItem, error) {
	var items []pullItem
	add := func(name, path string) error {
		if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
			return errors.Errorf("invalid artifact file name in manifest: %q", name)
		}
		items = append(items, pullItem{url: base + "/" + name, path: path})
		return nil
	}

	// stage directories are only read through Discover, so names must follow its convention
	addDiscoverable := func(name, dir string) error {
		if _, ok := nameFor(name); !ok {
			return errors.Errorf("artifact file name %q in manifest must end in %s with one of %v", name, nameSuffix, extensions)
		}
		return add(name, filepath.Join(dir, name))
	}

	for _, n := range m.Level1 {
		if err := addDiscoverable(n, l.Level1Dir); err != nil {
			return nil, err
		}
	}
	for _, n := range m.Level2 {
		if err := addDiscoverable(n, l.Level2Dir); err != nil {
			return nil, err
		}
	}
	if m.Final != "" {
		if err := add(m.Final, l.FinalPath); err != nil {
			return nil, err
		}
	}

	if len(items) == 0 {
		return nil, errors.New("manifest lists no artifacts")
	}
	return items, nil
}

func verify(m *Manifest, l Layout) error {
	for _, n := range m.Level1 {
		if _, err := LoadSingle(filepath.Join(l.Level1Dir, n)); err != nil {
			return err
		}
	}
	for _, n := range m.Level2 {
		if _, err := LoadMulti(filepath.Join(l.Level2Dir, n)); err != nil {
			return err
		}
	}
	if m.Final != "" {
		if _, err := LoadFinal(l.FinalPath); err != nil {
			return err
		}
	}
	return nil
}
