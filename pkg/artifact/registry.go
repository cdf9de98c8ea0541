package artifact

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const nameSuffix = "_model"

var extensions = []string{".yaml", ".yml", ".json"}

// Discover lists the artifact files in dir without loading them.
// Callers must not depend on the order of the result.
func Discover(dir string) ([]Ref, error) {
	if dir == "" {
		return nil, errors.New("artifact directory required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading artifact directory: %s", dir)
	}

	refs := make([]Ref, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := nameFor(e.Name())
		if !ok {
			continue
		}
		refs = append(refs, Ref{Name: name, Path: filepath.Join(dir, e.Name())})
	}
	return refs, nil
}

// List discovers and loads every artifact in dir. The first load failure is returned.
func List(dir string, kind Kind) ([]Artifact, error) {
	refs, err := Discover(dir)
	if err != nil {
		return nil, err
	}

	out := make([]Artifact, 0, len(refs))
	for _, r := range refs {
		a, err := Load(r.Path)
		if err != nil {
			return nil, err
		}
		if kind != "" && a.Kind() != kind {
			return nil, errors.Errorf("artifact %s is %s, expected %s", r.Path, a.Kind(), kind)
		}
		out = append(out, a)
	}
	return out, nil
}

// nameFor returns the artifact name for a file name such as "income_model.yaml".
func nameFor(file string) (string, bool) {
	for _, ext := range extensions {
		stem, ok := strings.CutSuffix(file, ext)
		if !ok {
			continue
		}
		name, ok := strings.CutSuffix(stem, nameSuffix)
		if !ok || name == "" {
			return "", false
		}
		return name, true
	}
	return "", false
}
