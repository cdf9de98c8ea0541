package pipeline

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mchmarny/riskcascade/pkg/artifact"
	"github.com/mchmarny/riskcascade/pkg/dataset"
	"github.com/stretchr/testify/require"
)

const (
	// income <= 30000 is High risk
	incomeArtifact = `
kind: single
model:
  type: tree
  features: 1
  root:
    feature: 0
    threshold: 30000
    left: {class: 0}
    right: {class: 1}
encoder_y: {type: label, classes: [High, Low]}
`
	// age binned at 30 and 60, the youngest bin is Young
	ageArtifact = `
kind: single
model:
  type: tree
  features: 1
  root:
    feature: 0
    threshold: 0.5
    left: {class: 1}
    right: {class: 0}
encoder_x: {type: bins, edges: [30, 60]}
encoder_y: {type: label, classes: [Mature, Young]}
`
	// only looks at its first input
	groupArtifact = `
kind: multi
model:
  type: tree
  root:
    feature: 0
    threshold: 0.5
    left: {class: 0}
    right: {class: 1}
encoders:
  groupA_Risk: {type: label, classes: [Elevated, Normal]}
  incomeRisk: {type: label, classes: [High, Low]}
  ageRisk: {type: label, classes: [Mature, Young]}
`
	// Elevated group risk is class 5 (High), otherwise class 1 (Low)
	finalArtifact = `
kind: final
model:
  type: tree
  features: 2
  root:
    feature: 0
    threshold: 0.5
    left: {class: 5}
    right: {class: 1}
encoders:
  groupA_Risk: {type: label, classes: [Elevated, Normal]}
  age: {type: bins, edges: [30, 60]}
feature_names: [groupA_RiskEncoded, ageEncoded]
`
)

type fixture struct {
	cfg Config
	dir string
}

// newFixture lays out the default artifacts: income and age in stage 1, groupA in stage 2
// and the final model.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir: dir,
		cfg: Config{
			Layout: artifact.Layout{
				Level1Dir: filepath.Join(dir, "level1"),
				Level2Dir: filepath.Join(dir, "level2"),
				FinalPath: filepath.Join(dir, "level3", "level3_model.yaml"),
			},
		},
	}
	for _, d := range []string{f.cfg.Level1Dir, f.cfg.Level2Dir, filepath.Dir(f.cfg.FinalPath)} {
		require.NoError(t, os.MkdirAll(d, 0700))
	}

	f.level1(t, "income_model.yaml", incomeArtifact)
	f.level1(t, "age_model.yaml", ageArtifact)
	f.level2(t, "groupA_model.yaml", groupArtifact)
	f.final(t, finalArtifact)
	return f
}

func (f *fixture) level1(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.Level1Dir, name), []byte(content), 0600))
}

func (f *fixture) level2(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.Level2Dir, name), []byte(content), 0600))
}

func (f *fixture) final(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.cfg.FinalPath, []byte(content), 0600))
}

func (f *fixture) runner(opts ...Option) *Runner {
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return New(f.cfg, append([]Option{WithLogger(l)}, opts...)...)
}

func borrowers(t *testing.T) *dataset.Dataset {
	t.Helper()
	d, err := dataset.FromColumns(
		[]string{"income", "age"},
		[][]string{{"50000", "20000"}, {"25", "61"}},
	)
	require.NoError(t, err)
	return d
}

func column(t *testing.T, d *dataset.Dataset, name string) []string {
	t.Helper()
	v, ok := d.Column(name)
	require.Truef(t, ok, "column %s not found", name)
	return v
}

// withFinalDecoder adds a "Final Risk" encoder to the default final artifact.
func withFinalDecoder(spec string) string {
	return strings.Replace(finalArtifact, "encoders:\n", "encoders:\n  Final Risk: "+spec+"\n", 1)
}

func kindsOf(ws []Warning) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Kind
	}
	return out
}
