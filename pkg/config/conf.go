package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/riskcascade/pkg/artifact"
	"github.com/mchmarny/riskcascade/pkg/auth"
	"github.com/mchmarny/riskcascade/pkg/pipeline"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600

	DefaultLevel1Dir  = "models/level1"
	DefaultLevel2Dir  = "models/level2"
	DefaultFinalModel = "models/level3/level3_model.yaml"
)

// Config represents app config object.
type Config struct {
	Level1Dir          string `yaml:"level1_dir"`
	Level2Dir          string `yaml:"level2_dir"`
	FinalModel         string `yaml:"final_model"`
	AllowPartialInputs bool   `yaml:"allow_partial_inputs"`
	RegistryURL        string `yaml:"registry_url,omitempty"`
	// RegistryAuth enables `riskctl auth --device` against the registry.
	RegistryAuth *auth.Endpoint `yaml:"registry_auth,omitempty"`
}

func getDefaultConfig() *Config {
	return &Config{
		Level1Dir:  DefaultLevel1Dir,
		Level2Dir:  DefaultLevel2Dir,
		FinalModel: DefaultFinalModel,
	}
}

// Layout returns the artifact locations.
func (c *Config) Layout() artifact.Layout {
	return artifact.Layout{
		Level1Dir: c.Level1Dir,
		Level2Dir: c.Level2Dir,
		FinalPath: c.FinalModel,
	}
}

// Pipeline returns the runner configuration.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Layout:             c.Layout(),
		AllowPartialInputs: c.AllowPartialInputs,
	}
}

// fillDefaults sets the artifact locations left empty in the file.
func (c *Config) fillDefaults() {
	d := getDefaultConfig()
	if c.Level1Dir == "" {
		c.Level1Dir = d.Level1Dir
	}
	if c.Level2Dir == "" {
		c.Level2Dir = d.Level2Dir
	}
	if c.FinalModel == "" {
		c.FinalModel = d.FinalModel
	}
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", configFileName)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		err := os.MkdirAll(dirPath, dirMode)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create dir: %s", dirPath)
		}
	}

	path := filepath.Join(dirPath, configFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, getDefaultConfig()); err != nil {
			return nil, errors.Wrap(err, "failed to create default config")
		}
	}

	j, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening config file: %s", path)
	}
	defer j.Close()

	b, err := io.ReadAll(j)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file: %s", path)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling config file: %s", path)
	}
	c.fillDefaults()
	return &c, nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, errors.Wrap(err, "failed to get user home dir")
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		err := os.Mkdir(dir, dirMode)
		if err != nil {
			return "", false, errors.Wrapf(err, "failed to create dir: %s", dir)
		}
		created = true
	}
	return dir, created, nil
}
