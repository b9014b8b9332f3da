package process

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk script allow list (scripts.yaml or scripts.json).
type Config struct {
	Allow   []string          `yaml:"allow" json:"allow"`
	BaseDir string            `yaml:"base_dir,omitempty" json:"base_dir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// LoadConfig reads a YAML or JSON allow-list file. A missing file yields an
// empty config, treating it as "no scripts allowed".
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, errors.Wrap(err, "read script allow list")
	}

	var cfg Config
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse script allow list %s", path)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse script allow list %s", path)
	}
	return cfg, nil
}

// Performer builds a Performer from the config.
func (c Config) Performer() *Performer {
	var opts []Option
	if c.BaseDir != "" {
		opts = append(opts, WithBaseDir(c.BaseDir))
	}
	if len(c.Env) > 0 {
		opts = append(opts, WithEnv(c.Env))
	}
	return New(c.Allow, opts...)
}
