// Package config holds the run configuration of the heartrisk CLI. Values
// come from built-in defaults, an optional YAML file and finally command-line
// flags.
package config

import (
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/heartrisk/pipeline"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// DefaultCategorical are the categorical columns of the Framingham data.
var DefaultCategorical = []string{
	"education", "male", "currentSmoker", "prevalentStroke", "prevalentHyp", "diabetes",
}

// Config is the complete run configuration.
type Config struct {
	Data        string          `yaml:"data"`
	K           int             `yaml:"k"`
	Degree      int             `yaml:"degree"`
	NComponents int             `yaml:"n_components"`
	Categorical []string        `yaml:"categorical"`
	NSplits     int             `yaml:"n_splits"`
	Method      pipeline.Method `yaml:"method"`
	Verbose     bool            `yaml:"verbose"`
	Optimize    bool            `yaml:"optimize"`
	OutputDir   string          `yaml:"output_dir"`
	Threads     int             `yaml:"threads"`
	LogLevel    string          `yaml:"log_level"`
	Seed        uint64          `yaml:"seed"`
	// Grid is the hyperparameter space used in optimize mode.
	Grid pipeline.Grid `yaml:"grid"`
}

// Default returns the configuration used when neither a file nor flags
// override anything.
func Default() Config {
	return Config{
		K:           2,
		Degree:      3,
		NComponents: 4,
		Categorical: append([]string(nil), DefaultCategorical...),
		NSplits:     10,
		Method:      pipeline.RF,
		OutputDir:   "./output/",
		Threads:     8,
		LogLevel:    "info",
		Seed:        pipeline.DefaultSeed,
		Grid:        pipeline.DefaultGrid(),
	}
}

// Load reads a YAML file on top of the defaults. Keys absent from the file
// keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Write stores cfg as YAML at path.
func Write(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write config %s", path)
}

// Validate rejects configurations that cannot run. The data path is checked
// by the caller since it is required only when the pipeline actually runs.
func (c Config) Validate() error {
	switch {
	case c.K < 1:
		return errors.NewValidationError("k", "must be >= 1", c.K)
	case c.Degree < 0:
		return errors.NewValidationError("degree", "must be >= 0", c.Degree)
	case c.NComponents < 1:
		return errors.NewValidationError("n_components", "must be >= 1", c.NComponents)
	case c.NSplits < 2:
		return errors.NewValidationError("n_splits", "must be >= 2", c.NSplits)
	case !c.Method.Valid():
		return errors.NewUnsupportedMethodError(c.Method.String(), methodNames())
	case c.OutputDir == "":
		return errors.NewValidationError("output_dir", "must not be empty", c.OutputDir)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.NewValidationError("log_level", err.Error(), c.LogLevel)
	}
	if c.Optimize {
		return c.Grid.Validate()
	}
	return nil
}

// EffectiveThreads clamps the thread hint to at least one and at most the
// number of CPUs.
func (c Config) EffectiveThreads() int {
	return max(1, min(c.Threads, runtime.NumCPU()))
}

func methodNames() []string {
	names := make([]string, 0, 4)
	for _, m := range pipeline.Methods() {
		names = append(names, m.String())
	}
	return names
}
