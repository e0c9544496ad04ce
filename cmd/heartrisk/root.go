package main

import (
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/heartrisk/config"
)

// cliState carries flag values and the resolved configuration between the
// cobra callbacks and main.
type cliState struct {
	configPath  string
	method      string
	logLevel    string
	flags       config.Config
	resolved    *config.Config
	verboseFlag bool
}

func (s *cliState) verbose() bool {
	if s.resolved != nil {
		return s.resolved.Verbose
	}
	return s.verboseFlag
}

func newRootCmd() (*cobra.Command, *cliState) {
	state := &cliState{flags: config.Default()}
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "heartrisk",
		Short: "Predict ten-year coronary heart disease risk",
		Long: `heartrisk imputes, encodes, scales and expands the clinical features of a
CSV file, projects them with PCA and trains an SVC, logistic regression,
random forest or neural network under stratified cross-validation.

With --optimize it sweeps the configured hyperparameter grid instead and
reports the most accurate combination.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, state)
			if err != nil {
				return err
			}
			state.resolved = &cfg
			return run(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&state.configPath, "config", "", "YAML configuration file; flags override its values")
	f.StringVar(&state.flags.Data, "data", "", "path to data file in .csv format; column names in line 0, last column contains labels")
	f.IntVarP(&state.flags.K, "k", "k", def.K, "k-nearest neighbors used to impute missing values")
	f.IntVar(&state.flags.Degree, "degree", def.Degree, "generate polynomial features up to this degree")
	f.IntVar(&state.flags.NComponents, "n_components", def.NComponents, "number of components used for PCA")
	f.StringSliceVar(&state.flags.Categorical, "categorical", def.Categorical, "categorical features; they are one-hot encoded")
	f.IntVar(&state.flags.NSplits, "n_splits", def.NSplits, "number of splits performed during cross-validation")
	f.StringVar(&state.method, "method", def.Method.String(), "supervised learning method: SVC, LR, RF or NN")
	f.BoolVar(&state.verboseFlag, "verbose", false, "print pipeline progress")
	f.BoolVar(&state.flags.Optimize, "optimize", false, "perform a grid search and print the optimal settings")
	f.StringVar(&state.flags.OutputDir, "output_dir", def.OutputDir, "directory where the model, plots and metrics are written")
	f.IntVar(&state.flags.Threads, "threads", def.Threads, "number of threads to use when possible")
	f.StringVar(&state.logLevel, "log-level", def.LogLevel, "log level: debug, info, warn or error")

	return cmd, state
}

// resolveConfig layers defaults, the optional config file and the flags that
// were set explicitly.
func resolveConfig(cmd *cobra.Command, state *cliState) (config.Config, error) {
	cfg := config.Default()
	if state.configPath != "" {
		loaded, err := config.Load(state.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	f := cmd.Flags()
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}
	set("data", func() { cfg.Data = state.flags.Data })
	set("k", func() { cfg.K = state.flags.K })
	set("degree", func() { cfg.Degree = state.flags.Degree })
	set("n_components", func() { cfg.NComponents = state.flags.NComponents })
	set("categorical", func() { cfg.Categorical = state.flags.Categorical })
	set("n_splits", func() {
		cfg.NSplits = state.flags.NSplits
		cfg.Grid.NSplits = state.flags.NSplits
	})
	set("verbose", func() { cfg.Verbose = state.verboseFlag })
	set("optimize", func() { cfg.Optimize = state.flags.Optimize })
	set("output_dir", func() { cfg.OutputDir = state.flags.OutputDir })
	set("threads", func() { cfg.Threads = state.flags.Threads })
	set("log-level", func() { cfg.LogLevel = state.logLevel })

	var err error
	set("method", func() { err = cfg.Method.UnmarshalText([]byte(state.method)) })
	if err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
