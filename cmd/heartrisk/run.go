package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/heartrisk/config"
	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/pipeline"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
	"github.com/YuminosukeSato/heartrisk/report"
)

// app bundles what both modes need.
type app struct {
	cfg     config.Config
	out     io.Writer
	logger  log.Logger
	metrics *report.Metrics
	opts    []pipeline.Option
	threads int
}

func run(cmd *cobra.Command, cfg config.Config) error {
	if cfg.Data == "" {
		return errors.NewValidationError("data", "a CSV file is required", cfg.Data)
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	runID := report.NewRunID()
	provider := log.NewZerologProvider(level,
		log.WithWriter(cmd.ErrOrStderr()),
		log.WithConsole(true),
		log.WithFields(log.RunIDKey, runID),
	)
	if err := log.SetProvider(provider); err != nil {
		return err
	}
	errors.SetWarningLogger(provider.Zerolog())
	logger := provider.GetLoggerWithName("heartrisk")

	ds, err := dataset.LoadCSV(cfg.Data)
	if err != nil {
		return err
	}
	n, d := ds.Features.Dims()
	logger.Debug("data loaded", log.SamplesKey, n, log.FeaturesKey, d)

	a := &app{
		cfg:     cfg,
		out:     cmd.OutOrStdout(),
		logger:  logger,
		metrics: report.NewMetrics(runID),
		threads: cfg.EffectiveThreads(),
		opts: []pipeline.Option{
			pipeline.WithLogger(logger),
			pipeline.WithVerbose(cfg.Verbose),
			pipeline.WithSeed(cfg.Seed),
		},
	}
	if cfg.Optimize {
		return a.optimize(ds)
	}
	return a.single(ds)
}

// single runs the configured combination once.
func (a *app) single(ds *dataset.Dataset) error {
	train, test, err := pipeline.Split(ds, a.opts...)
	if err != nil {
		return err
	}
	combo := pipeline.Combination{
		K:           a.cfg.K,
		Degree:      a.cfg.Degree,
		NComponents: a.cfg.NComponents,
		Method:      a.cfg.Method,
	}

	start := time.Now()
	result, err := pipeline.RunCombination(train, test, combo, a.cfg.Categorical, a.cfg.NSplits, a.threads, a.opts...)
	if err != nil {
		return err
	}
	a.metrics.Observe(result, time.Since(start))
	a.metrics.SetBest(result.Artifact.Accuracy)

	if err := a.ensureOutputDir(); err != nil {
		return err
	}
	a.plot("components", func(dir string) error {
		return report.PlotComponents(filepath.Join(dir, report.ComponentsFile),
			result.Train.Projected, train.Labels, result.Train.VarianceRatio)
	})

	fmt.Fprintf(a.out, "Mean AUC: %.4f\n", result.Artifact.Stats.AUC)
	fmt.Fprintf(a.out, "ACC: %.4f\n", result.Artifact.Accuracy)
	if len(result.BestFeatures) > 0 {
		fmt.Fprintln(a.out, "The top 10 features are:")
		for i, name := range result.BestFeatures {
			fmt.Fprintf(a.out, "%d. %s\n", i+1, name)
		}
	}
	return a.finish(combo.Method, result.Artifact)
}

// optimize sweeps the grid and keeps the most accurate combination.
func (a *app) optimize(ds *dataset.Dataset) error {
	opts := append(a.opts, pipeline.WithObserver(func(s pipeline.SweepStep) {
		a.metrics.ObserveStep(s)
		c := s.Result.Combination
		fmt.Fprintf(a.out, "[%d/%d] method=%s k=%d degree=%d n_components=%d accuracy=%.4f\n",
			s.Index+1, s.Total, c.Method, c.K, c.Degree, c.NComponents, s.Result.Artifact.Accuracy)
	}))
	best, err := pipeline.NewGridSearch(a.cfg.Grid, a.cfg.Categorical, a.threads, opts...).Run(ds)
	if err != nil {
		return err
	}
	if best == nil {
		return errors.NewValueError("optimize", "the grid produced no combinations")
	}

	c := best.Combination
	fmt.Fprintf(a.out, "Params best ACC:\nMethod: %s\nk: %d\ndegree: %d\nn_components: %d\nACC: %.4f\n",
		c.Method, c.K, c.Degree, c.NComponents, best.Accuracy)

	if err := a.ensureOutputDir(); err != nil {
		return err
	}
	return a.finish(c.Method, best.Result.Artifact)
}

// finish writes the ROC plot, the model and the metrics textfile.
func (a *app) finish(method pipeline.Method, artifact pipeline.Artifact) error {
	a.plot("roc", func(dir string) error {
		return report.PlotROC(filepath.Join(dir, report.ROCFile), artifact.Stats)
	})

	path, err := report.SaveModel(a.cfg.OutputDir, method, artifact.Model)
	if err != nil {
		return err
	}
	a.logger.Info("model saved", "path", path, log.MethodKey, method.String())

	metricsPath, err := a.metrics.WriteTextfile(a.cfg.OutputDir)
	if err != nil {
		return err
	}
	a.logger.Debug("metrics written", "path", metricsPath)
	return nil
}

func (a *app) ensureOutputDir() error {
	if err := os.MkdirAll(a.cfg.OutputDir, 0o755); err != nil {
		return errors.Wrapf(err, "create output directory %s", a.cfg.OutputDir)
	}
	return nil
}

// plot renders a figure. Plot failures are logged and do not fail the run.
func (a *app) plot(name string, render func(dir string) error) {
	if err := render(a.cfg.OutputDir); err != nil {
		a.logger.Warn("plot failed", err, "plot", name)
	}
}
