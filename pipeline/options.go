// Package pipeline wires imputation, encoding, scaling, PCA and model
// training into the health-risk classification workflow, and sweeps
// hyperparameter grids over it.
package pipeline

import (
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// DefaultSeed seeds every split, the random forest and the neural network.
const DefaultSeed = 42

// settings is shared by every constructor in this package.
type settings struct {
	logger   log.Logger
	verbose  bool
	seed     uint64
	observer func(SweepStep)
}

// Option configures pipeline components.
type Option func(*settings)

// WithLogger sets the logger. Components add their own name to it.
func WithLogger(logger log.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVerbose raises progress messages from debug to info level.
func WithVerbose(verbose bool) Option {
	return func(s *settings) { s.verbose = verbose }
}

// WithSeed overrides DefaultSeed.
func WithSeed(seed uint64) Option {
	return func(s *settings) { s.seed = seed }
}

// WithObserver registers a callback invoked after every sweep combination.
func WithObserver(fn func(SweepStep)) Option {
	return func(s *settings) { s.observer = fn }
}

// withFields attaches fields to whatever logger the earlier options chose.
func withFields(fields ...any) Option {
	return func(s *settings) {
		if s.logger == nil {
			s.logger = log.GetLogger()
		}
		s.logger = s.logger.With(fields...)
	}
}

func newSettings(component string, opts []Option) settings {
	s := settings{seed: DefaultSeed}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = log.GetLogger()
	}
	s.logger = s.logger.With(log.ComponentKey, component)
	return s
}

// progress logs pipeline milestones at info when verbose and debug otherwise.
func (s settings) progress(msg string, fields ...any) {
	if s.verbose {
		s.logger.Info(msg, fields...)
		return
	}
	s.logger.Debug(msg, fields...)
}
