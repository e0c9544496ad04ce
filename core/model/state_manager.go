// Package model provides the estimator interfaces, fitted-state tracking and
// persistence shared by every estimator in heartrisk.
package model

import (
	"sync"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// ModelState is the fitted flag and the training shape. Estimators embed it in
// their gob snapshots and JSON checkpoints.
type ModelState struct {
	Fitted    bool `json:"fitted"`
	NFeatures int  `json:"n_features,omitempty"`
	NSamples  int  `json:"n_samples,omitempty"`
}

// StateManager guards a ModelState. Estimators compose it instead of
// embedding a base type; cross-validation folds fit separate instances
// concurrently, so every access is locked.
type StateManager struct {
	mu    sync.RWMutex
	state ModelState
}

// NewStateManager returns an unfitted state.
func NewStateManager() *StateManager {
	return &StateManager{}
}

func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Fitted
}

func (s *StateManager) SetFitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Fitted = true
}

// Reset clears the fitted flag and the recorded shape.
func (s *StateManager) Reset() {
	s.SetState(ModelState{})
}

// SetDimensions records the shape seen during fitting.
func (s *StateManager) SetDimensions(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.NFeatures = nFeatures
	s.state.NSamples = nSamples
}

func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	st := s.GetState()
	return st.NFeatures, st.NSamples
}

// RequireFitted returns a NotFittedError naming the model and the calling
// method when Fit has not completed.
func (s *StateManager) RequireFitted(modelName, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(modelName, method)
	}
	return nil
}

// CheckFeatures returns a DimensionError when nFeatures differs from the
// training width.
func (s *StateManager) CheckFeatures(op string, nFeatures int) error {
	if expected, _ := s.GetDimensions(); expected != nFeatures {
		return errors.NewDimensionError(op, expected, nFeatures, 1)
	}
	return nil
}

func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *StateManager) SetState(state ModelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}
