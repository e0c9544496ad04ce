package report

import (
	"path/filepath"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pipeline"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// Model file names. Classical models are gob-encoded; the network is stored
// as a JSON weight checkpoint.
const (
	ModelFile      = "trained_model.gob"
	CheckpointFile = "trained_model.json"
)

// ModelPath returns where SaveModel writes a model of the given method.
func ModelPath(dir string, method pipeline.Method) string {
	if method == pipeline.NN {
		return filepath.Join(dir, CheckpointFile)
	}
	return filepath.Join(dir, ModelFile)
}

// SaveModel persists m into dir and returns the written path.
func SaveModel(dir string, method pipeline.Method, m model.Classifier) (string, error) {
	path := ModelPath(dir, method)
	if method == pipeline.NN {
		c, ok := m.(model.Checkpointer)
		if !ok {
			return "", errors.NewValueError("SaveModel", "network model does not support weight checkpoints")
		}
		return path, model.SaveWeights(c, path)
	}
	return path, model.SaveModel(m, path)
}

// LoadModel restores a model written by SaveModel for the given method.
func LoadModel(dir string, method pipeline.Method) (model.Classifier, error) {
	m := pipeline.ModelSpec{Method: method}.New()
	if m == nil {
		return nil, errors.NewUnsupportedMethodError(method.String(), nil)
	}
	path := ModelPath(dir, method)
	if method == pipeline.NN {
		if err := model.LoadWeights(m.(model.Checkpointer), path); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err := model.LoadModel(m, path); err != nil {
		return nil, err
	}
	return m, nil
}
