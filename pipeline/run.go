package pipeline

import (
	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
	"github.com/YuminosukeSato/heartrisk/sklearn/model_selection"
)

// testSize is the held-out fraction of the train/test split.
const testSize = 0.2

// Combination is one point of the hyperparameter grid. Degree 0 disables the
// polynomial expansion.
type Combination struct {
	K           int    `yaml:"k" json:"k"`
	Degree      int    `yaml:"degree" json:"degree"`
	NComponents int    `yaml:"n_components" json:"n_components"`
	Method      Method `yaml:"method" json:"method"`
}

func (c Combination) logFields() []any {
	return []any{
		log.MethodKey, c.Method.String(),
		log.NeighborsKey, c.K,
		log.DegreeKey, c.Degree,
		log.ComponentsKey, c.NComponents,
	}
}

// RunResult is everything one pipeline run produces.
type RunResult struct {
	Combination Combination
	Artifact    Artifact
	// Train is the reduction fit on the training split.
	Train *Reduction
	// TrainFeatures are the preprocessed column names fed to the PCA.
	TrainFeatures []string
	// BestFeatures is set for random forests only.
	BestFeatures []string
}

// Split divides ds into an 80/20 train/test split with the configured seed.
func Split(ds *dataset.Dataset, opts ...Option) (train, test *dataset.Dataset, err error) {
	s := newSettings("Split", opts)
	trainIdx, testIdx, err := model_selection.TrainTestSplit(ds.Len(), testSize, s.seed)
	if err != nil {
		return nil, nil, err
	}
	return ds.Subset(trainIdx), ds.Subset(testIdx), nil
}

// RunCombination preprocesses and reduces the train and test splits
// independently, trains on the train projection and evaluates on the test
// projection.
func RunCombination(train, test *dataset.Dataset, combo Combination, categorical []string, nSplits, threads int, opts ...Option) (*RunResult, error) {
	opts = append(opts[:len(opts):len(opts)], withFields(combo.logFields()...))

	prepTrain, err := NewPreprocessor(combo.K, combo.Degree, categorical, combo.Method, opts...).Process(train.Features)
	if err != nil {
		return nil, err
	}
	redTrain, err := NewReducer(combo.NComponents, opts...).Reduce(prepTrain)
	if err != nil {
		return nil, err
	}

	// The test split gets its own scaler and PCA fits.
	prepTest, err := NewPreprocessor(combo.K, combo.Degree, categorical, combo.Method, opts...).Process(test.Features)
	if err != nil {
		return nil, err
	}
	redTest, err := NewReducer(combo.NComponents, opts...).Reduce(prepTest)
	if err != nil {
		return nil, err
	}

	trainer, err := NewTrainer(redTrain.Projected.X, train.Labels, combo.Method, nSplits, threads, opts...)
	if err != nil {
		return nil, err
	}
	m, stats, err := trainer.Fit()
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		Combination:   combo,
		Train:         redTrain,
		TrainFeatures: prepTrain.Names,
	}
	if combo.Method == RF {
		best, err := BestFeatures(m, redTrain.Components, redTrain.VarianceRatio, prepTrain.Names)
		if err != nil {
			return nil, err
		}
		result.BestFeatures = best
		for i, name := range best {
			trainer.progress("top feature", "rank", i+1, log.ColumnKey, name)
		}
	}

	accuracy, err := trainer.Evaluate(redTest.Projected.X, test.Labels, m)
	if err != nil {
		return nil, err
	}
	result.Artifact = Artifact{Model: m, Stats: stats, Accuracy: accuracy}
	return result, nil
}
