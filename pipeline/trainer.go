package pipeline

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/metrics"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
	"github.com/YuminosukeSato/heartrisk/sklearn/model_selection"
)

// rocGridPoints is the size of the fixed false-positive-rate grid.
const rocGridPoints = 100

// CVStats summarizes cross-validation: the mean ROC curve on the fixed FPR
// grid, its AUC, and the AUC of every fold.
type CVStats struct {
	FPR      []float64
	TPR      []float64
	AUC      float64
	FoldAUCs []float64
}

// Artifact is the result of one pipeline run.
type Artifact struct {
	Model    model.Classifier
	Stats    CVStats
	Accuracy float64
}

// Trainer cross-validates a model family on a training set and fits the
// final model on all of it.
type Trainer struct {
	X       *mat.Dense
	y       *mat.VecDense
	method  Method
	nSplits int
	threads int
	settings
}

// NewTrainer binds training data to a method. It fails with an
// UnsupportedMethodError for an unknown method.
func NewTrainer(X mat.Matrix, y *mat.VecDense, method Method, nSplits, threads int, opts ...Option) (*Trainer, error) {
	if !method.Valid() {
		return nil, errors.NewUnsupportedMethodError(method.String(), methodNameList())
	}
	r, _ := X.Dims()
	if y.Len() != r {
		return nil, errors.NewDimensionError("NewTrainer", r, y.Len(), 0)
	}
	if nSplits < 2 {
		return nil, errors.NewValidationError("n_splits", "must be >= 2", nSplits)
	}
	t := &Trainer{
		X:        asDense(X),
		y:        y,
		method:   method,
		nSplits:  nSplits,
		threads:  threads,
		settings: newSettings("Trainer", opts),
	}
	t.logger = t.logger.With(log.MethodKey, method.String())
	return t, nil
}

// Spec returns the model configuration for the given number of NN epochs.
func (t *Trainer) Spec(epochs int) ModelSpec {
	return ModelSpec{
		Method:  t.method,
		Threads: t.threads,
		Epochs:  epochs,
		Seed:    int64(t.seed),
		Logger:  t.logger,
	}
}

// CrossValidate runs shuffled stratified k-fold with a fresh model per fold
// and averages the interpolated ROC curves.
func (t *Trainer) CrossValidate() (CVStats, error) {
	t.progress("validating model",
		log.PhaseKey, log.PhaseValidation,
		log.SplitsKey, t.nSplits,
	)
	start := time.Now()

	folds, err := model_selection.NewStratifiedKFold(t.nSplits, true, t.seed).Split(t.y)
	if err != nil {
		return CVStats{}, err
	}
	spec := t.Spec(CVEpochs)
	acc := metrics.NewROCAccumulator(rocGridPoints)

	for i, fold := range folds {
		Xtr, ytr := selectRows(t.X, t.y, fold.TrainIndices)
		Xte, yte := selectRows(t.X, t.y, fold.TestIndices)

		m := spec.New()
		if err := m.Fit(Xtr, ytr); err != nil {
			return CVStats{}, err
		}
		scores, err := positiveScores(m, Xte)
		if err != nil {
			return CVStats{}, err
		}
		fpr, tpr, _, err := metrics.ROCCurve(yte.RawVector().Data, scores)
		if err != nil {
			return CVStats{}, err
		}
		foldAUC, err := acc.Add(fpr, tpr)
		if err != nil {
			return CVStats{}, err
		}
		t.logger.Debug("fold finished", log.FoldKey, i+1, log.AUCKey, foldAUC)
	}

	fpr, tpr, auc, err := acc.Mean(len(folds))
	if err != nil {
		return CVStats{}, err
	}
	t.progress(fmt.Sprintf("mean AUC: %.4f", auc),
		log.AUCKey, auc,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return CVStats{FPR: fpr, TPR: tpr, AUC: auc, FoldAUCs: acc.FoldAUCs()}, nil
}

// Fit cross-validates and then fits one model on the whole training set.
func (t *Trainer) Fit() (model.Classifier, CVStats, error) {
	stats, err := t.CrossValidate()
	if err != nil {
		return nil, CVStats{}, err
	}
	t.progress("training final model", log.PhaseKey, log.PhaseTraining)
	m := t.Spec(FinalEpochs).New()
	if err := m.Fit(t.X, t.y); err != nil {
		return nil, CVStats{}, err
	}
	return m, stats, nil
}

// Evaluate returns the accuracy of m's hard predictions on X. Held-out AUC
// and log loss of the positive-class scores are logged alongside it.
func (t *Trainer) Evaluate(X mat.Matrix, y *mat.VecDense, m model.Classifier) (float64, error) {
	pred, err := m.Predict(X)
	if err != nil {
		return 0, err
	}
	n, _ := pred.Dims()
	accuracy, err := metrics.Accuracy(y, mat.NewVecDense(n, mat.Col(nil, 0, pred)))
	if err != nil {
		return 0, err
	}

	scores, err := positiveScores(m, X)
	if err != nil {
		return 0, err
	}
	sv := mat.NewVecDense(n, scores)
	auc, err := metrics.AUC(y, sv)
	if err != nil {
		return 0, err
	}
	loss, err := metrics.BinaryLogLoss(y, sv)
	if err != nil {
		return 0, err
	}

	t.progress(fmt.Sprintf("ACC: %.4f", accuracy),
		log.PhaseKey, log.PhaseTesting,
		log.AccuracyKey, accuracy,
		log.AUCKey, auc,
		log.LossKey, loss,
	)
	return accuracy, nil
}

// positiveScores returns P(y=1) per row. For the network this is the raw
// sigmoid output.
func positiveScores(m model.Classifier, X mat.Matrix) ([]float64, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	_, c := proba.Dims()
	return mat.Col(nil, c-1, proba), nil
}

func selectRows(X *mat.Dense, y *mat.VecDense, idx []int) (*mat.Dense, *mat.VecDense) {
	_, c := X.Dims()
	Xs := mat.NewDense(len(idx), c, nil)
	ys := mat.NewVecDense(len(idx), nil)
	for k, i := range idx {
		Xs.SetRow(k, X.RawRowView(i))
		ys.SetVec(k, y.AtVec(i))
	}
	return Xs, ys
}
