// Standard attribute keys for pipeline logging.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples") so
// that log lines from the preprocessing, training and sweep stages can be
// filtered the same way.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type, e.g. "RandomForestClassifier".
	ModelNameKey = "model.name"

	// MethodKey is the learning method of the run: "SVC", "LR", "RF" or "NN".
	MethodKey = "model.method"

	// OperationKey specifies the operation being performed ("fit", "transform", ...).
	OperationKey = "ml.operation"

	// ComponentKey identifies the component that produced the record.
	ComponentKey = "ml.component"

	// PhaseKey indicates the pipeline phase.
	PhaseKey = "ml.phase"

	// RunIDKey carries the identifier of one CLI invocation.
	RunIDKey = "run.id"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"

	// ColumnKey names a single feature column.
	ColumnKey = "data.column"

	// BatchSizeKey is the minibatch size of iterative solvers.
	BatchSizeKey = "data.batch_size"
)

// Hyperparameters of a pipeline combination.
const (
	NeighborsKey    = "hyperparams.k"
	DegreeKey       = "hyperparams.degree"
	ComponentsKey   = "hyperparams.n_components"
	SplitsKey       = "cv.n_splits"
	FoldKey         = "cv.fold"
	ThreadsKey      = "config.threads"
	RandomSeedKey   = "config.random_seed"
	LearningRateKey = "hyperparams.learning_rate"
)

// Metrics.
const (
	AccuracyKey   = "metrics.accuracy"
	AUCKey        = "metrics.auc"
	LossKey       = "metrics.loss"
	IterationKey  = "training.iteration"
	EpochKey      = "training.epoch"
	DurationMsKey = "perf.duration_ms"
)

// Error context.
const (
	ErrorCodeKey  = "error.code"
	StacktraceKey = "error.stacktrace"
	SuggestionKey = "error.suggestion"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationEvaluate  = "evaluate"

	PhasePreprocessing = "preprocessing"
	PhaseReduction     = "reduction"
	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhaseSweep         = "sweep"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorConvergence       = "CONVERGENCE_FAILURE"
)
