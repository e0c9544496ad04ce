package report

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/YuminosukeSato/heartrisk/pipeline"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// MetricsFile is the Prometheus textfile written into the output directory.
const MetricsFile = "metrics.prom"

var combinationLabels = []string{"method", "k", "degree", "n_components"}

// Metrics collects the results of one CLI run in a private registry so that
// they can be dropped as a textfile for node_exporter.
type Metrics struct {
	RunID string

	registry     *prometheus.Registry
	cvAUC        *prometheus.GaugeVec
	accuracy     *prometheus.GaugeVec
	foldAUC      *prometheus.HistogramVec
	duration     *prometheus.HistogramVec
	combinations *prometheus.CounterVec
	bestAccuracy prometheus.Gauge
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// NewMetrics creates the collectors for run runID. An empty runID gets a
// fresh identifier.
func NewMetrics(runID string) *Metrics {
	if runID == "" {
		runID = NewRunID()
	}
	constLabels := prometheus.Labels{"run_id": runID}
	m := &Metrics{
		RunID:    runID,
		registry: prometheus.NewRegistry(),
		cvAUC: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "heartrisk_cv_auc",
			Help:        "Mean cross-validated ROC AUC on the training split.",
			ConstLabels: constLabels,
		}, combinationLabels),
		accuracy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "heartrisk_test_accuracy",
			Help:        "Accuracy of the final model on the test split.",
			ConstLabels: constLabels,
		}, combinationLabels),
		foldAUC: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "heartrisk_fold_auc",
			Help:        "ROC AUC of individual cross-validation folds.",
			ConstLabels: constLabels,
			Buckets:     prometheus.LinearBuckets(0.5, 0.05, 10),
		}, []string{"method"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "heartrisk_combination_duration_seconds",
			Help:        "Wall time of one preprocess, reduce, train and evaluate chain.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"method"}),
		combinations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "heartrisk_combinations_total",
			Help:        "Number of evaluated hyperparameter combinations.",
			ConstLabels: constLabels,
		}, []string{"method"}),
		bestAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "heartrisk_best_accuracy",
			Help:        "Best test accuracy seen in this run.",
			ConstLabels: constLabels,
		}),
	}
	m.registry.MustRegister(m.cvAUC, m.accuracy, m.foldAUC, m.duration, m.combinations, m.bestAccuracy)
	return m
}

// Observe records one finished combination.
func (m *Metrics) Observe(r *pipeline.RunResult, elapsed time.Duration) {
	c := r.Combination
	labels := prometheus.Labels{
		"method":       c.Method.String(),
		"k":            strconv.Itoa(c.K),
		"degree":       strconv.Itoa(c.Degree),
		"n_components": strconv.Itoa(c.NComponents),
	}
	m.cvAUC.With(labels).Set(r.Artifact.Stats.AUC)
	m.accuracy.With(labels).Set(r.Artifact.Accuracy)
	for _, auc := range r.Artifact.Stats.FoldAUCs {
		m.foldAUC.WithLabelValues(c.Method.String()).Observe(auc)
	}
	m.duration.WithLabelValues(c.Method.String()).Observe(elapsed.Seconds())
	m.combinations.WithLabelValues(c.Method.String()).Inc()
}

// ObserveStep adapts Observe to pipeline.WithObserver.
func (m *Metrics) ObserveStep(s pipeline.SweepStep) {
	m.Observe(s.Result, s.Duration)
	if s.Best != nil {
		m.bestAccuracy.Set(s.Best.Accuracy)
	}
}

// SetBest records the best accuracy of the run.
func (m *Metrics) SetBest(accuracy float64) {
	m.bestAccuracy.Set(accuracy)
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the registry to dir/metrics.prom and returns the path.
func (m *Metrics) WriteTextfile(dir string) (string, error) {
	path := filepath.Join(dir, MetricsFile)
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return "", errors.Wrapf(err, "write %s", MetricsFile)
	}
	return path, nil
}
