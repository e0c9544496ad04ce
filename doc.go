// Package heartrisk predicts ten-year coronary heart disease risk from
// clinical records such as the Framingham study data.
//
// The pipeline imputes missing values with k-nearest neighbors, truncates
// categorical codes, optionally one-hot encodes them, standardizes every
// column and optionally expands polynomial features. The result is projected
// with PCA and fed to one of four classifiers trained under stratified
// k-fold cross-validation: a support vector classifier, logistic regression,
// a random forest or a small neural network.
//
// # Features
//
//   - scikit-learn-like estimators with Fit, Predict and PredictProba
//   - Mean ROC curve over cross-validation folds and held-out accuracy
//   - Grid sweep over k, degree, component count and method
//   - Random forest feature attribution through the PCA loadings
//   - ROC and PCA figures, gob/JSON model files and a Prometheus textfile
//
// # Command line
//
// Install the CLI with:
//
//	go install github.com/YuminosukeSato/heartrisk/cmd/heartrisk@latest
//
// Train a random forest with the defaults:
//
//	heartrisk --data framingham.csv --method RF --verbose
//
// Sweep the default grid and keep the most accurate setup:
//
//	heartrisk --data framingham.csv --optimize
//
// # Library
//
// The pipeline package exposes every stage:
//
//	prep, err := pipeline.NewPreprocessor(2, 3, categorical, pipeline.RF).Process(ds.Features)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	red, err := pipeline.NewReducer(10).Reduce(prep)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trainer, err := pipeline.NewTrainer(red.Projected.X, ds.Labels, pipeline.RF, 10, 8)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	model, stats, err := trainer.Fit()
//
// # Packages
//
//   - pipeline: preprocessing chain, PCA reduction, training and grid sweep
//   - dataset: labeled feature tables and CSV loading
//   - sklearn/impute, sklearn/decomposition, sklearn/model_selection: KNN imputer, PCA, splits
//   - sklearn/svm, sklearn/linear_model, sklearn/ensemble, sklearn/tree, sklearn/neural_network: classifiers
//   - preprocessing: scaler, one-hot encoder and polynomial features
//   - metrics: accuracy, ROC and AUC
//   - report: figures, model files and metrics textfile
//   - config: YAML configuration
//   - core/model, core/parallel: estimator interfaces, state, persistence and parallel helpers
//   - pkg/errors, pkg/log: structured errors, warnings and logging
package heartrisk
