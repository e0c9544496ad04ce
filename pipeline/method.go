package pipeline

import (
	"strconv"
	"strings"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
	"github.com/YuminosukeSato/heartrisk/sklearn/ensemble"
	"github.com/YuminosukeSato/heartrisk/sklearn/linear_model"
	"github.com/YuminosukeSato/heartrisk/sklearn/neural_network"
	"github.com/YuminosukeSato/heartrisk/sklearn/svm"
)

// Method is the closed set of model families.
type Method int

const (
	SVC Method = iota + 1
	LR
	RF
	NN
)

// Epoch counts of the neural network during cross-validation and the final fit.
const (
	CVEpochs    = 10
	FinalEpochs = 40
)

var methodNames = map[Method]string{
	SVC: "SVC",
	LR:  "LR",
	RF:  "RF",
	NN:  "NN",
}

// Methods lists every supported method in declaration order.
func Methods() []Method {
	return []Method{SVC, LR, RF, NN}
}

func methodNameList() []string {
	names := make([]string, 0, len(methodNames))
	for _, m := range Methods() {
		names = append(names, methodNames[m])
	}
	return names
}

// ParseMethod maps "SVC", "LR", "RF" or "NN" to a Method.
func ParseMethod(name string) (Method, error) {
	for m, n := range methodNames {
		if n == name {
			return m, nil
		}
	}
	return 0, errors.NewUnsupportedMethodError(name, methodNameList())
}

// ParseMethods parses each name with ParseMethod.
func ParseMethods(names []string) ([]Method, error) {
	out := make([]Method, 0, len(names))
	for _, n := range names {
		m, err := ParseMethod(strings.TrimSpace(n))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (m Method) String() string {
	if n, ok := methodNames[m]; ok {
		return n
	}
	return "Method(" + strconv.Itoa(int(m)) + ")"
}

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	_, ok := methodNames[m]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, errors.NewUnsupportedMethodError(m.String(), methodNameList())
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ModelSpec is a stateless model configuration. New returns a fresh,
// unfitted classifier on every call so that folds never share state.
type ModelSpec struct {
	Method  Method
	Threads int
	Epochs  int
	Seed    int64
	Logger  log.Logger
}

// New builds an unfitted classifier of the configured family.
func (s ModelSpec) New() model.Classifier {
	switch s.Method {
	case SVC:
		return svm.NewSVC(
			svm.WithClassWeight("balanced"),
			svm.WithLogger(s.Logger),
		)
	case LR:
		return linear_model.NewLogisticRegression(
			linear_model.WithLRClassWeight("balanced"),
			linear_model.WithLRMaxIter(10000),
			linear_model.WithLRNJobs(s.Threads),
			linear_model.WithLRLogger(s.Logger),
		)
	case RF:
		return ensemble.NewRandomForestClassifier(
			ensemble.WithClassWeight("balanced"),
			ensemble.WithRandomState(s.Seed),
			ensemble.WithNJobs(s.Threads),
			ensemble.WithLogger(s.Logger),
		)
	case NN:
		epochs := s.Epochs
		if epochs < 1 {
			epochs = CVEpochs
		}
		return neural_network.NewMLPClassifier(
			neural_network.WithEpochs(epochs),
			neural_network.WithRandomState(s.Seed),
			neural_network.WithLogger(s.Logger),
		)
	}
	return nil
}
