// Package inference evaluates exported model artifacts.
//
// Artifacts are produced by the training pipeline and decoded from JSON:
// XGBoost's native JSON model format for the tree ensemble, a layer export
// for the convolutional network, and small documents for the scaler, the
// label encoder and the feature list. Every decoded artifact is immutable and
// safe for concurrent use.
package inference

import (
	"errors"
	"math"
)

// Sentinel errors for artifact decoding and evaluation.
var (
	ErrDecode       = errors.New("decode artifact")
	ErrUnsupported  = errors.New("unsupported artifact")
	ErrInputShape   = errors.New("input shape mismatch")
	ErrInconsistent = errors.New("inconsistent artifact")
)

// TabularClassifier scores a single ordered feature row.
type TabularClassifier interface {
	// PredictProba returns one probability per class. NaN entries in row
	// are treated as missing values.
	PredictProba(row []float64) ([]float64, error)
	// NumFeatures is the row width the classifier was trained on.
	NumFeatures() int
	// FeatureNames returns the names stored with the model, if any.
	FeatureNames() []string
	// FeatureImportance returns normalized gain per feature index.
	FeatureImportance() []float64
}

// SequenceClassifier scores a single fixed-width series.
type SequenceClassifier interface {
	PredictProba(series []float64) ([]float64, error)
	InputWidth() int
}

// Scaler is a fitted elementwise transform applied before inference.
type Scaler interface {
	Transform(row []float64) ([]float64, error)
	Width() int
}

// LabelEncoder maps class indices back to class names.
type LabelEncoder interface {
	Label(index int) (string, bool)
	Classes() []string
}

// Argmax returns the index of the largest value; ties keep the lowest index.
func Argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// softmax normalizes v in place.
func softmax(v []float64) {
	if len(v) == 0 {
		return
	}
	maxV := v[Argmax(v)]
	var sum float64
	for i := range v {
		v[i] = math.Exp(v[i] - maxV)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}
