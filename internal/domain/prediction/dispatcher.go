package prediction

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/okian/exodetect/internal/domain/inference"
	"github.com/okian/exodetect/internal/domain/model"
)

// Artifacts is the read side of the model registry used for dispatch.
type Artifacts interface {
	Tabular() inference.TabularClassifier
	Sequence() inference.SequenceClassifier
	Scaler() inference.Scaler
	Encoder() inference.LabelEncoder
}

// Predictor produces a labeled prediction for a validated input.
type Predictor interface {
	Predict(ctx context.Context, in Input) (model.Prediction, error)
}

// route is one row of the dispatch table.
type route struct {
	name       string
	available  func() bool
	preprocess func([]float64) ([]float64, error)
	infer      func([]float64) ([]float64, error)
	label      func(width, index int) (string, bool)
}

// Dispatcher routes validated inputs to the matching model and turns raw
// class distributions into labeled predictions.
type Dispatcher struct {
	artifacts      Artifacts
	sequenceLabels []string
	routes         map[model.Kind]route
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSequenceLabels names the sequence model outputs when the label encoder
// does not fit the network's output width. Without it such outputs are named
// by index.
func WithSequenceLabels(labels ...string) DispatcherOption {
	return func(d *Dispatcher) {
		if len(labels) > 0 {
			d.sequenceLabels = append([]string(nil), labels...)
		}
	}
}

// NewDispatcher builds the dispatch table over artifacts.
func NewDispatcher(artifacts Artifacts, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{artifacts: artifacts}
	for _, opt := range opts {
		opt(d)
	}
	d.routes = map[model.Kind]route{
		model.KindTabular: {
			name:      "XGBoost",
			available: func() bool { return d.artifacts.Tabular() != nil },
			preprocess: func(row []float64) ([]float64, error) {
				if s := d.artifacts.Scaler(); s != nil {
					return s.Transform(row)
				}
				return row, nil
			},
			infer: func(row []float64) ([]float64, error) { return d.artifacts.Tabular().PredictProba(row) },
			label: d.tabularLabel,
		},
		model.KindSequence: {
			name:       "CNN",
			available:  func() bool { return d.artifacts.Sequence() != nil },
			preprocess: func(series []float64) ([]float64, error) { return series, nil },
			infer:      func(series []float64) ([]float64, error) { return d.artifacts.Sequence().PredictProba(series) },
			label:      d.sequenceLabel,
		},
	}
	return d
}

// Available reports whether the model for kind is loaded.
func (d *Dispatcher) Available(kind model.Kind) bool {
	r, ok := d.routes[kind]
	return ok && r.available()
}

// Predict runs in through the model for its kind.
func (d *Dispatcher) Predict(ctx context.Context, in Input) (model.Prediction, error) {
	r, ok := d.routes[in.Kind]
	if !ok {
		return model.Prediction{}, fmt.Errorf("%w: %s", ErrUnknownModel, in.Kind)
	}
	if !r.available() {
		return model.Prediction{}, fmt.Errorf("%w: %s model not loaded", ErrModelUnavailable, r.name)
	}
	if err := ctx.Err(); err != nil {
		return model.Prediction{}, fmt.Errorf("%w: %w", ErrPredictionFailure, err)
	}

	probs, err := run(r, in.Values())
	if err != nil {
		return model.Prediction{}, fmt.Errorf("%w: %s: %w", ErrPredictionFailure, r.name, err)
	}
	if err := checkDistribution(probs); err != nil {
		return model.Prediction{}, fmt.Errorf("%w: %s: %w", ErrPredictionFailure, r.name, err)
	}

	best := inference.Argmax(probs)
	p := model.Prediction{
		ClassIndex:    best,
		Confidence:    percent(probs[best]),
		Probabilities: make(map[string]float64, len(probs)),
		ModelUsed:     in.Kind,
	}
	for i, v := range probs {
		name, ok := r.label(len(probs), i)
		if !ok {
			return model.Prediction{}, fmt.Errorf("%w: %s: no label for class %d", ErrPredictionFailure, r.name, i)
		}
		if i == best {
			p.Classification = name
		}
		p.Probabilities[name] = percent(v)
	}
	return p, nil
}

// run evaluates one route; a panicking model is reported as an error.
func run(r route, values []float64) (probs []float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			probs, err = nil, fmt.Errorf("model panicked: %v", rec)
		}
	}()
	x, err := r.preprocess(values)
	if err != nil {
		return nil, err
	}
	return r.infer(x)
}

func checkDistribution(probs []float64) error {
	if len(probs) == 0 {
		return fmt.Errorf("empty class distribution")
	}
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return fmt.Errorf("class %d has invalid probability %v", i, p)
		}
	}
	return nil
}

func (d *Dispatcher) tabularLabel(_, index int) (string, bool) {
	if e := d.artifacts.Encoder(); e != nil {
		return e.Label(index)
	}
	return strconv.Itoa(index), true
}

// sequenceLabel prefers the label encoder when its class count matches the
// network output, then the configured sequence labels, then the index.
func (d *Dispatcher) sequenceLabel(width, index int) (string, bool) {
	if e := d.artifacts.Encoder(); e != nil && len(e.Classes()) == width {
		return e.Label(index)
	}
	if len(d.sequenceLabels) == width {
		return d.sequenceLabels[index], true
	}
	return strconv.Itoa(index), true
}

// percent converts a probability to a percentage rounded to 2 decimals.
func percent(p float64) float64 {
	return math.Round(p*10000) / 100
}
