// Package prediction validates classification requests and dispatches them
// to the loaded models.
package prediction

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/okian/exodetect/internal/domain/model"
)

// FluxKey is the feature key carrying a flux series for the sequence model.
const FluxKey = "flux_values"

// Request is a decoded prediction request. Feature values are numbers
// (float64, int or json.Number); the flux series is a slice of numbers.
type Request struct {
	Model    string
	Features map[string]any
}

// Input is a validated request ready for dispatch.
type Input struct {
	Kind   model.Kind
	Row    []float64 // tabular features in trained order
	Series []float64 // flux readings
}

// Values returns the numeric payload for the input's kind.
func (in Input) Values() []float64 {
	if in.Kind == model.KindSequence {
		return in.Series
	}
	return in.Row
}

// Validator checks requests against the expected shapes. It is immutable
// and has no side effects.
type Validator struct {
	features   []string
	fluxLength int
}

// NewValidator builds a Validator for the given tabular feature order and
// flux series length. Duplicate feature names are dropped.
func NewValidator(features []string, fluxLength int) *Validator {
	seen := make(map[string]struct{}, len(features))
	v := &Validator{fluxLength: fluxLength}
	for _, f := range features {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		v.features = append(v.features, f)
	}
	return v
}

// Features returns the required tabular feature order.
func (v *Validator) Features() []string { return append([]string(nil), v.features...) }

// FluxLength returns the required flux series length.
func (v *Validator) FluxLength() int { return v.fluxLength }

// Validate checks req and assembles the model input.
func (v *Validator) Validate(req Request) (Input, error) {
	kind, ok := model.ParseKind(req.Model)
	if !ok {
		return Input{}, fmt.Errorf("%w: %s", ErrUnknownModel, kind)
	}
	if len(req.Features) == 0 {
		return Input{}, malformed("no features provided")
	}
	switch kind {
	case model.KindSequence:
		return v.validateSeries(req.Features)
	default:
		return v.validateRow(req.Features)
	}
}

func (v *Validator) validateRow(features map[string]any) (Input, error) {
	var missing []string
	for _, name := range v.features {
		if _, ok := features[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return Input{}, &MissingFeaturesError{Missing: missing}
	}

	row := make([]float64, len(v.features))
	for i, name := range v.features {
		x, err := toFloat(features[name])
		if err != nil {
			return Input{}, malformed("feature %q: %v", name, err)
		}
		row[i] = x
	}
	return Input{Kind: model.KindTabular, Row: row}, nil
}

func (v *Validator) validateSeries(features map[string]any) (Input, error) {
	raw, ok := features[FluxKey]
	if !ok {
		return Input{}, malformed("cnn requires a %s array (time series data)", FluxKey)
	}

	var series []float64
	switch s := raw.(type) {
	case []float64:
		if len(s) != v.fluxLength {
			return Input{}, &LengthMismatchError{Expected: v.fluxLength, Received: len(s)}
		}
		series = append([]float64(nil), s...)
	case []any:
		if len(s) != v.fluxLength {
			return Input{}, &LengthMismatchError{Expected: v.fluxLength, Received: len(s)}
		}
		series = make([]float64, len(s))
		for i, item := range s {
			x, err := toFloat(item)
			if err != nil {
				return Input{}, malformed("%s[%d]: %v", FluxKey, i, err)
			}
			series[i] = x
		}
	default:
		return Input{}, malformed("%s must be an array of numbers", FluxKey)
	}

	for i, x := range series {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Input{}, malformed("%s[%d] is not a finite number", FluxKey, i)
		}
	}
	return Input{Kind: model.KindSequence, Series: series}, nil
}

// toFloat converts a decoded JSON or CSV value. A null value is a missing
// reading and becomes NaN.
func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", x.String())
		}
		return f, nil
	}
	return 0, fmt.Errorf("must be a number, got %T", v)
}
