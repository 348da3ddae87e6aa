package inference

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// StandardScaler standardizes each column as (x - mean) / scale.
type StandardScaler struct {
	mean  []float64
	scale []float64
	names []string
}

type scalerDocument struct {
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
	FeatureNames []string  `json:"feature_names_in"`
}

// DecodeStandardScaler reads {"mean": [...], "scale": [...]}. Zero scale
// entries are treated as one, matching how constant columns are fitted.
func DecodeStandardScaler(r io.Reader) (*StandardScaler, error) {
	var doc scalerDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: scaler: %w", ErrDecode, err)
	}
	if len(doc.Mean) == 0 {
		return nil, fmt.Errorf("%w: scaler has no columns", ErrInconsistent)
	}
	if doc.Scale == nil {
		doc.Scale = make([]float64, len(doc.Mean))
	}
	if len(doc.Scale) != len(doc.Mean) {
		return nil, fmt.Errorf("%w: scaler has %d means and %d scales", ErrInconsistent, len(doc.Mean), len(doc.Scale))
	}
	if len(doc.FeatureNames) > 0 && len(doc.FeatureNames) != len(doc.Mean) {
		return nil, fmt.Errorf("%w: scaler has %d names for %d columns", ErrInconsistent, len(doc.FeatureNames), len(doc.Mean))
	}
	s := &StandardScaler{
		mean:  doc.Mean,
		scale: make([]float64, len(doc.Scale)),
		names: doc.FeatureNames,
	}
	for i, v := range doc.Scale {
		if v == 0 {
			v = 1
		}
		s.scale[i] = v
	}
	return s, nil
}

// Transform implements Scaler. NaN inputs stay NaN.
func (s *StandardScaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.mean) {
		return nil, fmt.Errorf("%w: scaler fitted on %d columns, got %d", ErrInputShape, len(s.mean), len(row))
	}
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = (v - s.mean[i]) / s.scale[i]
	}
	return out, nil
}

// Width implements Scaler.
func (s *StandardScaler) Width() int { return len(s.mean) }

// FeatureNames returns the column names the scaler was fitted on, if stored.
func (s *StandardScaler) FeatureNames() []string { return append([]string(nil), s.names...) }

// Labels is a fitted label encoder: class index i maps to Classes()[i].
type Labels struct {
	classes []string
}

type labelsDocument struct {
	Classes []string `json:"classes"`
}

// DecodeLabels reads {"classes": [...]}. Class names must be unique.
func DecodeLabels(r io.Reader) (*Labels, error) {
	var doc labelsDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: label encoder: %w", ErrDecode, err)
	}
	if len(doc.Classes) == 0 {
		return nil, fmt.Errorf("%w: label encoder has no classes", ErrInconsistent)
	}
	seen := make(map[string]struct{}, len(doc.Classes))
	for _, c := range doc.Classes {
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("%w: duplicate class %q", ErrInconsistent, c)
		}
		seen[c] = struct{}{}
	}
	return &Labels{classes: doc.Classes}, nil
}

// NewLabels builds an encoder from class names in index order.
func NewLabels(classes ...string) *Labels {
	return &Labels{classes: append([]string(nil), classes...)}
}

// Label implements LabelEncoder.
func (l *Labels) Label(index int) (string, bool) {
	if index < 0 || index >= len(l.classes) {
		return "", false
	}
	return l.classes[index], true
}

// Classes implements LabelEncoder.
func (l *Labels) Classes() []string { return append([]string(nil), l.classes...) }

// DecodeFeatureNames reads a JSON array of feature names in training order.
func DecodeFeatureNames(r io.Reader) ([]string, error) {
	var names []string
	if err := json.NewDecoder(r).Decode(&names); err != nil {
		return nil, fmt.Errorf("%w: feature list: %w", ErrDecode, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: feature list is empty", ErrInconsistent)
	}
	seen := make(map[string]struct{}, len(names))
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, fmt.Errorf("%w: feature %d has no name", ErrInconsistent, i)
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("%w: duplicate feature %q", ErrInconsistent, n)
		}
		seen[n] = struct{}{}
		names[i] = n
	}
	return names, nil
}
