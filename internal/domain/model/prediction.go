// Package model contains domain models passed between layers.
package model

import "strings"

// Kind names a model family a request can be routed to.
type Kind string

// Supported model kinds. The string values are the wire names.
const (
	KindTabular  Kind = "xgboost"
	KindSequence Kind = "cnn"
)

// DefaultKind is used when a request does not name a model.
const DefaultKind = KindTabular

// Kinds lists every supported kind in display order.
func Kinds() []Kind { return []Kind{KindTabular, KindSequence} }

// ParseKind normalizes s and reports whether it names a supported kind.
// An empty string resolves to DefaultKind.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return DefaultKind, true
	}
	switch k {
	case KindTabular, KindSequence:
		return k, true
	}
	return k, false
}

// Prediction is the labeled outcome of a single inference call.
type Prediction struct {
	Classification string             // resolved label
	ClassIndex     int                // argmax of the distribution
	Confidence     float64            // percentage, 2 decimals
	Probabilities  map[string]float64 // label -> percentage, 2 decimals
	ModelUsed      Kind
}

// Clone returns a copy that shares no mutable state with p.
func (p Prediction) Clone() Prediction {
	probs := make(map[string]float64, len(p.Probabilities))
	for k, v := range p.Probabilities {
		probs[k] = v
	}
	p.Probabilities = probs
	return p
}
