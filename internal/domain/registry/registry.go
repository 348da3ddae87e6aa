// Package registry holds the model artifacts loaded at startup.
//
// A Registry is populated once and never mutated afterwards, so it is shared
// across request goroutines without locking. Any slot may be empty: a
// missing or unreadable artifact is recorded in the slot's status and the
// remaining artifacts still load.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/okian/exodetect/internal/adapters/repository"
	"github.com/okian/exodetect/internal/domain/inference"
	"github.com/okian/exodetect/pkg/logger"
	"github.com/okian/exodetect/pkg/metrics"
)

// Artifact names used in status reports and metrics.
const (
	ArtifactTabular  = "xgboost"
	ArtifactSequence = "cnn"
	ArtifactScaler   = "scaler"
	ArtifactEncoder  = "label_encoder"
	ArtifactFeatures = "features"
)

// State describes the outcome of loading one artifact.
type State string

// Load outcomes.
const (
	StateLoaded  State = "loaded"
	StateMissing State = "missing"
	StateFailed  State = "failed"
)

// Status reports how one artifact slot was populated.
type Status struct {
	Artifact string `json:"artifact"`
	Location string `json:"location"`
	State    State  `json:"state"`
	Error    string `json:"error,omitempty"`
}

// Paths names each artifact inside the store. An empty name leaves the slot
// empty.
type Paths struct {
	Tabular  string
	Sequence string
	Scaler   string
	Encoder  string
	Features string
}

// FeatureSource tells where the required tabular feature order came from.
type FeatureSource string

// Feature order sources, in order of preference.
const (
	FeaturesFromArtifact FeatureSource = "artifact"
	FeaturesFromModel    FeatureSource = "model"
	FeaturesFromConfig   FeatureSource = "fallback"
)

// Registry is the read-only set of loaded artifacts.
type Registry struct {
	tabular  inference.TabularClassifier
	sequence inference.SequenceClassifier
	scaler   inference.Scaler
	encoder  inference.LabelEncoder
	features []string
	status   []Status
}

// Option populates a Registry slot directly; used for injection in tests
// and tools that build artifacts in memory.
type Option func(*Registry)

// WithTabular sets the tabular classifier slot.
func WithTabular(c inference.TabularClassifier) Option {
	return func(r *Registry) { r.tabular = c }
}

// WithSequence sets the sequence classifier slot.
func WithSequence(c inference.SequenceClassifier) Option {
	return func(r *Registry) { r.sequence = c }
}

// WithScaler sets the scaler slot.
func WithScaler(s inference.Scaler) Option {
	return func(r *Registry) { r.scaler = s }
}

// WithEncoder sets the label encoder slot.
func WithEncoder(e inference.LabelEncoder) Option {
	return func(r *Registry) { r.encoder = e }
}

// WithFeatures sets the trained feature order.
func WithFeatures(names ...string) Option {
	return func(r *Registry) { r.features = append([]string(nil), names...) }
}

// New builds a Registry from in-memory artifacts.
func New(opts ...Option) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	r.status = []Status{
		memoryStatus(ArtifactTabular, r.tabular != nil),
		memoryStatus(ArtifactSequence, r.sequence != nil),
		memoryStatus(ArtifactScaler, r.scaler != nil),
		memoryStatus(ArtifactEncoder, r.encoder != nil),
		memoryStatus(ArtifactFeatures, len(r.features) > 0),
	}
	return r
}

func memoryStatus(artifact string, loaded bool) Status {
	st := Status{Artifact: artifact, Location: "memory", State: StateMissing}
	if loaded {
		st.State = StateLoaded
	}
	return st
}

// Load reads every artifact named in paths from store. Each artifact loads
// independently; failures are logged and recorded, never returned.
func Load(ctx context.Context, store repository.Store, paths Paths, log logger.Logger) *Registry {
	if log == nil {
		log = logger.Get()
	}
	log = log.Named("registry")
	r := &Registry{}

	tabular, st := load(ctx, store, log, ArtifactTabular, paths.Tabular, inference.DecodeTreeEnsemble)
	if st.State == StateLoaded {
		r.tabular = tabular
	}
	r.status = append(r.status, st)

	sequence, st := load(ctx, store, log, ArtifactSequence, paths.Sequence, inference.DecodeNetwork)
	if st.State == StateLoaded {
		r.sequence = sequence
	}
	r.status = append(r.status, st)

	scaler, st := load(ctx, store, log, ArtifactScaler, paths.Scaler, inference.DecodeStandardScaler)
	if st.State == StateLoaded {
		r.scaler = scaler
	}
	r.status = append(r.status, st)

	encoder, st := load(ctx, store, log, ArtifactEncoder, paths.Encoder, inference.DecodeLabels)
	if st.State == StateLoaded {
		r.encoder = encoder
	}
	r.status = append(r.status, st)

	features, st := load(ctx, store, log, ArtifactFeatures, paths.Features, inference.DecodeFeatureNames)
	if st.State == StateLoaded {
		r.features = features
	}
	r.status = append(r.status, st)

	r.checkConsistency(ctx, log)
	for _, s := range r.status {
		metrics.UpdateArtifactLoaded(s.Artifact, s.State == StateLoaded)
	}
	return r
}

func load[T any](ctx context.Context, store repository.Store, log logger.Logger, artifact, name string, decode func(io.Reader) (T, error)) (v T, st Status) {
	st = Status{Artifact: artifact, Location: store.Locate(name), State: StateMissing}
	if name == "" {
		st.Location = ""
		log.Warn(ctx, "artifact not configured; slot left empty", logger.String("artifact", artifact))
		return v, st
	}

	defer func() {
		if p := recover(); p != nil {
			st.State = StateFailed
			st.Error = fmt.Sprintf("decode panicked: %v", p)
			log.Warn(ctx, "artifact failed to load", logger.String("artifact", artifact), logger.String("location", st.Location), logger.String("error", st.Error))
		}
	}()

	rc, err := store.Open(ctx, name)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn(ctx, "artifact not found; slot left empty", logger.String("artifact", artifact), logger.String("location", st.Location))
		return v, st
	}
	if err != nil {
		st.State = StateFailed
		st.Error = err.Error()
		log.Warn(ctx, "artifact failed to open", logger.String("artifact", artifact), logger.Error(err))
		return v, st
	}
	defer func() { _ = rc.Close() }()

	v, err = decode(rc)
	if err != nil {
		st.State = StateFailed
		st.Error = err.Error()
		log.Warn(ctx, "artifact failed to load", logger.String("artifact", artifact), logger.String("location", st.Location), logger.Error(err))
		return v, st
	}
	st.State = StateLoaded
	log.Info(ctx, "artifact loaded", logger.String("artifact", artifact), logger.String("location", st.Location))
	return v, st
}

// checkConsistency warns about artifacts that load fine alone but disagree
// with each other. Mismatches surface later as prediction failures.
func (r *Registry) checkConsistency(ctx context.Context, log logger.Logger) {
	if r.tabular == nil {
		return
	}
	width := r.tabular.NumFeatures()
	if len(r.features) > 0 && len(r.features) != width {
		log.Warn(ctx, "feature list does not match tabular model width",
			logger.Int("features", len(r.features)), logger.Int("model_features", width))
	}
	if r.scaler != nil && r.scaler.Width() != width {
		log.Warn(ctx, "scaler does not match tabular model width",
			logger.Int("scaler_columns", r.scaler.Width()), logger.Int("model_features", width))
	}
}

// Tabular returns the tabular classifier or nil.
func (r *Registry) Tabular() inference.TabularClassifier { return r.tabular }

// Sequence returns the sequence classifier or nil.
func (r *Registry) Sequence() inference.SequenceClassifier { return r.sequence }

// Scaler returns the feature scaler or nil.
func (r *Registry) Scaler() inference.Scaler { return r.scaler }

// Encoder returns the label encoder or nil.
func (r *Registry) Encoder() inference.LabelEncoder { return r.encoder }

// Features returns the trained feature order, or nil if none was loaded.
func (r *Registry) Features() []string { return append([]string(nil), r.features...) }

// Classes returns the label encoder's classes, or nil.
func (r *Registry) Classes() []string {
	if r.encoder == nil {
		return nil
	}
	return r.encoder.Classes()
}

// Status returns the per-artifact load report in a fixed order.
func (r *Registry) Status() []Status { return append([]Status(nil), r.status...) }

// Loaded reports whether the named artifact slot is populated.
func (r *Registry) Loaded(artifact string) bool {
	switch artifact {
	case ArtifactTabular:
		return r.tabular != nil
	case ArtifactSequence:
		return r.sequence != nil
	case ArtifactScaler:
		return r.scaler != nil
	case ArtifactEncoder:
		return r.encoder != nil
	case ArtifactFeatures:
		return len(r.features) > 0
	}
	return false
}

// AnyModel reports whether at least one classifier is available.
func (r *Registry) AnyModel() bool { return r.tabular != nil || r.sequence != nil }

// RequiredFeatures resolves the tabular feature order: the loaded feature
// list, else names stored in the tabular model, else fallback.
func (r *Registry) RequiredFeatures(fallback []string) ([]string, FeatureSource) {
	if len(r.features) > 0 {
		return r.Features(), FeaturesFromArtifact
	}
	if r.tabular != nil {
		if names := r.tabular.FeatureNames(); len(names) > 0 {
			return names, FeaturesFromModel
		}
	}
	return append([]string(nil), fallback...), FeaturesFromConfig
}
