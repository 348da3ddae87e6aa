// Package service wires the model registry, validation, dispatch and
// supporting infrastructure into the operations exposed over HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/okian/exodetect/internal/adapters/cache"
	"github.com/okian/exodetect/internal/adapters/csvinput"
	"github.com/okian/exodetect/internal/adapters/repository"
	"github.com/okian/exodetect/internal/adapters/worker"
	"github.com/okian/exodetect/internal/domain/catalog"
	"github.com/okian/exodetect/internal/domain/model"
	"github.com/okian/exodetect/internal/domain/prediction"
	"github.com/okian/exodetect/internal/domain/registry"
	"github.com/okian/exodetect/internal/domain/types"
	"github.com/okian/exodetect/pkg/logger"
	"github.com/okian/exodetect/pkg/metrics"
)

// Default service configuration.
const (
	DefaultModelDir     = "models"
	DefaultFluxLength   = 3197
	DefaultCacheSize    = 1024
	DefaultMaxBatchSize = 1000
)

// DefaultFeatures is the tabular feature order used when neither a feature
// list artifact nor the model itself names its inputs.
var DefaultFeatures = []string{
	"koi_period", "koi_duration", "koi_depth", "koi_prad",
	"koi_teq", "koi_insol", "koi_steff", "koi_srad",
}

// DefaultPaths are the artifact file names inside the model directory.
var DefaultPaths = registry.Paths{
	Tabular:  "exoplanet_xgboost_model.json",
	Sequence: "exoplanet_cnn_model.json",
	Scaler:   "exoplanet_final_scaler.json",
	Encoder:  "exoplanet_final_label_encoder.json",
	Features: "exoplanet_final_features.json",
}

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the prediction service.
type Service struct {
	mu sync.RWMutex

	// Configuration
	store            repository.Store
	paths            registry.Paths
	fallbackFeatures []string
	fluxLength       int
	sequenceLabels   []string
	cacheSize        int
	batchWorkers     int
	maxBatchSize     int
	catalogFile      string

	// Components built by Start
	registry      *registry.Registry
	catalog       *catalog.Catalog
	validator     *prediction.Validator
	dispatcher    *prediction.Dispatcher
	predictor     prediction.Predictor
	batch         *prediction.Batch
	cache         cache.Cache
	pool          *worker.Pool
	featureSource registry.FeatureSource

	started bool
	logger  logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		paths:            DefaultPaths,
		fallbackFeatures: append([]string(nil), DefaultFeatures...),
		fluxLength:       DefaultFluxLength,
		cacheSize:        DefaultCacheSize,
		maxBatchSize:     DefaultMaxBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the artifacts and builds the request pipeline. Missing or
// corrupt artifacts do not fail Start; an unreadable catalog file does.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting prediction service...")

	if s.catalog == nil {
		c, err := catalog.Load(s.catalogFile)
		if err != nil {
			return fmt.Errorf("service.start: %w", err)
		}
		s.catalog = c
	}

	if s.registry == nil {
		if s.store == nil {
			s.store = repository.NewFileStore(DefaultModelDir)
		}
		s.registry = registry.Load(ctx, s.store, s.paths, s.logger)
	}

	var features []string
	features, s.featureSource = s.registry.RequiredFeatures(s.fallbackFeatures)
	if seq := s.registry.Sequence(); seq != nil && seq.InputWidth() > 0 && seq.InputWidth() != s.fluxLength {
		s.logger.Warn(ctx, "flux length taken from the loaded network",
			logger.Int("configured", s.fluxLength), logger.Int("network", seq.InputWidth()))
		s.fluxLength = seq.InputWidth()
	}

	s.validator = prediction.NewValidator(features, s.fluxLength)
	s.dispatcher = prediction.NewDispatcher(s.registry, prediction.WithSequenceLabels(s.sequenceLabels...))
	s.cache = cache.New(cache.WithSize(s.cacheSize))
	s.predictor = &observedPredictor{next: s.dispatcher, cache: s.cache}
	s.pool = worker.NewPool(worker.WithWorkers(s.batchWorkers), worker.WithName("batch"))
	s.batch = prediction.NewBatch(s.validator, s.predictor,
		prediction.WithRunner(s.pool),
		prediction.WithMaxItems(s.maxBatchSize),
	)

	s.started = true
	s.logger.Info(ctx, "prediction service started",
		logger.Bool("xgboost", s.registry.Tabular() != nil),
		logger.Bool("cnn", s.registry.Sequence() != nil),
		logger.Int("features", len(features)),
		logger.String("feature_source", string(s.featureSource)),
		logger.Int("flux_length", s.fluxLength),
		logger.Int("batch_workers", s.pool.Workers()),
		logger.Int("cache_size", s.cacheSize),
	)
	return nil
}

// Stop marks the service stopped. In-flight requests finish normally.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "prediction service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Predict validates and classifies a single request.
func (s *Service) Predict(ctx context.Context, req prediction.Request) (model.Prediction, error) {
	if err := s.ready(); err != nil {
		return model.Prediction{}, err
	}
	in, err := s.validator.Validate(req)
	if err != nil {
		metrics.RecordPrediction(kindLabel(req.Model), prediction.Code(err))
		return model.Prediction{}, fmt.Errorf("service.predict: %w", err)
	}
	start := time.Now()
	p, err := s.predictor.Predict(ctx, in)
	if err != nil {
		s.logFailure(ctx, "prediction failed", err, logger.Float64("latency_ms", sinceMillis(start)))
		return model.Prediction{}, fmt.Errorf("service.predict: %w", err)
	}
	return p, nil
}

// PredictBatch classifies items with one model. The whole batch fails on
// the first invalid or failing item.
func (s *Service) PredictBatch(ctx context.Context, modelName string, items []map[string]any) ([]model.Prediction, model.Kind, error) {
	if err := s.ready(); err != nil {
		return nil, "", err
	}
	kind, _ := model.ParseKind(modelName)
	metrics.RecordBatchSize(len(items))
	start := time.Now()
	out, err := s.batch.Predict(ctx, modelName, items)
	if err != nil {
		if prediction.IsClientError(err) {
			metrics.RecordPrediction(kindLabel(modelName), prediction.Code(err))
		} else {
			s.logFailure(ctx, "batch prediction failed", err,
				logger.Int("items", len(items)),
				logger.Float64("latency_ms", sinceMillis(start)))
		}
		return nil, kind, fmt.Errorf("service.predict_batch: %w", err)
	}
	return out, kind, nil
}

// PredictCSV reads an uploaded CSV and classifies every row as a batch.
func (s *Service) PredictCSV(ctx context.Context, modelName string, r io.Reader) ([]model.Prediction, model.Kind, error) {
	items, kind, err := s.readCSV("service.predict_csv", modelName, r)
	if err != nil {
		return nil, kind, err
	}
	return s.PredictBatch(ctx, string(kind), items)
}

// PredictFile classifies every row of a local CSV. Rows are split into
// batches of at most the configured batch size, so the file itself is not
// capped; item errors carry the row index within the whole file.
func (s *Service) PredictFile(ctx context.Context, modelName string, r io.Reader) ([]model.Prediction, model.Kind, error) {
	items, kind, err := s.readCSV("service.predict_file", modelName, r)
	if err != nil {
		return nil, kind, err
	}
	if len(items) == 0 {
		return s.PredictBatch(ctx, string(kind), items)
	}
	out := make([]model.Prediction, 0, len(items))
	for off := 0; off < len(items); off += s.maxBatchSize {
		preds, _, err := s.PredictBatch(ctx, string(kind), items[off:min(off+s.maxBatchSize, len(items))])
		if err != nil {
			var ie *prediction.ItemError
			if off > 0 && errors.As(err, &ie) {
				err = &prediction.ItemError{Index: off + ie.Index, Err: ie.Err}
			}
			return nil, kind, fmt.Errorf("service.predict_file: %w", err)
		}
		out = append(out, preds...)
	}
	return out, kind, nil
}

func (s *Service) readCSV(op, modelName string, r io.Reader) ([]map[string]any, model.Kind, error) {
	if err := s.ready(); err != nil {
		return nil, "", err
	}
	kind, ok := model.ParseKind(modelName)
	if !ok {
		return nil, kind, fmt.Errorf("%s: %w: %s", op, prediction.ErrUnknownModel, kind)
	}
	items, err := csvinput.Read(r, kind)
	if err != nil {
		return nil, kind, fmt.Errorf("%s: %w: %w", op, prediction.ErrMalformedRequest, err)
	}
	metrics.RecordCSVRows(len(items))
	return items, kind, nil
}

func (s *Service) logFailure(ctx context.Context, msg string, err error, fields ...logger.Field) {
	if prediction.IsClientError(err) {
		return
	}
	fields = append(fields, logger.String("code", prediction.Code(err)), logger.Error(err))
	s.logger.Error(ctx, msg, fields...)
}

// sinceMillis is the time elapsed since start in fractional milliseconds.
func sinceMillis(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// Health reports per-artifact load state. The status is degraded when no
// model is loaded.
func (s *Service) Health() types.Health {
	reg := s.currentRegistry()
	h := types.Health{Status: types.StatusDegraded}
	if reg == nil {
		return h
	}
	if reg.AnyModel() {
		h.Status = types.StatusHealthy
	}
	h.XGBLoaded = reg.Loaded(registry.ArtifactTabular)
	h.CNNLoaded = reg.Loaded(registry.ArtifactSequence)
	h.ScalerLoaded = reg.Loaded(registry.ArtifactScaler)
	h.EncoderLoaded = reg.Loaded(registry.ArtifactEncoder)
	h.FeaturesLoaded = reg.Loaded(registry.ArtifactFeatures)
	for _, st := range reg.Status() {
		h.Artifacts = append(h.Artifacts, types.ArtifactStatus{
			Artifact: st.Artifact,
			Location: st.Location,
			State:    string(st.State),
			Error:    st.Error,
		})
	}
	return h
}

// ModelsInfo describes the model families, the required features and the
// class labels.
func (s *Service) ModelsInfo() (types.ModelsInfo, error) {
	if err := s.ready(); err != nil {
		return types.ModelsInfo{}, err
	}
	info := types.ModelsInfo{
		Models:        make(map[string]types.ModelInfo, len(model.Kinds())),
		Features:      s.validator.Features(),
		FeatureSource: string(s.featureSource),
		FluxLength:    s.validator.FluxLength(),
		Classes:       s.registry.Classes(),
	}
	if info.Classes == nil {
		info.Classes = []string{}
	}
	for _, k := range model.Kinds() {
		card, _ := s.catalog.Model(string(k))
		info.Models[string(k)] = types.ModelInfo{
			Available: s.dispatcher.Available(k),
			Type:      card.Type,
			Accuracy:  card.Accuracy,
			UseCase:   card.UseCase,
		}
	}
	return info, nil
}

// FeatureImportance returns the tabular model's feature weights, highest
// first.
func (s *Service) FeatureImportance() ([]types.FeatureImportance, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	tab := s.registry.Tabular()
	if tab == nil {
		return nil, fmt.Errorf("service.feature_importance: %w: XGBoost model not loaded", prediction.ErrModelUnavailable)
	}
	weights := tab.FeatureImportance()
	names := s.validator.Features()
	if len(names) != len(weights) {
		names = tab.FeatureNames()
	}
	out := make([]types.FeatureImportance, len(weights))
	for i, w := range weights {
		name := "feature_" + strconv.Itoa(i)
		if len(names) == len(weights) {
			name = names[i]
		}
		out[i] = types.FeatureImportance{Feature: name, Importance: w}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out, nil
}

// Stats returns the descriptive training statistics.
func (s *Service) Stats() (map[string]map[string]any, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.catalog.Stats, nil
}

// Examples returns the example inputs in request shape.
func (s *Service) Examples() (map[string]map[string]any, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(s.catalog.Examples))
	for name, ex := range s.catalog.Examples {
		out[name] = ex.Flatten()
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":      s.started,
		"cacheSize":    s.cacheSize,
		"maxBatchSize": s.maxBatchSize,
		"fluxLength":   s.fluxLength,
	}
	if s.started {
		stats["cachedPredictions"] = s.cache.Len()
		stats["batchWorkers"] = s.pool.Workers()
		stats["featureSource"] = string(s.featureSource)
		stats["modelsLoaded"] = s.registry.AnyModel()
	}
	return stats
}

func (s *Service) currentRegistry() *registry.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

func kindLabel(name string) string {
	k, ok := model.ParseKind(name)
	if !ok {
		return "unknown"
	}
	return string(k)
}

// observedPredictor serves repeated inputs from the cache and records
// prediction metrics around the dispatcher.
type observedPredictor struct {
	next  prediction.Predictor
	cache cache.Cache
}

func (o *observedPredictor) Predict(ctx context.Context, in prediction.Input) (model.Prediction, error) {
	kind := string(in.Kind)
	if p, ok := o.cache.Get(ctx, in.Kind, in.Values()); ok {
		metrics.RecordPrediction(kind, "ok")
		return p, nil
	}

	start := time.Now()
	p, err := o.next.Predict(ctx, in)
	elapsed := sinceMillis(start)
	if err != nil {
		metrics.RecordPrediction(kind, prediction.Code(err))
		metrics.RecordErrorLatency("prediction", prediction.Code(err), elapsed)
		return model.Prediction{}, err
	}
	metrics.RecordInferenceLatency(kind, elapsed)
	metrics.RecordPrediction(kind, "ok")
	o.cache.Add(ctx, in.Kind, in.Values(), p)
	return p, nil
}
