// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/exodetect/internal/domain/model"
	"github.com/okian/exodetect/internal/domain/prediction"
	"github.com/okian/exodetect/internal/domain/types"
	"github.com/okian/exodetect/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PredictDependencies
	InfoDependencies
	HealthProvider
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	predictHandler *PredictHandler
	infoHandler    *InfoHandler

	opts options
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:  NewHealthHandler(deps),
		statsHandler:   NewStatsHandler(deps),
		predictHandler: NewPredictHandler(deps),
		infoHandler:    NewInfoHandler(deps),
		opts:           o,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /api/models/info", MetricsMiddleware(s.infoHandler.HandleModelsInfo, "models_info"))
	mux.HandleFunc("GET /api/stats", MetricsMiddleware(s.infoHandler.HandleDatasetStats, "dataset_stats"))
	mux.HandleFunc("GET /api/features/importance", MetricsMiddleware(s.infoHandler.HandleFeatureImportance, "feature_importance"))
	mux.HandleFunc("GET /api/examples", MetricsMiddleware(s.infoHandler.HandleExamples, "examples"))

	mux.HandleFunc("POST /api/predict", MetricsMiddleware(s.predictHandler.HandlePredict, "predict"))
	mux.HandleFunc("POST /api/predict/batch", MetricsMiddleware(s.predictHandler.HandleBatch, "predict_batch"))
	mux.HandleFunc("POST /api/predict/csv", MetricsMiddleware(s.predictHandler.HandleCSV, "predict_csv"))
	mux.HandleFunc("POST /predict/features", MetricsMiddleware(s.predictHandler.HandleFeatures, "predict_features"))
	mux.HandleFunc("POST /predict/flux", MetricsMiddleware(s.predictHandler.HandleFlux, "predict_flux"))
	mux.HandleFunc("POST /predict/features/csv", MetricsMiddleware(s.predictHandler.CSVFor(model.KindTabular), "predict_features_csv"))
	mux.HandleFunc("POST /predict/flux/csv", MetricsMiddleware(s.predictHandler.CSVFor(model.KindSequence), "predict_flux_csv"))

	// Everything else, including wrong methods on known paths.
	mux.HandleFunc("/", MetricsMiddleware(handleNotFound, "not_found"))
}

// Handler wraps next with the cross-cutting middleware, outermost first:
// panic recovery, request IDs, CORS and the body size cap.
func (s *Server) Handler(next http.Handler) http.Handler {
	h := BodyLimitMiddleware(next, s.opts.maxBodyBytes)
	h = CORSMiddleware(h, s.opts.corsOrigins)
	h = RequestIDMiddleware(h)
	return RecoverMiddleware(h)
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "Endpoint not found", Code: "not_found"})
}

// predictionResponse is the wire shape of a single classification.
type predictionResponse struct {
	Classification string             `json:"classification"`
	Confidence     float64            `json:"confidence"`
	Probabilities  map[string]float64 `json:"probabilities"`
	ModelUsed      model.Kind         `json:"model_used"`
	Timestamp      string             `json:"timestamp,omitempty"`
}

func newPredictionResponse(p model.Prediction, ts string) predictionResponse {
	return predictionResponse{
		Classification: p.Classification,
		Confidence:     p.Confidence,
		Probabilities:  p.Probabilities,
		ModelUsed:      p.ModelUsed,
		Timestamp:      ts,
	}
}

type batchResponse struct {
	Predictions []predictionResponse `json:"predictions"`
	Total       int                  `json:"total"`
	ModelUsed   model.Kind           `json:"model_used"`
	Timestamp   string               `json:"timestamp"`
}

type healthResponse struct {
	types.Health
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Error    string   `json:"error"`
	Code     string   `json:"code"`
	Missing  []string `json:"missing,omitempty"`
	Expected *int     `json:"expected,omitempty"`
	Received *int     `json:"received,omitempty"`
	Index    *int     `json:"index,omitempty"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case prediction.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError maps err onto the error body. Server errors are logged; an
// inference failure is reported by kind only.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: clientMessage(err), Code: prediction.Code(err)}
	if status == http.StatusRequestEntityTooLarge {
		resp.Code = "request_too_large"
	}

	var missing *prediction.MissingFeaturesError
	if errors.As(err, &missing) {
		resp.Error = "Missing required features"
		resp.Missing = missing.Missing
	}
	var length *prediction.LengthMismatchError
	if errors.As(err, &length) {
		resp.Error = length.Error()
		resp.Expected = &length.Expected
		resp.Received = &length.Received
	}
	var item *prediction.ItemError
	if errors.As(err, &item) {
		resp.Index = &item.Index
	}

	if status >= http.StatusInternalServerError {
		logger.Get().Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("code", resp.Code),
			logger.Error(err))
		if !errors.Is(err, prediction.ErrModelUnavailable) {
			resp.Error = "Prediction failed"
		}
	}
	writeJSON(w, status, resp)
}

// clientMessage drops the "pkg.op: " prefixes added by wrapping layers.
func clientMessage(err error) string {
	msg := err.Error()
	for {
		head, rest, ok := strings.Cut(msg, ": ")
		if !ok || strings.Contains(head, " ") || !strings.Contains(head, ".") {
			return msg
		}
		msg = rest
	}
}

// decodeJSON reads one JSON value from the body, keeping numbers exact.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return ErrNoInput
		}
		return fmt.Errorf("%w: invalid JSON: %w", prediction.ErrMalformedRequest, err)
	}
	return nil
}
