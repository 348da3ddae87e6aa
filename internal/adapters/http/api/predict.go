package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/okian/exodetect/internal/domain/model"
	"github.com/okian/exodetect/internal/domain/prediction"
)

// Legacy request keys.
const (
	legacyFluxKey = "flux_data"
	csvFileField  = "file"
)

// PredictDependencies classify requests.
type PredictDependencies interface {
	Predict(ctx context.Context, req prediction.Request) (model.Prediction, error)
	PredictBatch(ctx context.Context, modelName string, items []map[string]any) ([]model.Prediction, model.Kind, error)
	PredictCSV(ctx context.Context, modelName string, r io.Reader) ([]model.Prediction, model.Kind, error)
}

// PredictHandler handles single, batch and CSV prediction requests.
type PredictHandler struct {
	deps PredictDependencies
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps PredictDependencies) *PredictHandler {
	return &PredictHandler{deps: deps}
}

type predictRequest struct {
	Model    string         `json:"model"`
	Features map[string]any `json:"features"`
}

type batchRequest struct {
	Model string           `json:"model"`
	Data  []map[string]any `json:"data"`
}

// HandlePredict handles POST /api/predict.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.predict(w, r, prediction.Request{Model: req.Model, Features: req.Features})
}

// HandleFeatures handles POST /predict/features, whose body is the flat
// feature map itself.
func (h *PredictHandler) HandleFeatures(w http.ResponseWriter, r *http.Request) {
	var features map[string]any
	if err := decodeJSON(r.Body, &features); err != nil {
		writeError(w, r, err)
		return
	}
	h.predict(w, r, prediction.Request{Model: string(model.KindTabular), Features: features})
}

// HandleFlux handles POST /predict/flux with a {"flux_data": [...]} body.
func (h *PredictHandler) HandleFlux(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeJSON(r.Body, &body); err != nil {
		writeError(w, r, err)
		return
	}
	flux, ok := body[legacyFluxKey]
	if !ok {
		writeError(w, r, fmt.Errorf("%w: request must contain %q", prediction.ErrMalformedRequest, legacyFluxKey))
		return
	}
	h.predict(w, r, prediction.Request{
		Model:    string(model.KindSequence),
		Features: map[string]any{prediction.FluxKey: flux},
	})
}

func (h *PredictHandler) predict(w http.ResponseWriter, r *http.Request, req prediction.Request) {
	p, err := h.deps.Predict(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPredictionResponse(p, timestamp()))
}

// HandleBatch handles POST /api/predict/batch.
func (h *PredictHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, r, err)
		return
	}
	preds, kind, err := h.deps.PredictBatch(r.Context(), req.Model, req.Data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeBatch(w, preds, kind)
}

// HandleCSV handles POST /api/predict/csv?model=... with a multipart "file"
// upload.
func (h *PredictHandler) HandleCSV(w http.ResponseWriter, r *http.Request) {
	h.predictCSV(w, r, r.URL.Query().Get("model"))
}

// CSVFor returns a CSV upload handler pinned to one model family.
func (h *PredictHandler) CSVFor(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.predictCSV(w, r, string(kind))
	}
}

func (h *PredictHandler) predictCSV(w http.ResponseWriter, r *http.Request, modelName string) {
	file, err := uploadedCSV(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	preds, kind, err := h.deps.PredictCSV(r.Context(), modelName, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeBatch(w, preds, kind)
}

func uploadedCSV(r *http.Request) (io.ReadCloser, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, err
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, ErrNoFile
		}
		return nil, fmt.Errorf("%w: %w", prediction.ErrMalformedRequest, err)
	}
	file, header, err := r.FormFile(csvFileField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, ErrNoFile
		}
		return nil, fmt.Errorf("%w: %w", prediction.ErrMalformedRequest, err)
	}
	if header.Filename == "" {
		_ = file.Close()
		return nil, ErrNoFile
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		_ = file.Close()
		return nil, ErrNotCSV
	}
	return file, nil
}

func writeBatch(w http.ResponseWriter, preds []model.Prediction, kind model.Kind) {
	out := make([]predictionResponse, len(preds))
	for i, p := range preds {
		out[i] = newPredictionResponse(p, "")
	}
	writeJSON(w, http.StatusOK, batchResponse{
		Predictions: out,
		Total:       len(out),
		ModelUsed:   kind,
		Timestamp:   timestamp(),
	})
}
