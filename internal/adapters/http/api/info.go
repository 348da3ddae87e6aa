package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/okian/exodetect/internal/domain/types"
)

// topFeatures is the size of the top_5 importance summary.
const topFeatures = 5

// InfoDependencies expose the read-only model metadata.
type InfoDependencies interface {
	ModelsInfo() (types.ModelsInfo, error)
	FeatureImportance() ([]types.FeatureImportance, error)
	Stats() (map[string]map[string]any, error)
	Examples() (map[string]map[string]any, error)
}

// InfoHandler serves model metadata, dataset statistics and examples.
type InfoHandler struct {
	deps InfoDependencies
}

// NewInfoHandler creates a new info handler.
func NewInfoHandler(deps InfoDependencies) *InfoHandler {
	return &InfoHandler{deps: deps}
}

// HandleModelsInfo handles GET /api/models/info.
func (h *InfoHandler) HandleModelsInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.deps.ModelsInfo()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleDatasetStats handles GET /api/stats.
func (h *InfoHandler) HandleDatasetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Stats()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleExamples handles GET /api/examples.
func (h *InfoHandler) HandleExamples(w http.ResponseWriter, r *http.Request) {
	examples, err := h.deps.Examples()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, examples)
}

type importanceResponse struct {
	Importance orderedWeights            `json:"importance"`
	Top5       orderedWeights            `json:"top_5"`
	Ranked     []types.FeatureImportance `json:"ranked"`
}

// HandleFeatureImportance handles GET /api/features/importance. The maps
// keep the highest weight first.
func (h *InfoHandler) HandleFeatureImportance(w http.ResponseWriter, r *http.Request) {
	ranked, err := h.deps.FeatureImportance()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importanceResponse{
		Importance: ranked,
		Top5:       ranked[:min(topFeatures, len(ranked))],
		Ranked:     ranked,
	})
}

// orderedWeights marshals as a JSON object whose keys keep slice order.
type orderedWeights []types.FeatureImportance

func (o orderedWeights) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Feature)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Importance)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
