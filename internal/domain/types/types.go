// Package types contains the read models returned by the service to the API.
package types

// Health status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// ArtifactStatus reports how one artifact slot was populated.
type ArtifactStatus struct {
	Artifact string `json:"artifact"`
	Location string `json:"location,omitempty"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
}

// Health summarizes which artifacts are usable.
type Health struct {
	Status         string           `json:"status"`
	XGBLoaded      bool             `json:"xgb_loaded"`
	CNNLoaded      bool             `json:"cnn_loaded"`
	ScalerLoaded   bool             `json:"scaler_loaded"`
	EncoderLoaded  bool             `json:"encoder_loaded"`
	FeaturesLoaded bool             `json:"features_loaded"`
	Artifacts      []ArtifactStatus `json:"artifacts"`
}

// ModelInfo describes one model family and whether it can serve requests.
type ModelInfo struct {
	Available bool   `json:"available"`
	Type      string `json:"type"`
	Accuracy  string `json:"accuracy"`
	UseCase   string `json:"use_case"`
}

// ModelsInfo lists the model families and the inputs they expect.
type ModelsInfo struct {
	Models        map[string]ModelInfo `json:"models"`
	Features      []string             `json:"features"`
	FeatureSource string               `json:"feature_source"`
	FluxLength    int                  `json:"flux_length"`
	Classes       []string             `json:"classes"`
}

// FeatureImportance is the weight of one feature in the tabular model.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}
