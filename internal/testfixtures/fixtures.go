// Package testfixtures provides a small, deterministic artifact set for
// tests: an 8-feature XGBoost model over three dispositions, a fitted
// scaler, a label encoder, a feature list and a 3197-wide network.
package testfixtures

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/exodetect/internal/domain/inference"
	"github.com/okian/exodetect/internal/domain/registry"
)

// File names the fixtures are written under; they match the config defaults.
const (
	TreeModelFile = "exoplanet_xgboost_model.json"
	NetworkFile   = "exoplanet_cnn_model.json"
	ScalerFile    = "exoplanet_final_scaler.json"
	LabelsFile    = "exoplanet_final_label_encoder.json"
	FeaturesFile  = "exoplanet_final_features.json"
)

// FluxWidth is the series length the fixture network accepts.
const FluxWidth = 3197

// FeatureNames is the trained feature order.
var FeatureNames = []string{
	"koi_period", "koi_duration", "koi_depth", "koi_prad",
	"koi_teq", "koi_insol", "koi_steff", "koi_srad",
}

// Classes is the label encoder's class order.
var Classes = []string{"CANDIDATE", "CONFIRMED", "FALSE POSITIVE"}

// TreeModel scores three classes. CONFIRMED rises when scaled koi_teq is
// below -0.5 (raw < 750 K); FALSE POSITIVE rises when scaled koi_insol is at
// least 100; CANDIDATE is a constant.
const TreeModel = `{
  "learner": {
    "gradient_booster": {
      "name": "gbtree",
      "model": {
        "trees": [
          {"left_children": [-1], "right_children": [-1], "split_indices": [0], "split_conditions": [0.5], "default_left": [0], "loss_changes": [0]},
          {"left_children": [1, -1, -1], "right_children": [2, -1, -1], "split_indices": [4, 0, 0], "split_conditions": [-0.5, 2.0, -1.0], "default_left": [0, 0, 0], "loss_changes": [10.0, 0, 0]},
          {"left_children": [1, -1, -1], "right_children": [2, -1, -1], "split_indices": [5, 0, 0], "split_conditions": [100.0, -1.0, 2.0], "default_left": [1, 0, 0], "loss_changes": [6.0, 0, 0]}
        ],
        "tree_info": [0, 1, 2]
      }
    },
    "learner_model_param": {"base_score": "5E-1", "num_class": "3", "num_feature": "8"},
    "objective": {"name": "multi:softprob"}
  },
  "version": [2, 0, 3]
}`

// Scaler standardizes koi_teq around 1000 K and leaves the rest untouched.
const Scaler = `{"mean": [0, 0, 0, 0, 1000, 0, 0, 0], "scale": [1, 1, 1, 1, 500, 1, 1, 1]}`

// Labels is the label encoder document.
const Labels = `{"classes": ["CANDIDATE", "CONFIRMED", "FALSE POSITIVE"]}`

// Features is the feature list document.
const Features = `["koi_period", "koi_duration", "koi_depth", "koi_prad", "koi_teq", "koi_insol", "koi_steff", "koi_srad"]`

// Network outputs sigmoid(mean(series)).
const Network = `{
  "input_width": 3197,
  "layers": [
    {"type": "conv1d", "filters": 1, "kernel_size": 1, "activation": "linear", "kernel": [[[1]]], "bias": [0]},
    {"type": "global_avg_pool1d"},
    {"type": "dense", "units": 1, "activation": "sigmoid", "kernel": [[1]], "bias": [0]}
  ]
}`

var documents = map[string]string{
	TreeModelFile: TreeModel,
	NetworkFile:   Network,
	ScalerFile:    Scaler,
	LabelsFile:    Labels,
	FeaturesFile:  Features,
}

// WriteArtifacts writes the named fixture files (all when names is empty)
// into dir.
func WriteArtifacts(t testing.TB, dir string, names ...string) {
	t.Helper()
	if len(names) == 0 {
		names = []string{TreeModelFile, NetworkFile, ScalerFile, LabelsFile, FeaturesFile}
	}
	for _, n := range names {
		doc, ok := documents[n]
		if !ok {
			t.Fatalf("unknown fixture %q", n)
		}
		if err := os.WriteFile(filepath.Join(dir, n), []byte(doc), 0o600); err != nil {
			t.Fatalf("write fixture %s: %v", n, err)
		}
	}
}

// Paths returns registry paths for the fixture files.
func Paths() registry.Paths {
	return registry.Paths{
		Tabular:  TreeModelFile,
		Sequence: NetworkFile,
		Scaler:   ScalerFile,
		Encoder:  LabelsFile,
		Features: FeaturesFile,
	}
}

// Registry decodes every fixture into an in-memory registry.
func Registry(t testing.TB) *registry.Registry {
	t.Helper()
	tree, err := inference.DecodeTreeEnsemble(strings.NewReader(TreeModel))
	if err != nil {
		t.Fatalf("decode tree model: %v", err)
	}
	net, err := inference.DecodeNetwork(strings.NewReader(Network))
	if err != nil {
		t.Fatalf("decode network: %v", err)
	}
	scaler, err := inference.DecodeStandardScaler(strings.NewReader(Scaler))
	if err != nil {
		t.Fatalf("decode scaler: %v", err)
	}
	return registry.New(
		registry.WithTabular(tree),
		registry.WithSequence(net),
		registry.WithScaler(scaler),
		registry.WithEncoder(inference.NewLabels(Classes...)),
		registry.WithFeatures(FeatureNames...),
	)
}

// Kepler22b returns the confirmed-planet example feature set.
func Kepler22b() map[string]any {
	return map[string]any{
		"koi_period": 289.9, "koi_duration": 5.4, "koi_depth": 492.0, "koi_prad": 2.4,
		"koi_teq": 262.0, "koi_insol": 1.42, "koi_steff": 5518.0, "koi_srad": 0.98,
	}
}

// FalsePositive returns the stellar-variability example feature set.
func FalsePositive() map[string]any {
	return map[string]any{
		"koi_period": 1.2, "koi_duration": 0.8, "koi_depth": 50.0, "koi_prad": 0.5,
		"koi_teq": 1500.0, "koi_insol": 250.0, "koi_steff": 6200.0, "koi_srad": 1.5,
	}
}

// Flux returns a series of n readings all equal to v.
func Flux(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
