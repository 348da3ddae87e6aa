package inference

import (
	"errors"
	"math"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const binaryModel = `{
  "learner": {
    "feature_names": ["koi_period", "koi_depth"],
    "gradient_booster": {
      "name": "gbtree",
      "model": {
        "trees": [{
          "left_children": [1, -1, -1],
          "right_children": [2, -1, -1],
          "split_indices": [0, 0, 0],
          "split_conditions": [1.0, 2.0, -2.0],
          "default_left": [1, 0, 0],
          "loss_changes": [4.0, 0, 0],
          "split_type": [0, 0, 0]
        }],
        "tree_info": [0]
      }
    },
    "learner_model_param": {"base_score": "5E-1", "num_class": "0", "num_feature": "2"},
    "objective": {"name": "binary:logistic"}
  },
  "version": [2, 0, 3]
}`

const multiModel = `{
  "learner": {
    "gradient_booster": {
      "name": "gbtree",
      "model": {
        "trees": [
          {"left_children": [-1], "right_children": [-1], "split_indices": [0], "split_conditions": [1.0], "default_left": [false]},
          {"left_children": [-1], "right_children": [-1], "split_indices": [0], "split_conditions": [0.0], "default_left": [false]},
          {"left_children": [-1], "right_children": [-1], "split_indices": [0], "split_conditions": [0.0], "default_left": [false]}
        ],
        "tree_info": [0, 1, 2]
      }
    },
    "learner_model_param": {"base_score": "[5E-1]", "num_class": "3", "num_feature": "1"},
    "objective": {"name": "multi:softprob"}
  }
}`

const tinyNetwork = `{
  "input_width": 4,
  "layers": [
    {"type": "conv1d", "filters": 1, "kernel_size": 2, "activation": "relu", "kernel": [[[1]], [[1]]], "bias": [0]},
    {"type": "dropout"},
    {"type": "flatten"},
    {"type": "dense", "units": 1, "activation": "sigmoid", "kernel": [[1], [1], [1]], "bias": [-10]}
  ]
}`

func TestTreeEnsemble(t *testing.T) {
	Convey("Given a binary logistic XGBoost model", t, func() {
		e, err := DecodeTreeEnsemble(strings.NewReader(binaryModel))
		So(err, ShouldBeNil)

		Convey("Then it should expose its shape", func() {
			So(e.NumFeatures(), ShouldEqual, 2)
			So(e.NumClasses(), ShouldEqual, 2)
			So(e.FeatureNames(), ShouldResemble, []string{"koi_period", "koi_depth"})
		})

		Convey("When a row takes the left branch", func() {
			p, err := e.PredictProba([]float64{0.5, 0})
			So(err, ShouldBeNil)
			Convey("Then the positive class should carry sigmoid of the leaf", func() {
				So(p[1], ShouldAlmostEqual, sigmoid(2), 1e-12)
				So(p[0]+p[1], ShouldAlmostEqual, 1, 1e-12)
			})
		})

		Convey("When the split feature is missing", func() {
			p, err := e.PredictProba([]float64{math.NaN(), 0})
			So(err, ShouldBeNil)
			Convey("Then the default direction should be followed", func() {
				So(p[1], ShouldAlmostEqual, sigmoid(2), 1e-12)
			})
		})

		Convey("When a row takes the right branch", func() {
			p, err := e.PredictProba([]float64{3, 0})
			So(err, ShouldBeNil)
			So(Argmax(p), ShouldEqual, 0)
		})

		Convey("When the row has the wrong width", func() {
			_, err := e.PredictProba([]float64{1})
			So(errors.Is(err, ErrInputShape), ShouldBeTrue)
		})

		Convey("Then importance should be normalized gain", func() {
			So(e.FeatureImportance(), ShouldResemble, []float64{1, 0})
		})
	})

	Convey("Given a multi-class softprob model", t, func() {
		e, err := DecodeTreeEnsemble(strings.NewReader(multiModel))
		So(err, ShouldBeNil)

		Convey("When predicting", func() {
			p, err := e.PredictProba([]float64{0})
			So(err, ShouldBeNil)

			Convey("Then the output should be a softmax over class margins", func() {
				So(len(p), ShouldEqual, 3)
				So(p[0], ShouldAlmostEqual, math.E/(math.E+2), 1e-12)
				So(p[0]+p[1]+p[2], ShouldAlmostEqual, 1, 1e-12)
				So(Argmax(p), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a split threshold that is not exact in float32", t, func() {
		doc := `{
  "learner": {
    "gradient_booster": {"name": "gbtree", "model": {
      "trees": [{"left_children": [1, -1, -1], "right_children": [2, -1, -1], "split_indices": [0, 0, 0],
                 "split_conditions": [289.9, -1.0, 1.0], "default_left": [0, 0, 0]}],
      "tree_info": [0]}},
    "learner_model_param": {"base_score": "5E-1", "num_class": "0", "num_feature": "1"},
    "objective": {"name": "binary:logistic"}
  }
}`
		e, err := DecodeTreeEnsemble(strings.NewReader(doc))
		So(err, ShouldBeNil)

		Convey("A value that rounds onto the threshold goes right", func() {
			x := 289.899995
			So(x, ShouldBeLessThan, 289.9)
			So(float32(x), ShouldEqual, float32(289.9))

			p, err := e.PredictProba([]float64{x})
			So(err, ShouldBeNil)
			So(p[1], ShouldAlmostEqual, sigmoid(1), 1e-7)
		})

		Convey("A value clearly below the threshold goes left", func() {
			p, err := e.PredictProba([]float64{289.8})
			So(err, ShouldBeNil)
			So(p[1], ShouldAlmostEqual, sigmoid(-1), 1e-7)
		})
	})

	Convey("Given a binary logitraw model", t, func() {
		doc := strings.Replace(binaryModel, "binary:logistic", "binary:logitraw", 1)
		e, err := DecodeTreeEnsemble(strings.NewReader(doc))
		So(err, ShouldBeNil)

		Convey("The base score is converted to a zero margin", func() {
			p, err := e.PredictProba([]float64{0.5, 0})
			So(err, ShouldBeNil)
			So(p[1], ShouldAlmostEqual, sigmoid(2), 1e-12)
		})
	})

	Convey("Given broken model documents", t, func() {
		Convey("When the JSON is invalid", func() {
			_, err := DecodeTreeEnsemble(strings.NewReader("{"))
			So(errors.Is(err, ErrDecode), ShouldBeTrue)
		})

		Convey("When the objective is a regression", func() {
			doc := strings.Replace(binaryModel, "binary:logistic", "reg:squarederror", 1)
			_, err := DecodeTreeEnsemble(strings.NewReader(doc))
			So(errors.Is(err, ErrUnsupported), ShouldBeTrue)
		})

		Convey("When a split references a feature the model does not have", func() {
			doc := strings.Replace(binaryModel, `"split_indices": [0, 0, 0]`, `"split_indices": [5, 0, 0]`, 1)
			_, err := DecodeTreeEnsemble(strings.NewReader(doc))
			So(errors.Is(err, ErrInconsistent), ShouldBeTrue)
		})
	})
}

func TestNetwork(t *testing.T) {
	Convey("Given a tiny convolutional network", t, func() {
		n, err := DecodeNetwork(strings.NewReader(tinyNetwork))
		So(err, ShouldBeNil)
		So(n.InputWidth(), ShouldEqual, 4)
		So(n.NumClasses(), ShouldEqual, 2)

		Convey("When a series is scored", func() {
			p, err := n.PredictProba([]float64{1, 2, 3, 4})
			So(err, ShouldBeNil)

			Convey("Then the sigmoid output should be expanded to two classes", func() {
				// conv: [3 5 7], dense: 15 - 10
				So(p[1], ShouldAlmostEqual, sigmoid(5), 1e-12)
				So(p[0], ShouldAlmostEqual, 1-sigmoid(5), 1e-12)
			})
		})

		Convey("When the series has the wrong length", func() {
			_, err := n.PredictProba([]float64{1, 2, 3})
			So(errors.Is(err, ErrInputShape), ShouldBeTrue)
		})
	})

	Convey("Given a network with same padding, pooling and batch norm", t, func() {
		doc := `{
  "input_width": 6,
  "layers": [
    {"type": "conv1d", "filters": 2, "kernel_size": 3, "padding": "same", "activation": "relu",
     "kernel": [[[1, 0]], [[1, 0]], [[1, 1]]], "bias": [0, 0]},
    {"type": "batch_norm", "gamma": [1, 1], "beta": [0, 0], "moving_mean": [0, 0], "moving_variance": [1, 1], "epsilon": 0},
    {"type": "max_pool1d", "pool_size": 2},
    {"type": "global_avg_pool1d"},
    {"type": "dense", "units": 2, "activation": "softmax", "kernel": [[1, -1], [0, 0]], "bias": [0, 0]}
  ]
}`
		n, err := DecodeNetwork(strings.NewReader(doc))
		So(err, ShouldBeNil)

		Convey("When a series is scored", func() {
			p, err := n.PredictProba([]float64{1, 1, 1, 1, 1, 1})
			So(err, ShouldBeNil)

			Convey("Then the output should be a distribution", func() {
				So(len(p), ShouldEqual, 2)
				So(p[0]+p[1], ShouldAlmostEqual, 1, 1e-9)
				So(Argmax(p), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a network that pools with same padding", t, func() {
		doc := `{
  "input_width": 5,
  "layers": [
    {"type": "max_pool1d", "pool_size": 2, "padding": "same"},
    {"type": "global_avg_pool1d"},
    {"type": "dense", "units": 1, "activation": "sigmoid", "kernel": [[1]], "bias": [0]}
  ]
}`
		n, err := DecodeNetwork(strings.NewReader(doc))
		So(err, ShouldBeNil)

		Convey("The trailing partial window is kept and padding is ignored", func() {
			// windows [0 0] [0 0] [9]: averages to 3
			p, err := n.PredictProba([]float64{0, 0, 0, 0, 9})
			So(err, ShouldBeNil)
			So(p[1], ShouldAlmostEqual, sigmoid(3), 1e-12)
		})

		Convey("Valid padding drops the partial window", func() {
			valid, err := DecodeNetwork(strings.NewReader(strings.Replace(doc, `"padding": "same"`, `"padding": "valid"`, 1)))
			So(err, ShouldBeNil)
			p, err := valid.PredictProba([]float64{0, 0, 0, 0, 9})
			So(err, ShouldBeNil)
			So(p[1], ShouldAlmostEqual, 0.5, 1e-12)
		})

		Convey("Unknown pooling padding is rejected", func() {
			_, err := DecodeNetwork(strings.NewReader(strings.Replace(doc, `"padding": "same"`, `"padding": "causal"`, 1)))
			So(errors.Is(err, ErrUnsupported), ShouldBeTrue)
		})
	})

	Convey("Given network exports that do not describe a classifier", t, func() {
		Convey("When the last layer is linear", func() {
			doc := strings.Replace(tinyNetwork, `"activation": "sigmoid"`, `"activation": "linear"`, 1)
			_, err := DecodeNetwork(strings.NewReader(doc))
			So(errors.Is(err, ErrInconsistent), ShouldBeTrue)
		})

		Convey("When a kernel does not match the declared shape", func() {
			doc := strings.Replace(tinyNetwork, `"kernel_size": 2`, `"kernel_size": 3`, 1)
			_, err := DecodeNetwork(strings.NewReader(doc))
			So(errors.Is(err, ErrInconsistent), ShouldBeTrue)
		})

		Convey("When a layer type is unknown", func() {
			doc := strings.Replace(tinyNetwork, `"type": "flatten"`, `"type": "lstm"`, 1)
			_, err := DecodeNetwork(strings.NewReader(doc))
			So(errors.Is(err, ErrUnsupported), ShouldBeTrue)
		})
	})
}

func TestPreprocessArtifacts(t *testing.T) {
	Convey("Given a standard scaler", t, func() {
		s, err := DecodeStandardScaler(strings.NewReader(`{"mean": [10, 0], "scale": [2, 0]}`))
		So(err, ShouldBeNil)

		Convey("When a row is transformed", func() {
			out, err := s.Transform([]float64{14, 3})
			So(err, ShouldBeNil)
			Convey("Then zero scales should act as one", func() {
				So(out, ShouldResemble, []float64{2, 3})
			})
		})

		Convey("When the row is too short", func() {
			_, err := s.Transform([]float64{1})
			So(errors.Is(err, ErrInputShape), ShouldBeTrue)
		})
	})

	Convey("Given a label encoder document", t, func() {
		l, err := DecodeLabels(strings.NewReader(`{"classes": ["CANDIDATE", "CONFIRMED", "FALSE POSITIVE"]}`))
		So(err, ShouldBeNil)

		Convey("Then indices should map to class names", func() {
			name, ok := l.Label(1)
			So(ok, ShouldBeTrue)
			So(name, ShouldEqual, "CONFIRMED")
			_, ok = l.Label(3)
			So(ok, ShouldBeFalse)
		})

		Convey("When classes repeat", func() {
			_, err := DecodeLabels(strings.NewReader(`{"classes": ["A", "A"]}`))
			So(errors.Is(err, ErrInconsistent), ShouldBeTrue)
		})
	})

	Convey("Given a feature list document", t, func() {
		Convey("When it is well formed", func() {
			names, err := DecodeFeatureNames(strings.NewReader(`["koi_period", " koi_depth "]`))
			So(err, ShouldBeNil)
			So(names, ShouldResemble, []string{"koi_period", "koi_depth"})
		})

		Convey("When it repeats a name", func() {
			_, err := DecodeFeatureNames(strings.NewReader(`["a", "a"]`))
			So(errors.Is(err, ErrInconsistent), ShouldBeTrue)
		})
	})
}
