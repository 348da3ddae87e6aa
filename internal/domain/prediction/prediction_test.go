package prediction_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/exodetect/internal/domain/inference"
	"github.com/okian/exodetect/internal/domain/model"
	"github.com/okian/exodetect/internal/domain/prediction"
	"github.com/okian/exodetect/internal/domain/registry"
	"github.com/okian/exodetect/internal/testfixtures"
)

func TestValidator(t *testing.T) {
	Convey("Given a validator over the trained feature order", t, func() {
		v := prediction.NewValidator(testfixtures.FeatureNames, testfixtures.FluxWidth)

		Convey("A complete feature set is ordered by the feature list", func() {
			in, err := v.Validate(prediction.Request{Features: testfixtures.Kepler22b()})
			So(err, ShouldBeNil)
			So(in.Kind, ShouldEqual, model.KindTabular)
			So(in.Row, ShouldHaveLength, 8)
			So(in.Row[0], ShouldEqual, 289.9)
			So(in.Row[4], ShouldEqual, 262.0)
		})

		Convey("Extra keys are ignored", func() {
			f := testfixtures.Kepler22b()
			f["kepler_name"] = "Kepler-22 b"
			_, err := v.Validate(prediction.Request{Model: "xgboost", Features: f})
			So(err, ShouldBeNil)
		})

		Convey("Missing features are all reported", func() {
			f := testfixtures.Kepler22b()
			delete(f, "koi_teq")
			delete(f, "koi_period")
			_, err := v.Validate(prediction.Request{Features: f})
			So(errors.Is(err, prediction.ErrMissingFeatures), ShouldBeTrue)
			var mf *prediction.MissingFeaturesError
			So(errors.As(err, &mf), ShouldBeTrue)
			So(mf.Missing, ShouldResemble, []string{"koi_period", "koi_teq"})
		})

		Convey("Non-numeric values are malformed", func() {
			f := testfixtures.Kepler22b()
			f["koi_teq"] = "hot"
			_, err := v.Validate(prediction.Request{Features: f})
			So(errors.Is(err, prediction.ErrMalformedRequest), ShouldBeTrue)
		})

		Convey("json.Number and null values are accepted", func() {
			f := testfixtures.Kepler22b()
			f["koi_teq"] = json.Number("262")
			f["koi_srad"] = nil
			in, err := v.Validate(prediction.Request{Features: f})
			So(err, ShouldBeNil)
			So(in.Row[4], ShouldEqual, 262.0)
			So(math.IsNaN(in.Row[7]), ShouldBeTrue)
		})

		Convey("Unknown model names are rejected and case is ignored", func() {
			_, err := v.Validate(prediction.Request{Model: "random_forest", Features: testfixtures.Kepler22b()})
			So(errors.Is(err, prediction.ErrUnknownModel), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "random_forest")

			_, err = v.Validate(prediction.Request{Model: "XGBoost", Features: testfixtures.Kepler22b()})
			So(err, ShouldBeNil)
		})

		Convey("Empty features are malformed", func() {
			_, err := v.Validate(prediction.Request{})
			So(errors.Is(err, prediction.ErrMalformedRequest), ShouldBeTrue)
		})

		Convey("A flux series of the wrong length reports both lengths", func() {
			f := map[string]any{prediction.FluxKey: testfixtures.Flux(3196, 0)}
			_, err := v.Validate(prediction.Request{Model: "cnn", Features: f})
			So(errors.Is(err, prediction.ErrLengthMismatch), ShouldBeTrue)
			var lm *prediction.LengthMismatchError
			So(errors.As(err, &lm), ShouldBeTrue)
			So(lm.Expected, ShouldEqual, 3197)
			So(lm.Received, ShouldEqual, 3196)
			So(err.Error(), ShouldContainSubstring, "3197")
			So(err.Error(), ShouldContainSubstring, "3196")
		})

		Convey("A decoded JSON flux array is accepted", func() {
			raw := make([]any, testfixtures.FluxWidth)
			for i := range raw {
				raw[i] = 1.0
			}
			in, err := v.Validate(prediction.Request{Model: "cnn", Features: map[string]any{prediction.FluxKey: raw}})
			So(err, ShouldBeNil)
			So(in.Series, ShouldHaveLength, testfixtures.FluxWidth)
		})

		Convey("Flux must be present, an array and finite", func() {
			_, err := v.Validate(prediction.Request{Model: "cnn", Features: map[string]any{"x": 1.0}})
			So(errors.Is(err, prediction.ErrMalformedRequest), ShouldBeTrue)

			_, err = v.Validate(prediction.Request{Model: "cnn", Features: map[string]any{prediction.FluxKey: "1,2,3"}})
			So(errors.Is(err, prediction.ErrMalformedRequest), ShouldBeTrue)

			s := testfixtures.Flux(testfixtures.FluxWidth, 0)
			s[10] = math.Inf(1)
			_, err = v.Validate(prediction.Request{Model: "cnn", Features: map[string]any{prediction.FluxKey: s}})
			So(errors.Is(err, prediction.ErrMalformedRequest), ShouldBeTrue)
		})
	})
}

func TestDispatcher(t *testing.T) {
	Convey("Given a dispatcher over the fixture registry", t, func() {
		ctx := context.Background()
		v := prediction.NewValidator(testfixtures.FeatureNames, testfixtures.FluxWidth)
		d := prediction.NewDispatcher(testfixtures.Registry(t))

		predict := func(name string, f map[string]any) (model.Prediction, error) {
			in, err := v.Validate(prediction.Request{Model: name, Features: f})
			So(err, ShouldBeNil)
			return d.Predict(ctx, in)
		}

		Convey("Kepler-22b is classified as confirmed", func() {
			p, err := predict("xgboost", testfixtures.Kepler22b())
			So(err, ShouldBeNil)
			So(p.Classification, ShouldEqual, "CONFIRMED")
			So(p.ClassIndex, ShouldEqual, 1)
			So(p.Confidence, ShouldEqual, 78.56)
			So(p.ModelUsed, ShouldEqual, model.KindTabular)
			So(p.Probabilities, ShouldHaveLength, 3)
			So(p.Probabilities["CANDIDATE"], ShouldEqual, 17.53)
			So(p.Probabilities["FALSE POSITIVE"], ShouldEqual, 3.91)
		})

		Convey("A hot, highly irradiated object is a false positive", func() {
			p, err := predict("", testfixtures.FalsePositive())
			So(err, ShouldBeNil)
			So(p.Classification, ShouldEqual, "FALSE POSITIVE")
		})

		Convey("Confidence is the maximum probability", func() {
			p, err := predict("xgboost", testfixtures.FalsePositive())
			So(err, ShouldBeNil)
			for _, prob := range p.Probabilities {
				So(p.Confidence, ShouldBeGreaterThanOrEqualTo, prob)
			}
		})

		Convey("Repeated predictions are identical", func() {
			a, err := predict("xgboost", testfixtures.Kepler22b())
			So(err, ShouldBeNil)
			b, err := predict("xgboost", testfixtures.Kepler22b())
			So(err, ShouldBeNil)
			So(b, ShouldResemble, a)
		})

		Convey("The sequence model names classes by index when the encoder does not fit", func() {
			p, err := predict("cnn", map[string]any{prediction.FluxKey: testfixtures.Flux(testfixtures.FluxWidth, 2)})
			So(err, ShouldBeNil)
			So(p.Classification, ShouldEqual, "1")
			So(p.ClassIndex, ShouldEqual, 1)
			So(p.Confidence, ShouldEqual, 88.08)
			So(p.Probabilities, ShouldResemble, map[string]float64{"0": 11.92, "1": 88.08})
			So(p.ModelUsed, ShouldEqual, model.KindSequence)
		})

		Convey("A network alone is labeled by index", func() {
			only := prediction.NewDispatcher(registry.New(registry.WithSequence(testfixtures.Registry(t).Sequence())))
			in, err := v.Validate(prediction.Request{Model: "cnn", Features: map[string]any{prediction.FluxKey: testfixtures.Flux(testfixtures.FluxWidth, 2)}})
			So(err, ShouldBeNil)
			p, err := only.Predict(ctx, in)
			So(err, ShouldBeNil)
			So(p.Classification, ShouldEqual, "1")
			So(p.Probabilities, ShouldContainKey, "0")
		})

		Convey("Configured sequence labels apply when the encoder does not fit", func() {
			named := prediction.NewDispatcher(testfixtures.Registry(t),
				prediction.WithSequenceLabels("Not an Exoplanet", "Exoplanet"))
			in, err := v.Validate(prediction.Request{Model: "cnn", Features: map[string]any{prediction.FluxKey: testfixtures.Flux(testfixtures.FluxWidth, 2)}})
			So(err, ShouldBeNil)
			p, err := named.Predict(ctx, in)
			So(err, ShouldBeNil)
			So(p.Classification, ShouldEqual, "Exoplanet")
			So(p.Probabilities["Not an Exoplanet"], ShouldEqual, 11.92)
		})

		Convey("A missing model is unavailable", func() {
			empty := prediction.NewDispatcher(registry.New())
			in, err := v.Validate(prediction.Request{Features: testfixtures.Kepler22b()})
			So(err, ShouldBeNil)
			_, err = empty.Predict(ctx, in)
			So(errors.Is(err, prediction.ErrModelUnavailable), ShouldBeTrue)
			So(empty.Available(model.KindTabular), ShouldBeFalse)
		})

		Convey("Without an encoder tabular classes are named by index", func() {
			reg := testfixtures.Registry(t)
			bare := prediction.NewDispatcher(registry.New(registry.WithTabular(reg.Tabular()), registry.WithScaler(reg.Scaler())))
			in, err := v.Validate(prediction.Request{Features: testfixtures.Kepler22b()})
			So(err, ShouldBeNil)
			p, err := bare.Predict(ctx, in)
			So(err, ShouldBeNil)
			So(p.Classification, ShouldEqual, "1")
		})

		Convey("An encoder with too few classes fails the prediction", func() {
			reg := testfixtures.Registry(t)
			short := prediction.NewDispatcher(registry.New(
				registry.WithTabular(reg.Tabular()),
				registry.WithEncoder(inference.NewLabels("CANDIDATE")),
			))
			in, err := v.Validate(prediction.Request{Features: testfixtures.Kepler22b()})
			So(err, ShouldBeNil)
			_, err = short.Predict(ctx, in)
			So(errors.Is(err, prediction.ErrPredictionFailure), ShouldBeTrue)
		})

		Convey("A panicking model is reported as a prediction failure", func() {
			d := prediction.NewDispatcher(registry.New(registry.WithSequence(panicky{})))
			_, err := d.Predict(ctx, prediction.Input{Kind: model.KindSequence, Series: []float64{1}})
			So(errors.Is(err, prediction.ErrPredictionFailure), ShouldBeTrue)
		})
	})
}

type panicky struct{}

func (panicky) PredictProba([]float64) ([]float64, error) { panic("boom") }
func (panicky) InputWidth() int                           { return 1 }

func TestBatch(t *testing.T) {
	Convey("Given a batch over the fixture registry", t, func() {
		ctx := context.Background()
		v := prediction.NewValidator(testfixtures.FeatureNames, testfixtures.FluxWidth)
		d := prediction.NewDispatcher(testfixtures.Registry(t))
		b := prediction.NewBatch(v, d, prediction.WithMaxItems(3))

		Convey("Results keep input order and match single predictions", func() {
			out, err := b.Predict(ctx, "xgboost", []map[string]any{testfixtures.FalsePositive(), testfixtures.Kepler22b()})
			So(err, ShouldBeNil)
			So(out, ShouldHaveLength, 2)
			So(out[0].Classification, ShouldEqual, "FALSE POSITIVE")
			So(out[1].Classification, ShouldEqual, "CONFIRMED")

			in, err := v.Validate(prediction.Request{Features: testfixtures.Kepler22b()})
			So(err, ShouldBeNil)
			single, err := d.Predict(ctx, in)
			So(err, ShouldBeNil)
			So(out[1], ShouldResemble, single)
		})

		Convey("An invalid item fails the batch with its index", func() {
			bad := testfixtures.Kepler22b()
			delete(bad, "koi_prad")
			_, err := b.Predict(ctx, "xgboost", []map[string]any{testfixtures.Kepler22b(), bad})
			So(errors.Is(err, prediction.ErrMissingFeatures), ShouldBeTrue)
			var ie *prediction.ItemError
			So(errors.As(err, &ie), ShouldBeTrue)
			So(ie.Index, ShouldEqual, 1)
		})

		Convey("Empty and oversized batches are malformed", func() {
			_, err := b.Predict(ctx, "xgboost", nil)
			So(errors.Is(err, prediction.ErrMalformedRequest), ShouldBeTrue)

			items := []map[string]any{testfixtures.Kepler22b(), testfixtures.Kepler22b(), testfixtures.Kepler22b(), testfixtures.Kepler22b()}
			_, err = b.Predict(ctx, "xgboost", items)
			So(errors.Is(err, prediction.ErrMalformedRequest), ShouldBeTrue)
		})

		Convey("Unknown models are rejected before validation", func() {
			_, err := b.Predict(ctx, "random_forest", []map[string]any{{}})
			So(errors.Is(err, prediction.ErrUnknownModel), ShouldBeTrue)
		})
	})
}

func TestCode(t *testing.T) {
	Convey("Error kinds map to stable codes", t, func() {
		So(prediction.Code(&prediction.MissingFeaturesError{Missing: []string{"a"}}), ShouldEqual, "missing_features")
		So(prediction.Code(&prediction.ItemError{Index: 2, Err: &prediction.LengthMismatchError{Expected: 3, Received: 2}}), ShouldEqual, "length_mismatch")
		So(prediction.Code(prediction.ErrUnknownModel), ShouldEqual, "unknown_model")
		So(prediction.Code(prediction.ErrMalformedRequest), ShouldEqual, "bad_request")
		So(prediction.Code(prediction.ErrModelUnavailable), ShouldEqual, "model_unavailable")
		So(prediction.Code(errors.New("boom")), ShouldEqual, "prediction_failed")
		So(prediction.IsClientError(prediction.ErrMalformedRequest), ShouldBeTrue)
		So(prediction.IsClientError(prediction.ErrModelUnavailable), ShouldBeFalse)
	})
}
