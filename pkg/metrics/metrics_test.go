package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given a manager built with options", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(
			WithNamespace("test"),
			WithSubsystem("unit"),
			WithPrefix("x"),
			WithLatencyBuckets([]float64{0.1, 0.5, 1.0}),
			WithBatchBuckets([]float64{1, 10}),
			WithEnabled(true),
			WithRefreshInterval(5*time.Second),
			WithConstLabels(map[string]string{"env": "test"}),
			WithRegisterer(registry),
		)

		Convey("Then the options are applied", func() {
			So(m.namespace, ShouldEqual, "test")
			So(m.subsystem, ShouldEqual, "unit")
			So(m.latencyBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
			So(m.batchBuckets, ShouldResemble, []float64{1, 10})
			So(m.constLabels, ShouldResemble, map[string]string{"env": "test"})
			So(m.refreshInterval, ShouldEqual, 5*time.Second)
		})

		Convey("Then metric names carry namespace, subsystem and prefix", func() {
			m.cacheHits.Inc()
			families, err := registry.Gather()
			So(err, ShouldBeNil)
			var names []string
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(names, ShouldContain, "test_unit_x_cache_hits_total")
		})

		Convey("Then empty or invalid options keep the defaults", func() {
			d := NewManager(
				WithNamespace(""),
				WithRefreshInterval(-time.Second),
				WithLatencyBuckets(nil),
				WithConstLabels(nil),
				WithRegisterer(prometheus.NewRegistry()),
			)
			So(d.namespace, ShouldEqual, "exodetect")
			So(d.refreshInterval, ShouldEqual, defaultRefreshInterval)
			So(d.latencyBuckets, ShouldResemble, DefaultLatencyBuckets)
			So(d.constLabels, ShouldBeNil)
		})
	})
}

func TestPredictionMetrics(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When predictions are recorded", func() {
			before := testutil.ToFloat64(globalManager.predictions.WithLabelValues("xgboost", "ok"))
			RecordPrediction("xgboost", "ok")
			RecordPrediction("xgboost", "ok")
			RecordInferenceLatency("xgboost", 1.5)

			Convey("Then the counter advances per call", func() {
				after := testutil.ToFloat64(globalManager.predictions.WithLabelValues("xgboost", "ok"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When cache lookups are recorded", func() {
			hits := testutil.ToFloat64(globalManager.cacheHits)
			misses := testutil.ToFloat64(globalManager.cacheMisses)
			RecordCacheHit()
			RecordCacheMiss()
			RecordCacheMiss()

			Convey("Then hits and misses are counted separately", func() {
				So(testutil.ToFloat64(globalManager.cacheHits)-hits, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.cacheMisses)-misses, ShouldEqual, 2)
			})
		})

		Convey("When artifact state changes", func() {
			UpdateArtifactLoaded("cnn", true)
			So(testutil.ToFloat64(globalManager.artifactLoaded.WithLabelValues("cnn")), ShouldEqual, 1)
			UpdateArtifactLoaded("cnn", false)
			So(testutil.ToFloat64(globalManager.artifactLoaded.WithLabelValues("cnn")), ShouldEqual, 0)
		})

		Convey("When worker activity is recorded", func() {
			AddWorkerActive(3)
			So(testutil.ToFloat64(globalManager.workerActiveCount), ShouldEqual, 3)
			AddWorkerActive(-3)
			So(testutil.ToFloat64(globalManager.workerActiveCount), ShouldEqual, 0)
			So(func() { RecordWorkerTask() }, ShouldNotPanic)
		})

		Convey("When batch and csv sizes are recorded", func() {
			So(func() {
				RecordBatchSize(3)
				RecordCSVRows(10)
			}, ShouldNotPanic)
		})
	})
}

func TestHTTPAndSystemMetrics(t *testing.T) {
	Convey("Given HTTP, error and system recorders", t, func() {
		So(func() {
			RecordHTTPRequest("/api/predict", "POST", "200")
			RecordHTTPRequestDuration("/api/predict", "POST", "200", 12.5)
			RecordErrorByComponent("http", "bad_request")
			RecordErrorByEndpoint("/api/predict", "POST", "bad_request")
			RecordErrorLatency("prediction", "prediction_failed", 3)
			UpdateSystemMemoryUsage(1 << 20)
			UpdateSystemGoroutineCount(12)
			RecordSystemGCPauseTime(0.4)
		}, ShouldNotPanic)

		Convey("Then the registry exposes them in text format", func() {
			n, err := testutil.GatherAndCount(GetRegistry(), "exodetect_api_http_requests_total")
			So(err, ShouldBeNil)
			So(n, ShouldBeGreaterThan, 0)

			err = testutil.GatherAndCompare(GetRegistry(), strings.NewReader(`
# HELP exodetect_api_system_goroutine_count Number of goroutines
# TYPE exodetect_api_system_goroutine_count gauge
exodetect_api_system_goroutine_count 12
`), "exodetect_api_system_goroutine_count")
			So(err, ShouldBeNil)
			So(RefreshInterval(), ShouldEqual, defaultRefreshInterval)
		})
	})
}
