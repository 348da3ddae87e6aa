package csvinput_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/exodetect/internal/adapters/csvinput"
	"github.com/okian/exodetect/internal/domain/model"
	"github.com/okian/exodetect/internal/domain/prediction"
)

func TestReadFeatures(t *testing.T) {
	Convey("Given a tabular CSV with a BOM and a comment", t, func() {
		doc := "\ufeff# exported from the archive\nkoi_period,koi_teq,kepler_name\n289.9, 262,Kepler-22 b\n1.2,,\n"

		Convey("When it is read", func() {
			rows, err := csvinput.Read(strings.NewReader(doc), model.KindTabular)

			Convey("Then each row maps header names to values", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[0]["koi_period"], ShouldEqual, 289.9)
				So(rows[0]["koi_teq"], ShouldEqual, 262.0)
				So(rows[0]["kepler_name"], ShouldEqual, "Kepler-22 b")
				So(rows[1]["koi_teq"], ShouldBeNil)
			})
		})
	})

	Convey("Given CSV documents that cannot be used", t, func() {
		Convey("A header without rows is empty", func() {
			_, err := csvinput.ReadFeatures(strings.NewReader("koi_period\n"))
			So(errors.Is(err, csvinput.ErrEmpty), ShouldBeTrue)
		})

		Convey("An empty file is empty", func() {
			_, err := csvinput.ReadFeatures(strings.NewReader(""))
			So(errors.Is(err, csvinput.ErrEmpty), ShouldBeTrue)
		})

		Convey("Ragged rows are malformed", func() {
			_, err := csvinput.ReadFeatures(strings.NewReader("a,b\n1,2,3\n"))
			So(errors.Is(err, csvinput.ErrMalformed), ShouldBeTrue)
		})

		Convey("Blank header names are malformed", func() {
			_, err := csvinput.ReadFeatures(strings.NewReader("a,\n1,2\n"))
			So(errors.Is(err, csvinput.ErrMalformed), ShouldBeTrue)
		})
	})
}

func TestReadFlux(t *testing.T) {
	Convey("Given a headerless flux CSV", t, func() {
		rows, err := csvinput.Read(strings.NewReader("1.5,2,-3e2\n0,0\n"), model.KindSequence)

		Convey("Then every row becomes a flux series", func() {
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 2)
			So(rows[0][prediction.FluxKey], ShouldResemble, []float64{1.5, 2, -300})
			So(rows[1][prediction.FluxKey], ShouldHaveLength, 2)
		})

		Convey("Then text cells are rejected with their position", func() {
			_, err := csvinput.ReadFlux(strings.NewReader("1,2\n3,abc\n"))
			So(errors.Is(err, csvinput.ErrMalformed), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "row 2 column 2")
		})

		Convey("Then NaN literals parse and are left for validation", func() {
			rows, err := csvinput.ReadFlux(strings.NewReader("NaN,1\n"))
			So(err, ShouldBeNil)
			series := rows[0][prediction.FluxKey].([]float64)
			So(math.IsNaN(series[0]), ShouldBeTrue)
		})
	})
}
