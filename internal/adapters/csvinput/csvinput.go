// Package csvinput turns uploaded CSV files into batch items.
//
// Tabular files carry a header row naming the features, one observation per
// row. Flux files carry no header and one brightness series per row. A UTF-8
// or UTF-16 byte order mark is accepted, and lines starting with '#' are
// skipped as in the archive's KOI exports.
package csvinput

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/okian/exodetect/internal/domain/model"
	"github.com/okian/exodetect/internal/domain/prediction"
)

// Sentinel errors.
var (
	ErrEmpty     = errors.New("csv has no data rows")
	ErrMalformed = errors.New("malformed csv")
)

// Read parses r according to kind.
func Read(r io.Reader, kind model.Kind) ([]map[string]any, error) {
	if kind == model.KindSequence {
		return ReadFlux(r)
	}
	return ReadFeatures(r)
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return cr
}

// ReadFeatures parses a tabular CSV. Numeric cells become float64, empty
// cells become nil (a missing reading) and anything else is kept as text so
// validation can name the offending feature.
func ReadFeatures(r io.Reader) ([]map[string]any, error) {
	cr := newReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrMalformed, err)
	}
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(h)
		if names[i] == "" {
			return nil, fmt.Errorf("%w: header column %d is empty", ErrMalformed, i+1)
		}
	}

	var rows []map[string]any
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		row := make(map[string]any, len(names))
		for i, cell := range rec {
			row[names[i]] = cellValue(cell)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return rows, nil
}

func cellValue(cell string) any {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		return v
	}
	return cell
}

// ReadFlux parses a headerless flux CSV. Rows may differ in length; the
// validator reports series of the wrong width.
func ReadFlux(r io.Reader) ([]map[string]any, error) {
	cr := newReader(r)
	cr.FieldsPerRecord = -1

	var rows []map[string]any
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		series := make([]float64, len(rec))
		for i, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %d: %q is not a number", ErrMalformed, line, i+1, cell)
			}
			series[i] = v
		}
		rows = append(rows, map[string]any{prediction.FluxKey: series})
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return rows, nil
}
