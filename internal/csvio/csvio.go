// Package csvio reads price series and writes indicator series as CSV.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/smaq/smaq/internal/model"
)

// DefaultIndicatorHeader is the output column name when no engine is named.
const DefaultIndicatorHeader = "SMA"

// IndicatorHeader returns the output column name for the named engine.
func IndicatorHeader(engine string) string {
	engine = strings.TrimSpace(engine)
	if engine == "" {
		return DefaultIndicatorHeader
	}
	return strings.ToUpper(engine)
}

var (
	// ErrNoRecords is returned when the input has a header but no data rows.
	ErrNoRecords = errors.New("no price records")

	// ErrMissingColumn is returned when a required column is absent from the header.
	ErrMissingColumn = errors.New("missing column")
)

var requiredColumns = []string{"open", "high", "low", "close"}

// ReadPricePoints parses a CSV document with a header row. The open, high,
// low and close columns are matched case-insensitively in any order; other
// columns are ignored.
func ReadPricePoints(r io.Reader) ([]model.PricePoint, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoRecords
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	cols := make([]int, len(requiredColumns))
	for i, name := range requiredColumns {
		pos, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		cols[i] = pos
	}

	var points []model.PricePoint
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		line, _ := cr.FieldPos(0)

		var vals [4]float64
		for i, pos := range cols {
			if pos >= len(rec) {
				return nil, fmt.Errorf("line %d: missing %s value", line, requiredColumns[i])
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[pos]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse %s: %w", line, requiredColumns[i], err)
			}
			vals[i] = v
		}
		points = append(points, model.PricePoint{
			Open:  vals[0],
			High:  vals[1],
			Low:   vals[2],
			Close: vals[3],
		})
	}

	if len(points) == 0 {
		return nil, ErrNoRecords
	}
	return points, nil
}

// WriteIndicator writes values under a single column named after engine.
func WriteIndicator(w io.Writer, engine string, values []float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{IndicatorHeader(engine)}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, 1)
	for _, v := range values {
		row[0] = strconv.FormatFloat(v, 'g', -1, 32)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write value: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// EncodeIndicator renders values as a CSV document.
func EncodeIndicator(engine string, values []float64) ([]byte, error) {
	var sb strings.Builder
	if err := WriteIndicator(&sb, engine, values); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}
