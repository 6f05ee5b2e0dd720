package dialect

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"fluxmcp/internal/errors"
	"fluxmcp/internal/model"
)

// The v2 wire format is annotated CSV: optional #datatype/#group/#default
// annotation rows, a header row, then data rows, with an empty line between
// result tables. Columns are addressed by name; the value column is the
// reserved "_value", the timestamp "_time".

// fluxRecord is one data row with its column metadata.
type fluxRecord struct {
	values    map[string]string
	datatypes map[string]string
}

func (r fluxRecord) get(col string) string {
	return r.values[col]
}

// typedValue converts a column according to its annotated datatype. Empty
// cells are null and yield nil.
func (r fluxRecord) typedValue(col string) interface{} {
	s, ok := r.values[col]
	if !ok || s == "" {
		return nil
	}
	switch r.datatypes[col] {
	case "double":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "long":
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	case "unsignedLong":
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u
		}
	case "boolean":
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return s
}

func (r fluxRecord) timeValue(col string) (time.Time, error) {
	s := r.get(col)
	if s == "" {
		return time.Time{}, errors.Newf(errors.BackendQueryError, "missing %s column in response", col)
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrap(errors.BackendQueryError, "unparseable timestamp in response", err)
	}
	return ts.UTC(), nil
}

// forEachFluxRecord streams annotated CSV, invoking fn per data row. fn
// returns false to stop early (ceiling reached).
func forEachFluxRecord(r io.Reader, fn func(rec fluxRecord) (bool, error)) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	// Annotation rows start with '#'; csv must not treat them as comments.
	cr.Comment = 0

	var header []string
	var rawTypes []string
	var datatypes map[string]string

	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(errors.BackendQueryError, "malformed CSV response", err)
		}

		// Blank separator between tables: the next non-blank row is a new
		// header (or new annotations).
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			header = nil
			rawTypes = nil
			datatypes = nil
			continue
		}

		if strings.HasPrefix(row[0], "#") {
			if row[0] == "#datatype" {
				rawTypes = row
				header = nil
			}
			continue
		}

		if header == nil {
			header = row
			datatypes = map[string]string{}
			for i, col := range header {
				if i < len(rawTypes) {
					datatypes[col] = normalizeFluxDatatype(rawTypes[i])
				}
			}
			continue
		}

		rec := fluxRecord{values: map[string]string{}, datatypes: datatypes}
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(row) {
				rec.values[col] = row[i]
			}
		}

		cont, err := fn(rec)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

// normalizeFluxDatatype strips parameterized forms like dateTime:RFC3339.
func normalizeFluxDatatype(dt string) string {
	if i := strings.Index(dt, ":"); i >= 0 {
		return dt[:i]
	}
	return dt
}

// ValuesFromFluxCSV collects the _value column across all tables. Used for
// the schema.* listings, which yield one name per row.
func ValuesFromFluxCSV(r io.Reader) ([]string, error) {
	values := []string{}
	err := forEachFluxRecord(r, func(rec fluxRecord) (bool, error) {
		if v := rec.get("_value"); v != "" {
			values = append(values, v)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// ContainersFromFluxCSV parses buckets() output into container listings.
func ContainersFromFluxCSV(r io.Reader) ([]model.Container, error) {
	containers := []model.Container{}
	err := forEachFluxRecord(r, func(rec fluxRecord) (bool, error) {
		name := rec.get("name")
		if name == "" {
			return true, nil
		}
		c := model.Container{Name: name, Kind: model.KindBucket}
		if rp := rec.get("retentionPolicy"); rp != "" {
			c.RetentionPolicy = rp
		}
		containers = append(containers, c)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return containers, nil
}

// SeriesFromFluxCSV normalizes a series query response. Null values are
// dropped; reading stops once the ceiling is reached.
func SeriesFromFluxCSV(r io.Reader, built *BuiltQuery, q *model.Query, ceiling int) (*model.Series, error) {
	points := []model.SeriesPoint{}
	err := forEachFluxRecord(r, func(rec fluxRecord) (bool, error) {
		v := rec.typedValue("_value")
		if v == nil {
			return true, nil
		}
		ts, err := rec.timeValue("_time")
		if err != nil {
			return false, err
		}
		points = append(points, model.SeriesPoint{Time: ts, Value: v})
		return len(points) < ceiling, nil
	})
	if err != nil {
		return nil, err
	}

	return &model.Series{
		Points: points,
		Stats: model.Stats{
			PointsReturned:     len(points),
			StartEffective:     built.StartEffective,
			StopEffective:      built.StopEffective,
			AggregateFunction:  q.Aggregate,
			DownsampleInterval: q.Every,
		},
	}, nil
}

// fluxInternalColumns are the bookkeeping columns that are never tags.
var fluxInternalColumns = map[string]bool{
	"result": true,
	"table":  true,
}

// PointFromFluxCSV normalizes a last-point response: the first record with a
// value wins (last() may emit one table per matching series).
func PointFromFluxCSV(r io.Reader, q *model.Query) (*model.Point, error) {
	var point *model.Point
	err := forEachFluxRecord(r, func(rec fluxRecord) (bool, error) {
		v := rec.typedValue("_value")
		if v == nil {
			return true, nil
		}
		ts, err := rec.timeValue("_time")
		if err != nil {
			return false, err
		}

		tags := map[string]string{}
		for col, val := range rec.values {
			if col == "" || val == "" || fluxInternalColumns[col] || strings.HasPrefix(col, "_") {
				continue
			}
			tags[col] = val
		}

		point = &model.Point{
			Time:  ts,
			Value: v,
			Field: rec.get("_field"),
			Tags:  tags,
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if point == nil {
		return nil, errors.New(errors.BackendQueryError, "no data found for the specified series")
	}
	return point, nil
}
