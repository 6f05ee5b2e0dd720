package dialect

import (
	"encoding/json"
	"fmt"
	"time"

	client "github.com/influxdata/influxdb/client/v2"
	"github.com/influxdata/influxdb/models"

	"fluxmcp/internal/errors"
	"fluxmcp/internal/model"
)

// The v1 wire format is row-oriented JSON: results -> series -> columns +
// values. Columns are matched by name, never by position, and numbers arrive
// as json.Number because the client decodes with UseNumber.

func rowsFromResults(results []client.Result) []models.Row {
	var rows []models.Row
	for _, res := range results {
		rows = append(rows, res.Series...)
	}
	return rows
}

func columnIndex(row models.Row, name string) int {
	for i, c := range row.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// StringsFromResults collects the named column across all rows. Used for the
// SHOW-style listings (measurements, tag keys, tag values).
func StringsFromResults(results []client.Result, column string) []string {
	names := []string{}
	for _, row := range rowsFromResults(results) {
		idx := columnIndex(row, column)
		if idx < 0 {
			continue
		}
		for _, vals := range row.Values {
			if idx >= len(vals) {
				continue
			}
			if s, ok := vals[idx].(string); ok {
				names = append(names, s)
			}
		}
	}
	return names
}

// FieldsFromResults parses SHOW FIELD KEYS output, which reports both the
// key and its type.
func FieldsFromResults(results []client.Result) []model.Field {
	fields := []model.Field{}
	for _, row := range rowsFromResults(results) {
		keyIdx := columnIndex(row, "fieldKey")
		typeIdx := columnIndex(row, "fieldType")
		if keyIdx < 0 {
			continue
		}
		for _, vals := range row.Values {
			name, ok := vals[keyIdx].(string)
			if !ok {
				continue
			}
			f := model.Field{Name: name}
			if typeIdx >= 0 && typeIdx < len(vals) {
				if t, ok := vals[typeIdx].(string); ok {
					f.Type = t
				}
			}
			fields = append(fields, f)
		}
	}
	return fields
}

// RetentionPolicy is one row of SHOW RETENTION POLICIES output.
type RetentionPolicy struct {
	Name     string
	Duration string
	ReplicaN int64
}

// RetentionPoliciesFromResults parses SHOW RETENTION POLICIES output.
func RetentionPoliciesFromResults(results []client.Result) []RetentionPolicy {
	policies := []RetentionPolicy{}
	for _, row := range rowsFromResults(results) {
		nameIdx := columnIndex(row, "name")
		durIdx := columnIndex(row, "duration")
		replIdx := columnIndex(row, "replicaN")
		if nameIdx < 0 {
			continue
		}
		for _, vals := range row.Values {
			name, ok := vals[nameIdx].(string)
			if !ok {
				continue
			}
			p := RetentionPolicy{Name: name}
			if durIdx >= 0 && durIdx < len(vals) {
				if d, ok := vals[durIdx].(string); ok {
					p.Duration = d
				}
			}
			if replIdx >= 0 && replIdx < len(vals) {
				if n, ok := vals[replIdx].(json.Number); ok {
					p.ReplicaN, _ = n.Int64()
				}
			}
			policies = append(policies, p)
		}
	}
	return policies
}

// SeriesFromResults normalizes a series query response. The value column is
// named after the aggregate when one was applied, after the field otherwise;
// when neither matches, the first non-time column wins (SELECT * shape).
// Null values are dropped and the output is truncated to the ceiling.
func SeriesFromResults(results []client.Result, built *BuiltQuery, q *model.Query, ceiling int) (*model.Series, error) {
	valueCol := q.Field
	if q.Aggregate != "" {
		valueCol = q.Aggregate
	}

	points := []model.SeriesPoint{}
Rows:
	for _, row := range rowsFromResults(results) {
		timeIdx := columnIndex(row, "time")
		if timeIdx < 0 {
			continue
		}
		valIdx := columnIndex(row, valueCol)
		if valIdx < 0 {
			for i := range row.Columns {
				if i != timeIdx {
					valIdx = i
					break
				}
			}
		}
		if valIdx < 0 {
			continue
		}

		for _, vals := range row.Values {
			if len(points) >= ceiling {
				break Rows
			}
			if timeIdx >= len(vals) || valIdx >= len(vals) {
				continue
			}
			if vals[valIdx] == nil {
				continue
			}
			ts, err := parseInfluxQLTime(vals[timeIdx])
			if err != nil {
				return nil, err
			}
			points = append(points, model.SeriesPoint{Time: ts, Value: normalizeScalar(vals[valIdx])})
		}
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

// PointFromResults normalizes a last-point response. With SELECT * the row
// carries every field as a column; the requested field (or the first
// non-time column) is the value and the remaining columns join the series
// tags in the point's tag mapping.
func PointFromResults(results []client.Result, q *model.Query) (*model.Point, error) {
	for _, row := range rowsFromResults(results) {
		if len(row.Values) == 0 {
			continue
		}
		timeIdx := columnIndex(row, "time")
		if timeIdx < 0 {
			continue
		}

		vals := row.Values[0]

		fieldName := q.Field
		fieldIdx := -1
		if fieldName != "" {
			fieldIdx = columnIndex(row, fieldName)
		}
		if fieldIdx < 0 {
			for i, c := range row.Columns {
				if i != timeIdx && i < len(vals) && vals[i] != nil {
					fieldIdx = i
					fieldName = c
					break
				}
			}
		}
		if fieldIdx < 0 || fieldIdx >= len(vals) || vals[fieldIdx] == nil {
			continue
		}

		ts, err := parseInfluxQLTime(vals[timeIdx])
		if err != nil {
			return nil, err
		}

		tags := map[string]string{}
		for k, v := range row.Tags {
			tags[k] = v
		}
		for i, c := range row.Columns {
			if i == timeIdx || i == fieldIdx || i >= len(vals) || vals[i] == nil {
				continue
			}
			tags[c] = fmt.Sprint(normalizeScalar(vals[i]))
		}

		return &model.Point{
			Time:  ts.UTC(),
			Value: normalizeScalar(vals[fieldIdx]),
			Field: fieldName,
			Tags:  tags,
		}, nil
	}

	return nil, errors.New(errors.BackendQueryError, "no data found for the specified series")
}

// parseInfluxQLTime accepts the two encodings v1 emits: RFC 3339 strings
// (the default) and nanosecond epoch numbers (epoch=ns requests).
func parseInfluxQLTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case string:
		ts, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, errors.Wrap(errors.BackendQueryError, "unparseable timestamp in response", err)
		}
		return ts.UTC(), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return time.Time{}, errors.Wrap(errors.BackendQueryError, "unparseable epoch timestamp in response", err)
		}
		return time.Unix(0, n).UTC(), nil
	default:
		return time.Time{}, errors.Newf(errors.BackendQueryError, "unexpected timestamp type %T in response", v)
	}
}

// normalizeScalar converts json.Number into a native scalar so the canonical
// result carries only primitives.
func normalizeScalar(v interface{}) interface{} {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}
