// Package dialect renders abstract query models into concrete query text and
// normalizes each backend's raw responses into the canonical result shapes.
// The two dialects are InfluxQL (v1, SQL-like) and Flux (v2, pipeline-style).
// Builders and normalizers are pure with respect to a request: they never
// execute anything and never see credentials.
package dialect

import (
	"time"

	"fluxmcp/internal/model"
)

// Dialect identifies which query language a backend speaks.
type Dialect int

const (
	// Unknown means detection has not resolved yet.
	Unknown Dialect = iota
	// InfluxQL is the v1 SQL-like dialect.
	InfluxQL
	// Flux is the v2 pipeline dialect.
	Flux
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case InfluxQL:
		return "influxql"
	case Flux:
		return "flux"
	default:
		return "unknown"
	}
}

// BuiltQuery is a rendered query plus the effective time bounds the builder
// computed for it. Normalizers fill result stats from these bounds rather
// than trusting the backend, which may not report them.
type BuiltQuery struct {
	Text           string
	StartEffective time.Time
	StopEffective  time.Time
}

// Builder renders the abstract query model into one dialect's query text.
type Builder interface {
	// ListContainers lists buckets (Flux) or databases (InfluxQL).
	ListContainers() string
	// ListMeasurements lists series names in a container. InfluxQL carries
	// the database out-of-band as an execution parameter, Flux in the text.
	ListMeasurements(target string) (string, error)
	// ListFields lists field keys of a measurement.
	ListFields(target, measurement string) (string, error)
	// ListTagKeys lists tag keys of a measurement.
	ListTagKeys(target, measurement string) (string, error)
	// ListTagValues lists observed values of one tag key.
	ListTagValues(target, measurement, key string) (string, error)
	// SeriesQuery renders a time-series query with optional windowed
	// aggregation. now anchors relative time expressions.
	SeriesQuery(q *model.Query, now time.Time) (*BuiltQuery, error)
	// LastPoint renders a single most-recent-row query ordered by time
	// descending, field-filtered when the model names a field.
	LastPoint(q *model.Query) (string, error)
}
