// Package model defines the version-agnostic query description and the
// canonical result shapes shared by both backend dialects. A Query is built
// once, validated before any query text is rendered, and never mutated
// afterwards; builders and normalizers only read it.
package model

import (
	"strings"

	"fluxmcp/internal/errors"
)

// Aggregates is the whitelist of supported aggregation functions.
// Both dialects support every entry (InfluxQL spells mean/median natively,
// Flux maps them onto its builtin functions of the same name).
var Aggregates = map[string]bool{
	"mean":   true,
	"max":    true,
	"min":    true,
	"sum":    true,
	"count":  true,
	"median": true,
	"spread": true,
	"last":   true,
	"first":  true,
}

// Fills is the whitelist of supported fill strategies for windowed
// aggregation. "none" drops empty windows, "previous" carries the last
// observed value forward, "linear" interpolates between neighbors.
var Fills = map[string]bool{
	"none":     true,
	"previous": true,
	"linear":   true,
}

// Query is the abstract, dialect-independent description of a request.
// Target names a bucket (v2) or database (v1, optionally "db/rp").
type Query struct {
	Target      string
	Measurement string
	Field       string
	Tags        map[string]string
	Start       string // time expression; defaults to -1h
	Stop        string // time expression; defaults to now
	Every       string // downsample interval, requires Aggregate
	Aggregate   string
	Fill        string // null-fill strategy for windowed aggregation
	Limit       int    // client-requested cap, clamped to the configured ceiling
}

// DefaultStart is the lookback applied when Start is omitted.
const DefaultStart = "-1h"

// Validate checks the model's internal consistency. It performs no network
// access; validation failures are never retried.
func (q *Query) Validate() error {
	if err := q.ValidateTarget(); err != nil {
		return err
	}
	return q.ValidateFields()
}

// ValidateTarget checks that a target is present. It is split from the field
// checks because the target may still be defaulted from configuration once
// the backend dialect is known; everything else must be rejected before any
// network access happens.
func (q *Query) ValidateTarget() error {
	if strings.TrimSpace(q.Target) == "" {
		return errors.New(errors.InvalidQueryInput, "target (bucket or database) is required")
	}
	return nil
}

// ValidateFields checks every field of the model except the target.
func (q *Query) ValidateFields() error {
	if q.Limit < 0 {
		return errors.New(errors.InvalidQueryInput, "limit must not be negative")
	}

	for k := range q.Tags {
		if k == "" {
			return errors.New(errors.InvalidQueryInput, "tag keys must be non-empty")
		}
	}

	if q.Every != "" && q.Aggregate == "" {
		return errors.New(errors.InvalidQueryInput, "every requires an aggregate function")
	}
	if q.Aggregate != "" && q.Every == "" {
		return errors.New(errors.InvalidQueryInput, "aggregate requires a downsample interval (every)")
	}
	if q.Aggregate != "" && !Aggregates[q.Aggregate] {
		return errors.Newf(errors.InvalidQueryInput, "aggregate %q is not supported", q.Aggregate)
	}
	if q.Every != "" {
		if _, err := ParseInterval(q.Every); err != nil {
			return err
		}
	}
	if q.Fill != "" {
		if q.Every == "" {
			return errors.New(errors.InvalidQueryInput, "fill requires a downsample window (every and aggregate)")
		}
		if !Fills[q.Fill] {
			return errors.Newf(errors.InvalidQueryInput, "fill %q is not supported", q.Fill)
		}
	}

	if q.Start != "" {
		if !IsTimeExpression(q.Start) {
			return errors.Newf(errors.InvalidQueryInput, "invalid start time %q: must be RFC 3339 or relative (e.g. -7d)", q.Start)
		}
	}
	if q.Stop != "" {
		if !IsTimeExpression(q.Stop) {
			return errors.Newf(errors.InvalidQueryInput, "invalid stop time %q: must be RFC 3339 or relative (e.g. -1h)", q.Stop)
		}
	}

	return nil
}

// ValidateSeries checks the model for a time-series query, which additionally
// requires a measurement and a field.
func (q *Query) ValidateSeries() error {
	if err := q.ValidateTarget(); err != nil {
		return err
	}
	return q.ValidateSeriesFields()
}

// ValidateSeriesFields checks a time-series model's fields except the target.
func (q *Query) ValidateSeriesFields() error {
	if err := q.ValidateFields(); err != nil {
		return err
	}
	if strings.TrimSpace(q.Measurement) == "" {
		return errors.New(errors.InvalidQueryInput, "measurement is required")
	}
	if strings.TrimSpace(q.Field) == "" {
		return errors.New(errors.InvalidQueryInput, "field is required for time-series queries")
	}
	return nil
}

// ValidateLastPoint checks the model for a last-point query. Field is
// optional; when absent the most recent field wins.
func (q *Query) ValidateLastPoint() error {
	if err := q.ValidateTarget(); err != nil {
		return err
	}
	return q.ValidateLastPointFields()
}

// ValidateLastPointFields checks a last-point model's fields except the target.
func (q *Query) ValidateLastPointFields() error {
	if err := q.ValidateFields(); err != nil {
		return err
	}
	if strings.TrimSpace(q.Measurement) == "" {
		return errors.New(errors.InvalidQueryInput, "measurement is required")
	}
	return nil
}

// EffectiveLimit clamps the client-requested limit to the hard ceiling.
// A zero limit means "no client preference" and yields the ceiling itself.
func (q *Query) EffectiveLimit(ceiling int) int {
	if q.Limit <= 0 || q.Limit > ceiling {
		return ceiling
	}
	return q.Limit
}

// SplitTarget splits a v1 "db/rp" target into database and retention policy.
// A bare name yields an empty retention policy.
func SplitTarget(target string) (db, rp string) {
	if i := strings.Index(target, "/"); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}
