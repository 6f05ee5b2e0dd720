package model

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"fluxmcp/internal/errors"
)

// relativeRe matches signed duration expressions like -15m, -24h, -7d.
// The strict shape doubles as the injection guard for relative bounds that
// builders splice into query text verbatim.
var relativeRe = regexp.MustCompile(`^-(\d+)([smhdw])$`)

// intervalRe matches unsigned downsample intervals like 5m or 1h.
var intervalRe = regexp.MustCompile(`^(\d+)([smhdw])$`)

var unitDurations = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

// absoluteLayouts are the accepted absolute-instant encodings, most specific
// first. Layouts without a zone are interpreted as UTC.
var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// IsRelative reports whether expr is a signed relative duration.
func IsRelative(expr string) bool {
	return relativeRe.MatchString(expr)
}

// IsNow reports whether expr means the current instant.
func IsNow(expr string) bool {
	s := strings.ToLower(strings.TrimSpace(expr))
	return s == "now" || s == "now()"
}

// IsTimeExpression reports whether expr parses as a time bound.
func IsTimeExpression(expr string) bool {
	_, err := ParseTimeExpression(expr, time.Time{}, time.Now().UTC())
	return err == nil
}

// ParseTimeExpression resolves a time bound to an absolute UTC instant.
// Relative expressions are applied against relativeTo when non-zero,
// otherwise against now. This matches the range semantics where a relative
// start is anchored at the resolved stop.
func ParseTimeExpression(expr string, relativeTo, now time.Time) (time.Time, error) {
	if IsNow(expr) {
		return now, nil
	}

	if m := relativeRe.FindStringSubmatch(expr); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, errors.Newf(errors.InvalidQueryInput, "invalid duration %q", expr)
		}
		base := now
		if !relativeTo.IsZero() {
			base = relativeTo
		}
		return base.Add(-time.Duration(n) * unitDurations[m[2]]), nil
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, expr); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, errors.Newf(errors.InvalidQueryInput,
		"invalid time %q: must be RFC 3339 or relative (e.g. -7d)", expr)
}

// ParseInterval parses a downsample interval like 5m into a duration.
func ParseInterval(expr string) (time.Duration, error) {
	m := intervalRe.FindStringSubmatch(expr)
	if m == nil {
		return 0, errors.Newf(errors.InvalidQueryInput, "invalid interval %q: expected <n><unit> (e.g. 5m, 1h)", expr)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n == 0 {
		return 0, errors.Newf(errors.InvalidQueryInput, "invalid interval %q", expr)
	}
	return time.Duration(n) * unitDurations[m[2]], nil
}

// TimeRange resolves the model's start/stop expressions to absolute UTC
// instants. Stop resolves first (defaulting to now), then start resolves
// relative to the stop (defaulting to the bounded lookback).
func (q *Query) TimeRange(now time.Time) (start, stop time.Time, err error) {
	stopExpr := q.Stop
	if stopExpr == "" {
		stopExpr = "now"
	}
	stop, err = ParseTimeExpression(stopExpr, time.Time{}, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	startExpr := q.Start
	if startExpr == "" {
		startExpr = DefaultStart
	}
	start, err = ParseTimeExpression(startExpr, stop, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	if !start.Before(stop) {
		return time.Time{}, time.Time{}, errors.Newf(errors.InvalidQueryInput,
			"start %s is not before stop %s", start.Format(time.RFC3339), stop.Format(time.RFC3339))
	}

	return start, stop, nil
}
