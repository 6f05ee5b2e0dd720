// Package resource maps influxdb:// resource URIs onto query models. The
// URI form addresses a series directly:
//
//	influxdb://{target}/{measurement}?field=...&start=...&tag.{key}=...
//
// A target containing a retention policy keeps the slash, so a URI may carry
// one or two path segments after the host.
package resource

import (
	"net/url"
	"strconv"
	"strings"

	"fluxmcp/internal/errors"
	"fluxmcp/internal/model"
)

// Scheme is the URI scheme served by the resource endpoints.
const Scheme = "influxdb"

// Parse converts a resource URI into a validated series query.
func Parse(raw string) (*model.Query, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(errors.InvalidResourceURI, "unparseable resource URI", err)
	}
	if u.Scheme != Scheme {
		return nil, errors.Newf(errors.InvalidResourceURI, "unsupported scheme %q, expected %q", u.Scheme, Scheme)
	}
	if u.Host == "" {
		return nil, errors.New(errors.InvalidResourceURI, "resource URI names no target")
	}

	segments := splitPath(u.Path)
	q := &model.Query{Target: u.Host}
	switch len(segments) {
	case 1:
		q.Measurement = segments[0]
	case 2:
		// influxdb://db/rp/measurement: the first segment is the
		// retention policy of a v1 target.
		q.Target = u.Host + "/" + segments[0]
		q.Measurement = segments[1]
	default:
		return nil, errors.Newf(errors.InvalidResourceURI,
			"resource URI path must be /{measurement} or /{rp}/{measurement}, got %q", u.Path)
	}

	if err := applyParams(q, u.Query()); err != nil {
		return nil, err
	}

	if err := q.ValidateSeries(); err != nil {
		return nil, errors.Wrap(errors.InvalidResourceURI, "invalid resource URI parameters", err)
	}
	return q, nil
}

func splitPath(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// applyParams fills the query from URI parameters. Unknown parameters are
// ignored; duplicate values use the last occurrence. tag.{key} parameters
// become tag equality filters.
func applyParams(q *model.Query, params url.Values) error {
	for key, vals := range params {
		if len(vals) == 0 {
			continue
		}
		val := vals[len(vals)-1]

		if k, ok := strings.CutPrefix(key, "tag."); ok {
			if k == "" {
				return errors.New(errors.InvalidResourceURI, "tag parameter names no key")
			}
			if q.Tags == nil {
				q.Tags = map[string]string{}
			}
			q.Tags[k] = val
			continue
		}

		switch key {
		case "field":
			q.Field = val
		case "start":
			q.Start = val
		case "stop":
			q.Stop = val
		case "every":
			q.Every = val
		case "aggregate":
			q.Aggregate = val
		case "fill":
			q.Fill = val
		case "limit":
			n, err := strconv.Atoi(val)
			if err != nil {
				return errors.Newf(errors.InvalidResourceURI, "limit %q is not a number", val)
			}
			q.Limit = n
		}
	}
	return nil
}
