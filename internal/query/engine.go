// Package query orchestrates the version-abstracted operations: it resolves
// the backend dialect, renders the dialect-specific query text, executes it,
// and normalizes the response into the canonical result shapes.
package query

import (
	"context"
	"log/slog"
	"time"

	"fluxmcp/internal/config"
	"fluxmcp/internal/dialect"
	"fluxmcp/internal/errors"
	"fluxmcp/internal/influx"
	"fluxmcp/internal/model"
)

// tagValueSample caps how many values are listed per tag key.
const tagValueSample = 100

// Engine executes abstract queries against whichever backend is configured.
type Engine struct {
	cfg    *config.Config
	det    *influx.Detector
	v1     *influx.V1Client
	v2     *influx.V2Client
	logger *slog.Logger

	influxql dialect.InfluxQLBuilder
	flux     dialect.FluxBuilder
}

func NewEngine(cfg *config.Config, det *influx.Detector, v1 *influx.V1Client, v2 *influx.V2Client, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, det: det, v1: v1, v2: v2, logger: logger}
}

// NewEngineFromConfig wires the clients and detector from configuration.
func NewEngineFromConfig(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	v1, err := influx.NewV1Client(cfg, logger)
	if err != nil {
		return nil, err
	}
	v2 := influx.NewV2Client(cfg, logger)
	det := influx.NewDetector(cfg, v1, v2, logger)
	return NewEngine(cfg, det, v1, v2, logger), nil
}

// Dialect resolves the backend dialect, probing on first use.
func (e *Engine) Dialect(ctx context.Context) (dialect.Dialect, error) {
	return e.det.Resolve(ctx)
}

// RowCeiling reports the configured hard cap on returned rows.
func (e *Engine) RowCeiling() int {
	return e.cfg.MaxRows
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.RequestTimeout())
}

// defaultTarget substitutes the configured default when no target is given.
func (e *Engine) defaultTarget(d dialect.Dialect, target string) string {
	if target != "" {
		return target
	}
	if d == dialect.Flux {
		return e.cfg.DefaultBucket
	}
	t := e.cfg.DefaultDB
	if t != "" && e.cfg.DefaultRP != "" {
		t += "/" + e.cfg.DefaultRP
	}
	return t
}

// ListContainers lists buckets (v2) or databases with their retention
// policies (v1).
func (e *Engine) ListContainers(ctx context.Context) ([]model.Container, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	d, err := e.Dialect(ctx)
	if err != nil {
		return nil, err
	}

	if d == dialect.Flux {
		body, err := e.v2.Query(ctx, e.flux.ListContainers())
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return dialect.ContainersFromFluxCSV(body)
	}

	results, err := e.v1.Query(ctx, "", e.influxql.ListContainers())
	if err != nil {
		return nil, err
	}

	containers := []model.Container{}
	for _, db := range dialect.StringsFromResults(results, "name") {
		policies, err := e.listRetentionPolicies(ctx, db)
		if err != nil {
			// Listing the database is still useful without its policies.
			e.logger.Warn("listing retention policies failed", "database", db, "error", err)
			containers = append(containers, model.Container{Name: db, Kind: model.KindDatabase})
			continue
		}
		if len(policies) == 0 {
			containers = append(containers, model.Container{Name: db, Kind: model.KindDatabase})
			continue
		}
		for _, rp := range policies {
			containers = append(containers, model.Container{
				Name:            db + "/" + rp.Name,
				Kind:            model.KindDatabase,
				RetentionPolicy: rp.Duration,
			})
		}
	}
	return containers, nil
}

func (e *Engine) listRetentionPolicies(ctx context.Context, db string) ([]dialect.RetentionPolicy, error) {
	stmt, err := e.influxql.ListRetentionPolicies(db)
	if err != nil {
		return nil, err
	}
	results, err := e.v1.Query(ctx, db, stmt)
	if err != nil {
		return nil, err
	}
	return dialect.RetentionPoliciesFromResults(results), nil
}

// ListMeasurements lists the measurements of one target.
func (e *Engine) ListMeasurements(ctx context.Context, target string) ([]string, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	d, err := e.Dialect(ctx)
	if err != nil {
		return nil, err
	}
	target = e.defaultTarget(d, target)
	if target == "" {
		return nil, errors.New(errors.InvalidQueryInput, "target (bucket or database) is required")
	}

	if d == dialect.Flux {
		flux, err := e.flux.ListMeasurements(target)
		if err != nil {
			return nil, err
		}
		body, err := e.v2.Query(ctx, flux)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return dialect.ValuesFromFluxCSV(body)
	}

	stmt, err := e.influxql.ListMeasurements(target)
	if err != nil {
		return nil, err
	}
	db, _ := model.SplitTarget(target)
	results, err := e.v1.Query(ctx, db, stmt)
	if err != nil {
		return nil, err
	}
	return dialect.StringsFromResults(results, "name"), nil
}

// ListFields lists the fields of one measurement. Field types are reported
// only by v1; v2 reports the names alone.
func (e *Engine) ListFields(ctx context.Context, target, measurement string) ([]model.Field, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	d, err := e.Dialect(ctx)
	if err != nil {
		return nil, err
	}
	target = e.defaultTarget(d, target)

	if d == dialect.Flux {
		flux, err := e.flux.ListFields(target, measurement)
		if err != nil {
			return nil, err
		}
		body, err := e.v2.Query(ctx, flux)
		if err != nil {
			return nil, err
		}
		defer body.Close()

		names, err := dialect.ValuesFromFluxCSV(body)
		if err != nil {
			return nil, err
		}
		fields := make([]model.Field, 0, len(names))
		for _, n := range names {
			fields = append(fields, model.Field{Name: n})
		}
		return fields, nil
	}

	stmt, err := e.influxql.ListFields(target, measurement)
	if err != nil {
		return nil, err
	}
	db, _ := model.SplitTarget(target)
	results, err := e.v1.Query(ctx, db, stmt)
	if err != nil {
		return nil, err
	}
	return dialect.FieldsFromResults(results), nil
}

// ListTags lists the tag keys of one measurement with a sample of observed
// values per key.
func (e *Engine) ListTags(ctx context.Context, target, measurement string) ([]model.Tag, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	d, err := e.Dialect(ctx)
	if err != nil {
		return nil, err
	}
	target = e.defaultTarget(d, target)

	keys, err := e.listTagKeys(ctx, d, target, measurement)
	if err != nil {
		return nil, err
	}

	tags := make([]model.Tag, 0, len(keys))
	for _, key := range keys {
		values, err := e.listTagValues(ctx, d, target, measurement, key)
		if err != nil {
			return nil, err
		}
		if len(values) > tagValueSample {
			values = values[:tagValueSample]
		}
		tags = append(tags, model.Tag{Key: key, Values: values})
	}
	return tags, nil
}

func (e *Engine) listTagKeys(ctx context.Context, d dialect.Dialect, target, measurement string) ([]string, error) {
	if d == dialect.Flux {
		flux, err := e.flux.ListTagKeys(target, measurement)
		if err != nil {
			return nil, err
		}
		body, err := e.v2.Query(ctx, flux)
		if err != nil {
			return nil, err
		}
		defer body.Close()

		keys, err := dialect.ValuesFromFluxCSV(body)
		if err != nil {
			return nil, err
		}
		// schema.measurementTagKeys reports _start/_stop and friends too.
		filtered := keys[:0]
		for _, k := range keys {
			if len(k) > 0 && k[0] != '_' {
				filtered = append(filtered, k)
			}
		}
		return filtered, nil
	}

	stmt, err := e.influxql.ListTagKeys(target, measurement)
	if err != nil {
		return nil, err
	}
	db, _ := model.SplitTarget(target)
	results, err := e.v1.Query(ctx, db, stmt)
	if err != nil {
		return nil, err
	}
	return dialect.StringsFromResults(results, "tagKey"), nil
}

func (e *Engine) listTagValues(ctx context.Context, d dialect.Dialect, target, measurement, key string) ([]string, error) {
	if d == dialect.Flux {
		flux, err := e.flux.ListTagValues(target, measurement, key)
		if err != nil {
			return nil, err
		}
		body, err := e.v2.Query(ctx, flux)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return dialect.ValuesFromFluxCSV(body)
	}

	stmt, err := e.influxql.ListTagValues(target, measurement, key)
	if err != nil {
		return nil, err
	}
	db, _ := model.SplitTarget(target)
	results, err := e.v1.Query(ctx, db, stmt)
	if err != nil {
		return nil, err
	}
	return dialect.StringsFromResults(results, "value"), nil
}

// QueryTimeseries executes a time-series query. The requested limit is
// clamped to the configured row ceiling before the query text is rendered,
// and the normalized output is truncated to the same ceiling.
func (e *Engine) QueryTimeseries(ctx context.Context, q *model.Query) (*model.Series, error) {
	// The model is immutable once validated; clamping works on a copy.
	// Field validation runs before the dialect probe so an invalid model
	// never causes a network call; only the target check waits for the
	// resolved dialect, which picks the configured default.
	eq := *q
	eq.Limit = q.EffectiveLimit(e.cfg.MaxRows)
	if err := eq.ValidateSeriesFields(); err != nil {
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	d, err := e.Dialect(ctx)
	if err != nil {
		return nil, err
	}
	eq.Target = e.defaultTarget(d, q.Target)
	if err := eq.ValidateTarget(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if d == dialect.Flux {
		built, err := e.flux.SeriesQuery(&eq, now)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("executing series query", "dialect", d.String(), "query", built.Text)
		body, err := e.v2.Query(ctx, built.Text)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return dialect.SeriesFromFluxCSV(body, built, &eq, eq.Limit)
	}

	built, err := e.influxql.SeriesQuery(&eq, now)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("executing series query", "dialect", d.String(), "query", built.Text)
	db, _ := model.SplitTarget(eq.Target)
	results, err := e.v1.Query(ctx, db, built.Text)
	if err != nil {
		return nil, err
	}
	return dialect.SeriesFromResults(results, built, &eq, eq.Limit)
}

// LastPoint returns the most recent point of a series.
func (e *Engine) LastPoint(ctx context.Context, q *model.Query) (*model.Point, error) {
	eq := *q
	if err := eq.ValidateLastPointFields(); err != nil {
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	d, err := e.Dialect(ctx)
	if err != nil {
		return nil, err
	}
	eq.Target = e.defaultTarget(d, q.Target)
	if err := eq.ValidateTarget(); err != nil {
		return nil, err
	}

	if d == dialect.Flux {
		flux, err := e.flux.LastPoint(&eq)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("executing last-point query", "dialect", d.String(), "query", flux)
		body, err := e.v2.Query(ctx, flux)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return dialect.PointFromFluxCSV(body, &eq)
	}

	stmt, err := e.influxql.LastPoint(&eq)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("executing last-point query", "dialect", d.String(), "query", stmt)
	db, _ := model.SplitTarget(eq.Target)
	results, err := e.v1.Query(ctx, db, stmt)
	if err != nil {
		return nil, err
	}
	return dialect.PointFromResults(results, &eq)
}
