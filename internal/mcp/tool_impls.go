package mcp

import (
	"context"

	"fluxmcp/internal/envelope"
	"fluxmcp/internal/model"
)

// toolListContainers implements the list_buckets_or_dbs tool
func (s *Server) toolListContainers(params map[string]interface{}) (*envelope.Response, error) {
	ctx := context.Background()

	var containers []model.Container
	err := s.call("list_buckets_or_dbs", func(res *callResult) error {
		var err error
		containers, err = s.engine.ListContainers(ctx)
		res.rows = len(containers)
		return err
	})
	if err != nil {
		return nil, err
	}

	return envelope.New().
		Data(map[string]interface{}{
			"containers": containers,
			"count":      len(containers),
		}).
		Dialect(s.dialectName(ctx)).
		Build(), nil
}

// toolListMeasurements implements the list_measurements tool
func (s *Server) toolListMeasurements(params map[string]interface{}) (*envelope.Response, error) {
	ctx := context.Background()
	target := stringParam(params, "target")

	var measurements []string
	err := s.call("list_measurements", func(res *callResult) error {
		var err error
		measurements, err = s.engine.ListMeasurements(ctx, target)
		res.rows = len(measurements)
		return err
	})
	if err != nil {
		return nil, err
	}

	return envelope.New().
		Data(map[string]interface{}{
			"measurements": measurements,
			"count":        len(measurements),
		}).
		Dialect(s.dialectName(ctx)).
		Build(), nil
}

// toolListFields implements the list_fields tool
func (s *Server) toolListFields(params map[string]interface{}) (*envelope.Response, error) {
	ctx := context.Background()
	target := stringParam(params, "target")
	measurement := stringParam(params, "measurement")

	var fields []model.Field
	err := s.call("list_fields", func(res *callResult) error {
		var err error
		fields, err = s.engine.ListFields(ctx, target, measurement)
		res.rows = len(fields)
		return err
	})
	if err != nil {
		return nil, err
	}

	return envelope.New().
		Data(map[string]interface{}{
			"fields": fields,
			"count":  len(fields),
		}).
		Dialect(s.dialectName(ctx)).
		Build(), nil
}

// toolListTags implements the list_tags tool
func (s *Server) toolListTags(params map[string]interface{}) (*envelope.Response, error) {
	ctx := context.Background()
	target := stringParam(params, "target")
	measurement := stringParam(params, "measurement")

	var tags []model.Tag
	err := s.call("list_tags", func(res *callResult) error {
		var err error
		tags, err = s.engine.ListTags(ctx, target, measurement)
		res.rows = len(tags)
		return err
	})
	if err != nil {
		return nil, err
	}

	return envelope.New().
		Data(map[string]interface{}{
			"tags":  tags,
			"count": len(tags),
		}).
		Dialect(s.dialectName(ctx)).
		Build(), nil
}

// toolLastPoint implements the last_point tool
func (s *Server) toolLastPoint(params map[string]interface{}) (*envelope.Response, error) {
	ctx := context.Background()

	q, err := queryFromParams(params)
	if err != nil {
		return nil, err
	}

	var point *model.Point
	err = s.call("last_point", func(res *callResult) error {
		var err error
		point, err = s.engine.LastPoint(ctx, q)
		if point != nil {
			res.rows = 1
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return envelope.New().
		Data(point).
		Dialect(s.dialectName(ctx)).
		Build(), nil
}

// toolQueryTimeseries implements the query_timeseries tool
func (s *Server) toolQueryTimeseries(params map[string]interface{}) (*envelope.Response, error) {
	ctx := context.Background()

	q, err := queryFromParams(params)
	if err != nil {
		return nil, err
	}

	var series *model.Series
	var truncated bool
	err = s.call("query_timeseries", func(res *callResult) error {
		var err error
		series, err = s.engine.QueryTimeseries(ctx, q)
		if series != nil {
			res.rows = series.Stats.PointsReturned
			truncated = series.Stats.PointsReturned >= q.EffectiveLimit(s.engine.RowCeiling())
			res.truncated = truncated
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	b := envelope.New().
		Data(series).
		Dialect(s.dialectName(ctx)).
		WithTruncation(truncated, series.Stats.PointsReturned, "max-rows")
	if truncated {
		b.WarningWithCode("max-rows", "result was capped at the row limit; narrow the time range or downsample with every+aggregate")
	}
	return b.Build(), nil
}

// toolWindowStats implements the window_stats tool
func (s *Server) toolWindowStats(params map[string]interface{}) (*envelope.Response, error) {
	ctx := context.Background()

	q, err := queryFromParams(params)
	if err != nil {
		return nil, err
	}

	var stats interface{}
	err = s.call("window_stats", func(res *callResult) error {
		ws, err := s.engine.ComputeWindowStats(ctx, q)
		if ws != nil {
			res.rows = ws.Count
			stats = ws
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return envelope.New().
		Data(stats).
		Dialect(s.dialectName(ctx)).
		Build(), nil
}

// toolGetQueryMetrics implements the get_query_metrics tool
func (s *Server) toolGetQueryMetrics(params map[string]interface{}) (*envelope.Response, error) {
	aggregates, err := s.metrics.Aggregates()
	if err != nil {
		return nil, err
	}
	return envelope.Operational(map[string]interface{}{
		"tools":   aggregates,
		"enabled": s.metrics != nil,
	}), nil
}
