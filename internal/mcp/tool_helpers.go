package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fluxmcp/internal/errors"
	"fluxmcp/internal/model"
	"fluxmcp/internal/storage"
)

func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func intParam(params map[string]interface{}, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, nil
	}
	// JSON numbers decode as float64.
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, errors.Newf(errors.InvalidQueryInput, "parameter %q must be a number", key)
	}
}

func tagsParam(params map[string]interface{}) (map[string]string, error) {
	v, ok := params["tags"]
	if !ok {
		return nil, nil
	}
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.InvalidQueryInput, "parameter \"tags\" must be an object of string values")
	}
	tags := make(map[string]string, len(raw))
	for k, val := range raw {
		s, ok := val.(string)
		if !ok {
			return nil, errors.Newf(errors.InvalidQueryInput, "tag %q must have a string value", k)
		}
		tags[k] = s
	}
	return tags, nil
}

// queryFromParams builds the abstract query model from tool-call arguments.
func queryFromParams(params map[string]interface{}) (*model.Query, error) {
	tags, err := tagsParam(params)
	if err != nil {
		return nil, err
	}
	limit, err := intParam(params, "limit")
	if err != nil {
		return nil, err
	}
	return &model.Query{
		Target:      stringParam(params, "target"),
		Measurement: stringParam(params, "measurement"),
		Field:       stringParam(params, "field"),
		Tags:        tags,
		Start:       stringParam(params, "start"),
		Stop:        stringParam(params, "stop"),
		Every:       stringParam(params, "every"),
		Aggregate:   stringParam(params, "aggregate"),
		Fill:        stringParam(params, "fill"),
		Limit:       limit,
	}, nil
}

// call runs one tool invocation: it assigns a correlation id, times the
// handler, records the per-tool metrics, and logs the outcome. rows and
// truncated are reported by the handler through the result callback.
type callResult struct {
	rows      int
	truncated bool
}

func (s *Server) call(tool string, fn func(res *callResult) error) error {
	callID := uuid.NewString()
	start := time.Now()

	var res callResult
	err := fn(&res)

	elapsed := time.Since(start)
	code := ""
	if err != nil {
		code = string(errors.CodeOf(err))
		s.logger.Warn("tool call failed", "tool", tool, "call_id", callID, "code", code, "duration", elapsed)
	} else {
		s.logger.Debug("tool call completed", "tool", tool, "call_id", callID, "rows", res.rows, "duration", elapsed)
	}

	s.metrics.RecordInvocation(storage.Invocation{
		Tool:      tool,
		Duration:  elapsed,
		Rows:      res.rows,
		Truncated: res.truncated,
		ErrorCode: code,
	})
	return err
}

// dialectName resolves the backend dialect for envelope metadata. Failures
// are tolerated: the envelope simply omits the dialect.
func (s *Server) dialectName(ctx context.Context) string {
	d, err := s.engine.Dialect(ctx)
	if err != nil {
		return ""
	}
	return d.String()
}
