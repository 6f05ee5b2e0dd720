package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"fluxmcp/internal/envelope"
	"fluxmcp/internal/resource"
)

// ResourceTemplate represents a dynamic resource with URI template
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Resource represents a static resource
type Resource struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// GetResourceDefinitions returns static resources and resource templates
func (s *Server) GetResourceDefinitions() ([]Resource, []ResourceTemplate) {
	templates := []ResourceTemplate{
		{
			URITemplate: "influxdb://{target}/{measurement}",
			Name:        "Time series",
			Description: "A series addressed by bucket/database and measurement. Query parameters: field, start, stop, every, aggregate, limit, tag.{key}.",
			MimeType:    "application/json",
		},
	}
	return []Resource{}, templates
}

// handleReadResource reads an influxdb:// resource: the URI is parsed into
// a series query and executed like a query_timeseries call.
func (s *Server) handleReadResource(params map[string]interface{}) (interface{}, error) {
	uri, ok := params["uri"].(string)
	if !ok {
		return nil, fmt.Errorf("resources/read names no uri")
	}

	s.logger.Info("reading resource", "uri", uri)
	ctx := context.Background()

	q, err := resource.Parse(uri)
	if err != nil {
		return nil, err
	}

	var resp *envelope.Response
	err = s.call("resources/read", func(res *callResult) error {
		series, err := s.engine.QueryTimeseries(ctx, q)
		if err != nil {
			return err
		}
		res.rows = series.Stats.PointsReturned
		resp = envelope.New().
			Data(series).
			Dialect(s.dialectName(ctx)).
			Build()
		return nil
	})
	if err != nil {
		return nil, err
	}

	jsonBytes, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshaling resource response: %w", err)
	}

	return map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"uri":      uri,
				"mimeType": "application/json",
				"text":     string(jsonBytes),
			},
		},
	}, nil
}
