package mcp

import "fluxmcp/internal/envelope"

// Tool represents a query tool exposed via MCP
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolHandler is a function that handles a tool call and returns an envelope response.
type ToolHandler func(params map[string]interface{}) (*envelope.Response, error)

// Shared schema fragments. Every data tool addresses a target (bucket or
// database) and most address a measurement inside it.
func targetProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Bucket (v2) or database (v1, optionally 'db/rp'). Falls back to the configured default.",
	}
}

func measurementProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Measurement name",
	}
}

func tagsProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": map[string]interface{}{"type": "string"},
		"description":          "Tag equality filters, e.g. {\"device_id\": \"xyz-789\"}",
	}
}

func timeRangeProperties() map[string]interface{} {
	return map[string]interface{}{
		"start": map[string]interface{}{
			"type":        "string",
			"description": "Range start: relative ('-1h', '-7d') or RFC 3339. Relative start is anchored at the stop. Default -1h.",
		},
		"stop": map[string]interface{}{
			"type":        "string",
			"description": "Range stop: 'now', relative, or RFC 3339. Default now.",
		},
	}
}

// GetToolDefinitions returns all tool definitions
func (s *Server) GetToolDefinitions() []Tool {
	seriesProps := map[string]interface{}{
		"target":      targetProperty(),
		"measurement": measurementProperty(),
		"field": map[string]interface{}{
			"type":        "string",
			"description": "Field to read",
		},
		"tags": tagsProperty(),
		"every": map[string]interface{}{
			"type":        "string",
			"description": "Downsample interval ('5m', '1h'). Requires aggregate.",
		},
		"aggregate": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"mean", "max", "min", "sum", "count", "median", "spread", "last", "first"},
			"description": "Aggregation function applied per window. Requires every.",
		},
		"fill": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"none", "previous", "linear"},
			"description": "How empty aggregation windows are filled. Requires every+aggregate. Default none.",
		},
		"limit": map[string]interface{}{
			"type":        "integer",
			"description": "Maximum points to return. Clamped to the configured ceiling.",
		},
	}
	for k, v := range timeRangeProperties() {
		seriesProps[k] = v
	}

	statsProps := map[string]interface{}{
		"target":      targetProperty(),
		"measurement": measurementProperty(),
		"field": map[string]interface{}{
			"type":        "string",
			"description": "Field to summarize",
		},
		"tags": tagsProperty(),
	}
	for k, v := range timeRangeProperties() {
		statsProps[k] = v
	}

	return []Tool{
		{
			Name:        "list_buckets_or_dbs",
			Description: "List the buckets (InfluxDB 2.x) or databases with retention policies (1.x) available on the backend",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "list_measurements",
			Description: "List the measurements of a bucket or database",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"target": targetProperty(),
				},
			},
		},
		{
			Name:        "list_fields",
			Description: "List the fields of a measurement (with types on 1.x backends)",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"target":      targetProperty(),
					"measurement": measurementProperty(),
				},
				"required": []string{"measurement"},
			},
		},
		{
			Name:        "list_tags",
			Description: "List the tag keys of a measurement with a sample of observed values per key",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"target":      targetProperty(),
					"measurement": measurementProperty(),
				},
				"required": []string{"measurement"},
			},
		},
		{
			Name:        "last_point",
			Description: "Get the most recent data point of a series, optionally filtered by field and tags",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"target":      targetProperty(),
					"measurement": measurementProperty(),
					"field": map[string]interface{}{
						"type":        "string",
						"description": "Optional field; omit to take whichever field has the newest point",
					},
					"tags": tagsProperty(),
				},
				"required": []string{"measurement"},
			},
		},
		{
			Name:        "query_timeseries",
			Description: "Query a time series over a window, optionally downsampled with an aggregate function",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": seriesProps,
				"required":   []string{"measurement", "field"},
			},
		},
		{
			Name:        "window_stats",
			Description: "Summarize a series over a window: count, mean, min, max, and last value",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": statsProps,
				"required":   []string{"measurement", "field"},
			},
		},
		{
			Name:        "get_query_metrics",
			Description: "Get per-tool invocation metrics (call counts, latency, truncation). Internal/debug tool.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// RegisterTools registers all tool handlers
func (s *Server) RegisterTools() {
	s.tools["list_buckets_or_dbs"] = s.toolListContainers
	s.tools["list_measurements"] = s.toolListMeasurements
	s.tools["list_fields"] = s.toolListFields
	s.tools["list_tags"] = s.toolListTags
	s.tools["last_point"] = s.toolLastPoint
	s.tools["query_timeseries"] = s.toolQueryTimeseries
	s.tools["window_stats"] = s.toolWindowStats
	s.tools["get_query_metrics"] = s.toolGetQueryMetrics
}
