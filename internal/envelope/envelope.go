// Package envelope provides a standardized response wrapper for all MCP tool
// responses. Every tool response carries the same outer shape: a schema
// version, the tool-specific payload, metadata about the backend dialect and
// truncation, warnings, and an optional error.
package envelope

// Backend describes which query dialect served the response.
type Backend struct {
	Dialect string `json:"dialect"` // "influxql" or "flux"
}

// Truncation describes result trimming against the configured row ceiling.
type Truncation struct {
	IsTruncated bool   `json:"isTruncated"`
	Shown       int    `json:"shown,omitempty"`  // rows returned
	Reason      string `json:"reason,omitempty"` // "max-rows"
}

// Meta holds response metadata.
type Meta struct {
	Backend    *Backend    `json:"backend,omitempty"`
	Truncation *Truncation `json:"truncation,omitempty"`
}

// Warning represents a non-fatal issue.
type Warning struct {
	Code    string `json:"code,omitempty"` // machine-readable code
	Message string `json:"message"`        // human-readable message
}

// Response is the standard envelope for all MCP tool responses.
type Response struct {
	SchemaVersion string      `json:"schemaVersion"`
	Data          interface{} `json:"data"`
	Meta          *Meta       `json:"meta,omitempty"`
	Warnings      []Warning   `json:"warnings,omitempty"`
	Error         *string     `json:"error,omitempty"`
}

// CurrentSchemaVersion is the current envelope schema version.
const CurrentSchemaVersion = "1.0"
