package storage

import "time"

// Invocation is one recorded tool call.
type Invocation struct {
	Tool       string
	Duration   time.Duration
	Rows       int
	Truncated  bool
	ErrorCode  string
	RecordedAt time.Time
}

// ToolAggregate is the per-tool summary exposed by the metrics tool.
type ToolAggregate struct {
	Tool       string  `json:"tool"`
	Calls      int64   `json:"calls"`
	Errors     int64   `json:"errors"`
	TotalRows  int64   `json:"total_rows"`
	Truncated  int64   `json:"truncated"`
	AvgMs      float64 `json:"avg_ms"`
	MaxMs      int64   `json:"max_ms"`
	LastCallAt string  `json:"last_call_at"`
}

// RecordInvocation persists one tool call. Failures are logged, never
// surfaced: metrics must not break the request path.
func (db *DB) RecordInvocation(inv Invocation) {
	if db == nil {
		return
	}
	recordedAt := inv.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	truncated := 0
	if inv.Truncated {
		truncated = 1
	}
	_, err := db.conn.Exec(`
		INSERT INTO query_metrics (tool_name, duration_ms, rows_returned, truncated, error_code, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, inv.Tool, inv.Duration.Milliseconds(), inv.Rows, truncated, inv.ErrorCode, recordedAt.Format(time.RFC3339))
	if err != nil {
		db.logger.Warn("recording invocation metrics failed", "tool", inv.Tool, "error", err)
	}
}

// Aggregates returns per-tool summaries ordered by call count.
func (db *DB) Aggregates() ([]ToolAggregate, error) {
	if db == nil {
		return []ToolAggregate{}, nil
	}
	rows, err := db.conn.Query(`
		SELECT
			tool_name,
			COUNT(*) as calls,
			SUM(CASE WHEN error_code != '' THEN 1 ELSE 0 END) as errors,
			SUM(rows_returned) as total_rows,
			SUM(truncated) as truncated,
			AVG(duration_ms) as avg_ms,
			MAX(duration_ms) as max_ms,
			MAX(recorded_at) as last_call_at
		FROM query_metrics
		GROUP BY tool_name
		ORDER BY calls DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aggregates := []ToolAggregate{}
	for rows.Next() {
		var a ToolAggregate
		if err := rows.Scan(&a.Tool, &a.Calls, &a.Errors, &a.TotalRows, &a.Truncated, &a.AvgMs, &a.MaxMs, &a.LastCallAt); err != nil {
			return nil, err
		}
		aggregates = append(aggregates, a)
	}
	return aggregates, rows.Err()
}
