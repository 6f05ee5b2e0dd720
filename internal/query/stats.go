package query

import (
	"context"
	"time"

	"fluxmcp/internal/model"
)

// WindowStats summarizes a series over a time window.
type WindowStats struct {
	Count          int        `json:"count"`
	Mean           *float64   `json:"mean,omitempty"`
	Min            *float64   `json:"min,omitempty"`
	Max            *float64   `json:"max,omitempty"`
	LastValue      interface{} `json:"last_value,omitempty"`
	LastTime       *time.Time `json:"last_time,omitempty"`
	StartEffective time.Time  `json:"start_effective"`
	StopEffective  time.Time  `json:"stop_effective"`
}

// ComputeWindowStats fetches the raw series for the window and summarizes it.
// Non-numeric values count toward Count and LastValue but not the numeric
// summaries. An empty window yields a zero Count, not an error.
func (e *Engine) ComputeWindowStats(ctx context.Context, q *model.Query) (*WindowStats, error) {
	series, err := e.QueryTimeseries(ctx, q)
	if err != nil {
		return nil, err
	}

	stats := &WindowStats{
		Count:          len(series.Points),
		StartEffective: series.Stats.StartEffective,
		StopEffective:  series.Stats.StopEffective,
	}

	var sum float64
	var n int
	for _, p := range series.Points {
		v, ok := asFloat(p.Value)
		if !ok {
			continue
		}
		if stats.Min == nil || v < *stats.Min {
			stats.Min = ptr(v)
		}
		if stats.Max == nil || v > *stats.Max {
			stats.Max = ptr(v)
		}
		sum += v
		n++
	}
	if n > 0 {
		stats.Mean = ptr(sum / float64(n))
	}

	if len(series.Points) > 0 {
		last := series.Points[len(series.Points)-1]
		stats.LastValue = last.Value
		t := last.Time
		stats.LastTime = &t
	}

	return stats, nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func ptr(f float64) *float64 { return &f }
