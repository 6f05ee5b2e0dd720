package query

import (
	"context"

	"fluxmcp/internal/model"
)

// ProbeResult reports what a connectivity probe found.
type ProbeResult struct {
	Dialect    string            `json:"dialect"`
	Containers []model.Container `json:"containers"`
}

// Probe resolves the backend dialect and lists its containers. Used by the
// probe subcommand and as a connectivity check.
func (e *Engine) Probe(ctx context.Context) (*ProbeResult, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	d, err := e.Dialect(ctx)
	if err != nil {
		return nil, err
	}
	containers, err := e.ListContainers(ctx)
	if err != nil {
		return nil, err
	}
	return &ProbeResult{Dialect: d.String(), Containers: containers}, nil
}
