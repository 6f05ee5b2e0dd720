package influx

import (
	"context"
	"log/slog"
	"sync"

	"fluxmcp/internal/config"
	"fluxmcp/internal/dialect"
	"fluxmcp/internal/errors"
)

// Detector resolves which query dialect the configured backend speaks.
// Detection runs at most once per process: a successful probe is cached,
// a failed one is retried on the next call so transient outages do not
// pin the server to an unknown state.
type Detector struct {
	cfg    *config.Config
	v1     *V1Client
	v2     *V2Client
	logger *slog.Logger

	mu       sync.Mutex
	resolved dialect.Dialect
}

func NewDetector(cfg *config.Config, v1 *V1Client, v2 *V2Client, logger *slog.Logger) *Detector {
	return &Detector{cfg: cfg, v1: v1, v2: v2, logger: logger}
}

// Resolve returns the backend's dialect, probing the server if needed.
// The lock is held across the probe so concurrent callers share one probe.
func (d *Detector) Resolve(ctx context.Context) (dialect.Dialect, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.resolved != dialect.Unknown {
		return d.resolved, nil
	}

	// An explicit version skips probing entirely.
	switch d.cfg.Version {
	case "1":
		d.resolved = dialect.InfluxQL
		return d.resolved, nil
	case "2":
		d.resolved = dialect.Flux
		return d.resolved, nil
	}

	// 2.x first: /api/v2/ready is unambiguous (a 1.x server 404s it),
	// then the token is confirmed against the bucket listing.
	if err := d.v2.Ready(ctx); err == nil {
		if err := d.v2.CheckAuth(ctx); err != nil {
			return dialect.Unknown, err
		}
		d.logger.Info("backend version detected", "dialect", dialect.Flux.String())
		d.resolved = dialect.Flux
		return d.resolved, nil
	} else if errors.CodeOf(err) == errors.ConnectionFailed {
		// Unreachable for v2 means unreachable for v1 too.
		return dialect.Unknown, err
	}

	if err := d.v1.Ping(ctx); err == nil {
		if _, err := d.v1.Query(ctx, "", "SHOW DATABASES"); err != nil {
			return dialect.Unknown, err
		}
		d.logger.Info("backend version detected", "dialect", dialect.InfluxQL.String())
		d.resolved = dialect.InfluxQL
		return d.resolved, nil
	}

	return dialect.Unknown, errors.New(errors.VersionUnknown,
		"could not determine the backend version from its probe endpoints")
}
