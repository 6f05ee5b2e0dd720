// Package influx talks to an InfluxDB backend over HTTP. It carries one
// client per protocol generation: the v1 client wraps the official line
// protocol client library, the v2 client speaks the /api/v2 Flux endpoint
// directly. Credentials travel only in connection parameters and request
// headers, never in query text or error messages.
package influx

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	client "github.com/influxdata/influxdb/client/v2"

	"fluxmcp/internal/config"
	"fluxmcp/internal/errors"
)

// maxErrorBody caps how much of a backend error response is read back.
const maxErrorBody = 4096

// V1Client executes InfluxQL against a 1.x server.
type V1Client struct {
	c      client.Client
	logger *slog.Logger
}

func NewV1Client(cfg *config.Config, logger *slog.Logger) (*V1Client, error) {
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.URL,
		Username: cfg.Username,
		Password: cfg.Password.Value(),
		Timeout:  cfg.RequestTimeout(),
	})
	if err != nil {
		return nil, errors.Wrap(errors.ConnectionFailed, "creating v1 client", err)
	}
	return &V1Client{c: c, logger: logger}, nil
}

// Ping checks reachability. A 1.x server answers /ping without auth.
func (v *V1Client) Ping(ctx context.Context) error {
	timeout := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < timeout {
			timeout = rem
		}
	}
	if _, _, err := v.c.Ping(timeout); err != nil {
		return classifyTransportError("ping", err)
	}
	return nil
}

// Query executes one InfluxQL statement against the named database. The
// underlying client has no context support, so the call runs on its own
// goroutine and the context governs how long we wait for it.
func (v *V1Client) Query(ctx context.Context, db, cmd string) ([]client.Result, error) {
	type outcome struct {
		resp *client.Response
		err  error
	}
	ch := make(chan outcome, 1)

	go func() {
		resp, err := v.c.Query(client.NewQuery(cmd, db, "ns"))
		ch <- outcome{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(errors.BackendTimeout, "query did not complete in time", ctx.Err())
	case out := <-ch:
		if out.err != nil {
			return nil, classifyTransportError("query", out.err)
		}
		if err := out.resp.Error(); err != nil {
			return nil, classifyBackendError(err.Error())
		}
		return out.resp.Results, nil
	}
}

func (v *V1Client) Close() error {
	return v.c.Close()
}

// V2Client executes Flux against a 2.x server.
type V2Client struct {
	base   string
	org    string
	token  config.Secret
	http   *http.Client
	logger *slog.Logger
}

func NewV2Client(cfg *config.Config, logger *slog.Logger) *V2Client {
	return &V2Client{
		base:   strings.TrimRight(cfg.URL, "/"),
		org:    cfg.Org,
		token:  cfg.Token,
		http:   &http.Client{Timeout: cfg.RequestTimeout()},
		logger: logger,
	}
}

// fluxRequest is the /api/v2/query request body. Annotations are requested
// so the response CSV carries column datatypes.
type fluxRequest struct {
	Query   string      `json:"query"`
	Dialect fluxDialect `json:"dialect"`
}

type fluxDialect struct {
	Annotations []string `json:"annotations"`
	Header      bool     `json:"header"`
}

// Query executes one Flux script and returns the annotated CSV stream.
// The caller must close the returned reader.
func (v *V2Client) Query(ctx context.Context, flux string) (io.ReadCloser, error) {
	body, err := json.Marshal(fluxRequest{
		Query: flux,
		Dialect: fluxDialect{
			Annotations: []string{"datatype", "group", "default"},
			Header:      true,
		},
	})
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "encoding query request", err)
	}

	u := v.base + "/api/v2/query"
	if v.org != "" {
		u += "?" + url.Values{"org": {v.org}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "building query request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/csv")
	req.Header.Set("Accept-Encoding", "gzip")
	if v.token != "" {
		req.Header.Set("Authorization", "Token "+v.token.Value())
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, classifyTransportError("query", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg := readErrorMessage(resp)
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, errors.Newf(errors.AuthRejected, "backend rejected credentials: %s", msg)
		default:
			return nil, classifyBackendError(msg)
		}
	}

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, errors.Wrap(errors.BackendQueryError, "decompressing response", err)
		}
		return gzipReadCloser{gz: gz, body: resp.Body}, nil
	}
	return resp.Body, nil
}

// Ready checks whether the server answers the 2.x readiness endpoint.
// A 1.x server has no /api/v2/ready and returns 404.
func (v *V2Client) Ready(ctx context.Context) error {
	resp, err := v.get(ctx, "/api/v2/ready")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusOK {
		return errors.Newf(errors.VersionUnknown, "readiness probe returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// CheckAuth confirms the configured token by listing a single bucket.
func (v *V2Client) CheckAuth(ctx context.Context) error {
	resp, err := v.get(ctx, "/api/v2/buckets?limit=1")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.New(errors.AuthRejected, "backend rejected the configured token")
	default:
		return errors.Newf(errors.BackendQueryError, "bucket listing returned HTTP %d", resp.StatusCode)
	}
}

func (v *V2Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.base+path, nil)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "building request", err)
	}
	if v.token != "" {
		req.Header.Set("Authorization", "Token "+v.token.Value())
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return nil, classifyTransportError("probe", err)
	}
	return resp, nil
}

type gzipReadCloser struct {
	gz   *gzip.Reader
	body io.ReadCloser
}

func (g gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g gzipReadCloser) Close() error {
	g.gz.Close()
	return g.body.Close()
}

// readErrorMessage extracts the backend's error text. v2 error bodies are
// JSON {"code": ..., "message": ...}; anything else is used verbatim.
func readErrorMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	var apiErr struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return strings.TrimSpace(string(raw))
}

// classifyTransportError maps a transport failure to the error taxonomy.
// Credentials never appear in these messages; the wrapped cause is a
// network-level error.
func classifyTransportError(op string, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.BackendTimeout, op+" timed out", err)
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.Wrap(errors.BackendTimeout, op+" canceled", err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(errors.BackendTimeout, op+" timed out", err)
	}

	msg := err.Error()
	if containsAny(msg, "unauthorized", "authorization", "forbidden", "invalid credentials") {
		return errors.New(errors.AuthRejected, "backend rejected the configured credentials")
	}
	return errors.Wrap(errors.ConnectionFailed, "cannot reach the backend", err)
}

// classifyBackendError maps an error reported by the backend itself.
func classifyBackendError(msg string) error {
	if containsAny(msg, "unauthorized", "authorization failed", "invalid credentials", "forbidden") {
		return errors.New(errors.AuthRejected, "backend rejected the configured credentials")
	}
	if containsAny(msg, "timeout", "deadline exceeded") {
		return errors.Newf(errors.BackendTimeout, "backend timed out: %s", msg)
	}
	return errors.Newf(errors.BackendQueryError, "backend rejected the query: %s", msg)
}

func containsAny(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
