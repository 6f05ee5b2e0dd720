package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fluxmcp/internal/config"
	"fluxmcp/internal/errors"
	"fluxmcp/internal/model"
	"fluxmcp/internal/slogutil"
)

func testConfig(url, version string) *config.Config {
	return &config.Config{
		URL:               url,
		Version:           version,
		Org:               "test-org",
		Token:             config.Secret("secret-token"),
		RequestTimeoutSec: 5,
		MaxRows:           1000,
	}
}

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := NewEngineFromConfig(cfg, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// fakeV1 serves canned InfluxQL responses and records the statements it saw.
type fakeV1 struct {
	queries []string
	rows    int // data rows served for SELECT statements
}

func (f *fakeV1) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.URL.Path != "/query" {
			http.NotFound(w, r)
			return
		}

		q := r.FormValue("q")
		f.queries = append(f.queries, q)
		w.Header().Set("Content-Type", "application/json")

		var body string
		switch {
		case strings.HasPrefix(q, "SHOW DATABASES"):
			body = `{"results":[{"series":[{"name":"databases","columns":["name"],"values":[["iot"]]}]}]}`
		case strings.HasPrefix(q, "SHOW RETENTION POLICIES"):
			body = `{"results":[{"series":[{"columns":["name","duration","shardGroupDuration","replicaN","default"],"values":[["autogen","0s","168h0m0s",1,true]]}]}]}`
		case strings.HasPrefix(q, "SHOW MEASUREMENTS"):
			body = `{"results":[{"series":[{"name":"measurements","columns":["name"],"values":[["device_status"],["sensor_reading"]]}]}]}`
		case strings.HasPrefix(q, "SHOW FIELD KEYS"):
			body = `{"results":[{"series":[{"name":"device_status","columns":["fieldKey","fieldType"],"values":[["rssi","integer"],["battery_level","float"]]}]}]}`
		case strings.HasPrefix(q, "SHOW TAG KEYS"):
			body = `{"results":[{"series":[{"name":"device_status","columns":["tagKey"],"values":[["device_id"]]}]}]}`
		case strings.HasPrefix(q, "SHOW TAG VALUES"):
			body = `{"results":[{"series":[{"name":"device_status","columns":["key","value"],"values":[["device_id","xyz-789"],["device_id","abc-123"]]}]}]}`
		case strings.Contains(q, "ORDER BY time DESC LIMIT 1"):
			body = `{"results":[{"series":[{"name":"device_status","tags":{"device_id":"xyz-789"},"columns":["time","rssi"],"values":[[1767366900000000000,-67]]}]}]}`
		case strings.HasPrefix(q, "SELECT"):
			var values []string
			base := time.Date(2026, 1, 2, 14, 0, 0, 0, time.UTC)
			for i := 0; i < f.rows; i++ {
				values = append(values, fmt.Sprintf("[%d,%d]", base.Add(time.Duration(i)*time.Minute).UnixNano(), -60-i))
			}
			body = fmt.Sprintf(`{"results":[{"series":[{"name":"device_status","columns":["time","rssi"],"values":[%s]}]}]}`,
				strings.Join(values, ","))
		default:
			body = `{"results":[]}`
		}
		io.WriteString(w, body)
	}
}

// fakeV2 serves canned annotated CSV and records the Flux scripts it saw.
type fakeV2 struct {
	queries []string
	rows    int
}

func (f *fakeV2) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/ready":
			w.WriteHeader(http.StatusOK)
			return
		case "/api/v2/buckets":
			io.WriteString(w, `{"buckets":[]}`)
			return
		case "/api/v2/query":
		default:
			http.NotFound(w, r)
			return
		}

		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.queries = append(f.queries, req.Query)
		w.Header().Set("Content-Type", "text/csv")

		header := "#datatype,string,long,dateTime:RFC3339,double,string,string\n" +
			"#group,false,false,false,false,true,true\n" +
			"#default,_result,,,,,\n" +
			",result,table,_time,_value,_field,device_id\n"

		switch {
		case req.Query == "buckets()":
			io.WriteString(w, "#datatype,string,long,string,string\n#group,false,false,false,false\n#default,_result,,,\n"+
				",result,table,name,retentionPolicy\n,_result,0,iot-devices,\n,_result,0,telemetry,\n")
		case strings.Contains(req.Query, "schema.measurements"):
			io.WriteString(w, "#datatype,string,long,string\n#group,false,false,false\n#default,_result,,\n"+
				",result,table,_value\n,_result,0,device_status\n")
		case strings.Contains(req.Query, "schema.measurementFieldKeys"):
			io.WriteString(w, "#datatype,string,long,string\n#group,false,false,false\n#default,_result,,\n"+
				",result,table,_value\n,_result,0,rssi\n,_result,0,battery_level\n")
		case strings.Contains(req.Query, "schema.measurementTagKeys"):
			io.WriteString(w, "#datatype,string,long,string\n#group,false,false,false\n#default,_result,,\n"+
				",result,table,_value\n,_result,0,_start\n,_result,0,_stop\n,_result,0,device_id\n")
		case strings.Contains(req.Query, "schema.measurementTagValues"):
			io.WriteString(w, "#datatype,string,long,string\n#group,false,false,false\n#default,_result,,\n"+
				",result,table,_value\n,_result,0,xyz-789\n")
		case strings.Contains(req.Query, "|> last()"):
			io.WriteString(w, header+",_result,0,2026-01-02T14:55:00Z,-67,rssi,xyz-789\n")
		default:
			var sb strings.Builder
			sb.WriteString(header)
			base := time.Date(2026, 1, 2, 14, 0, 0, 0, time.UTC)
			for i := 0; i < f.rows; i++ {
				fmt.Fprintf(&sb, ",_result,0,%s,%d,rssi,xyz-789\n", base.Add(time.Duration(i)*time.Minute).Format(time.RFC3339), -60-i)
			}
			io.WriteString(w, sb.String())
		}
	}
}

func TestEngineV1EndToEnd(t *testing.T) {
	fake := &fakeV1{rows: 3}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e := newTestEngine(t, testConfig(srv.URL, "1"))
	ctx := context.Background()

	containers, err := e.ListContainers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(containers) != 1 || containers[0].Name != "iot/autogen" || containers[0].Kind != "db" {
		t.Errorf("containers = %+v", containers)
	}

	measurements, err := e.ListMeasurements(ctx, "iot")
	if err != nil {
		t.Fatal(err)
	}
	if len(measurements) != 2 || measurements[0] != "device_status" {
		t.Errorf("measurements = %v", measurements)
	}

	fields, err := e.ListFields(ctx, "iot", "device_status")
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 2 || fields[0].Name != "rssi" || fields[0].Type != "integer" {
		t.Errorf("fields = %+v", fields)
	}

	tags, err := e.ListTags(ctx, "iot", "device_status")
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 || tags[0].Key != "device_id" || len(tags[0].Values) != 2 {
		t.Errorf("tags = %+v", tags)
	}

	series, err := e.QueryTimeseries(ctx, seriesQuery())
	if err != nil {
		t.Fatal(err)
	}
	if len(series.Points) != 3 {
		t.Errorf("got %d points", len(series.Points))
	}

	point, err := e.LastPoint(ctx, lastPointQuery())
	if err != nil {
		t.Fatal(err)
	}
	if point.Field != "rssi" || point.Tags["device_id"] != "xyz-789" {
		t.Errorf("point = %+v", point)
	}
}

func TestEngineV2EndToEnd(t *testing.T) {
	fake := &fakeV2{rows: 3}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e := newTestEngine(t, testConfig(srv.URL, "2"))
	ctx := context.Background()

	containers, err := e.ListContainers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(containers) != 2 || containers[0].Name != "iot-devices" || containers[0].Kind != "bucket" {
		t.Errorf("containers = %+v", containers)
	}

	measurements, err := e.ListMeasurements(ctx, "iot-devices")
	if err != nil {
		t.Fatal(err)
	}
	if len(measurements) != 1 || measurements[0] != "device_status" {
		t.Errorf("measurements = %v", measurements)
	}

	fields, err := e.ListFields(ctx, "iot-devices", "device_status")
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 2 || fields[0].Name != "rssi" || fields[0].Type != "" {
		t.Errorf("fields = %+v", fields)
	}

	tags, err := e.ListTags(ctx, "iot-devices", "device_status")
	if err != nil {
		t.Fatal(err)
	}
	// Internal _start/_stop keys are filtered out.
	if len(tags) != 1 || tags[0].Key != "device_id" {
		t.Errorf("tags = %+v", tags)
	}

	series, err := e.QueryTimeseries(ctx, seriesQuery())
	if err != nil {
		t.Fatal(err)
	}
	if len(series.Points) != 3 {
		t.Errorf("got %d points", len(series.Points))
	}

	point, err := e.LastPoint(ctx, lastPointQuery())
	if err != nil {
		t.Fatal(err)
	}
	if point.Field != "rssi" || point.Tags["device_id"] != "xyz-789" {
		t.Errorf("point = %+v", point)
	}
}

func TestEngineClampsLimit(t *testing.T) {
	fake := &fakeV1{rows: 10}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	cfg := testConfig(srv.URL, "1")
	cfg.MaxRows = 5
	e := newTestEngine(t, cfg)

	q := seriesQuery()
	q.Limit = 0 // no client preference: ceiling applies
	series, err := e.QueryTimeseries(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}

	last := fake.queries[len(fake.queries)-1]
	if !strings.HasSuffix(last, "LIMIT 5") {
		t.Errorf("query text %q not clamped to the ceiling", last)
	}
	if len(series.Points) != 5 {
		t.Errorf("got %d points, want 5 after truncation", len(series.Points))
	}
	if q.Limit != 0 {
		t.Errorf("caller's query mutated: Limit = %d", q.Limit)
	}
}

func TestEngineDefaultTarget(t *testing.T) {
	fake := &fakeV1{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	cfg := testConfig(srv.URL, "1")
	cfg.DefaultDB = "iot"
	e := newTestEngine(t, cfg)

	if _, err := e.ListMeasurements(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	cfg.DefaultDB = ""
	e = newTestEngine(t, cfg)
	_, err := e.ListMeasurements(context.Background(), "")
	if err == nil {
		t.Fatal("expected error without target or default")
	}
	if got := errors.CodeOf(err); got != errors.InvalidQueryInput {
		t.Errorf("code = %s, want %s", got, errors.InvalidQueryInput)
	}
}

func TestEngineComputeWindowStats(t *testing.T) {
	fake := &fakeV2{rows: 4} // values -60, -61, -62, -63
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e := newTestEngine(t, testConfig(srv.URL, "2"))
	stats, err := e.ComputeWindowStats(context.Background(), seriesQuery())
	if err != nil {
		t.Fatal(err)
	}

	if stats.Count != 4 {
		t.Errorf("Count = %d", stats.Count)
	}
	if stats.Min == nil || *stats.Min != -63 {
		t.Errorf("Min = %v", stats.Min)
	}
	if stats.Max == nil || *stats.Max != -60 {
		t.Errorf("Max = %v", stats.Max)
	}
	if stats.Mean == nil || *stats.Mean != -61.5 {
		t.Errorf("Mean = %v", stats.Mean)
	}
	if v, ok := stats.LastValue.(float64); !ok || v != -63 {
		t.Errorf("LastValue = %v (%T)", stats.LastValue, stats.LastValue)
	}
}

func TestEngineComputeWindowStatsEmpty(t *testing.T) {
	fake := &fakeV2{rows: 0}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e := newTestEngine(t, testConfig(srv.URL, "2"))
	stats, err := e.ComputeWindowStats(context.Background(), seriesQuery())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Count != 0 || stats.Mean != nil || stats.LastTime != nil {
		t.Errorf("stats = %+v, want empty", stats)
	}
}

func TestEngineProbe(t *testing.T) {
	fake := &fakeV2{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e := newTestEngine(t, testConfig(srv.URL, "auto"))
	probe, err := e.Probe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if probe.Dialect != "flux" {
		t.Errorf("dialect = %q", probe.Dialect)
	}
	if len(probe.Containers) != 2 {
		t.Errorf("containers = %+v", probe.Containers)
	}
}

func TestQueryTimeseriesFillPassedThrough(t *testing.T) {
	fake := &fakeV1{rows: 2}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e := newTestEngine(t, testConfig(srv.URL, "1"))

	q := seriesQuery()
	q.Target = "iot"
	q.Every = "1h"
	q.Aggregate = "max"
	q.Fill = "previous"
	if _, err := e.QueryTimeseries(context.Background(), q); err != nil {
		t.Fatal(err)
	}

	sent := fake.queries[len(fake.queries)-1]
	if !strings.Contains(sent, "GROUP BY time(1h) fill(previous)") {
		t.Errorf("fill clause missing from query: %s", sent)
	}
}

func TestInvalidQueryRejectedBeforeAnyProbe(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	e := newTestEngine(t, testConfig(srv.URL, "auto"))

	q := seriesQuery()
	q.Every = "5m" // aggregate missing
	if _, err := e.QueryTimeseries(context.Background(), q); errors.CodeOf(err) != errors.InvalidQueryInput {
		t.Errorf("QueryTimeseries() code = %v, want %v", errors.CodeOf(err), errors.InvalidQueryInput)
	}

	lp := lastPointQuery()
	lp.Tags = map[string]string{"": "x"}
	if _, err := e.LastPoint(context.Background(), lp); errors.CodeOf(err) != errors.InvalidQueryInput {
		t.Errorf("LastPoint() code = %v, want %v", errors.CodeOf(err), errors.InvalidQueryInput)
	}

	if n := hits.Load(); n != 0 {
		t.Errorf("backend saw %d requests for invalid models, want 0", n)
	}
}

func TestInvalidQueryAgainstUnreachableBackend(t *testing.T) {
	// Validation failure wins over the dead host: the caller must see the
	// terminal input error, not a retryable connection error.
	e := newTestEngine(t, testConfig("http://127.0.0.1:1", "auto"))

	q := seriesQuery()
	q.Every = "5m"
	_, err := e.QueryTimeseries(context.Background(), q)
	if errors.CodeOf(err) != errors.InvalidQueryInput {
		t.Errorf("code = %v, want %v", errors.CodeOf(err), errors.InvalidQueryInput)
	}
	if errors.IsRetryable(err) {
		t.Error("validation error reported as retryable")
	}
}

func seriesQuery() *model.Query {
	return &model.Query{
		Target:      "iot-devices",
		Measurement: "device_status",
		Field:       "rssi",
		Start:       "-1h",
		Limit:       100,
	}
}

func lastPointQuery() *model.Query {
	return &model.Query{
		Target:      "iot-devices",
		Measurement: "device_status",
		Field:       "rssi",
		Tags:        map[string]string{"device_id": "xyz-789"},
	}
}
