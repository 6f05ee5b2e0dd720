package mcp

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"fluxmcp/internal/config"
	"fluxmcp/internal/query"
	"fluxmcp/internal/slogutil"
	"fluxmcp/internal/storage"
	"fluxmcp/internal/version"
)

// fakeBackend serves canned v2 responses for the MCP integration tests.
func fakeBackend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/query" {
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
		w.Header().Set("Content-Type", "text/csv")

		switch {
		case req.Query == "buckets()":
			io.WriteString(w, "#datatype,string,long,string,string\n#group,false,false,false,false\n#default,_result,,,\n"+
				",result,table,name,retentionPolicy\n,_result,0,iot-devices,\n")
		case strings.Contains(req.Query, "schema.measurements"):
			io.WriteString(w, "#datatype,string,long,string\n#group,false,false,false\n#default,_result,,\n"+
				",result,table,_value\n,_result,0,device_status\n,_result,0,sensor_reading\n")
		case strings.Contains(req.Query, "|> last()"):
			io.WriteString(w, "#datatype,string,long,dateTime:RFC3339,double,string,string\n"+
				"#group,false,false,false,false,true,true\n#default,_result,,,,,\n"+
				",result,table,_time,_value,_field,device_id\n"+
				",_result,0,2026-01-02T14:55:00Z,-67,rssi,xyz-789\n")
		default:
			io.WriteString(w, "#datatype,string,long,dateTime:RFC3339,double,string\n"+
				"#group,false,false,false,false,true\n#default,_result,,,,\n"+
				",result,table,_time,_value,_field\n"+
				",_result,0,2026-01-02T13:00:00Z,-67,rssi\n"+
				",_result,0,2026-01-02T14:00:00Z,-71.5,rssi\n")
		}
	}
}

// newTestMCPServer creates an MCP server backed by a fake v2 backend
func newTestMCPServer(t *testing.T) *Server {
	t.Helper()

	srv := httptest.NewServer(fakeBackend())
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		URL:               srv.URL,
		Version:           "2",
		Org:               "test-org",
		Token:             config.Secret("secret-token"),
		RequestTimeoutSec: 5,
		MaxRows:           1000,
	}

	logger := slogutil.NewDiscardLogger()
	engine, err := query.NewEngineFromConfig(cfg, logger)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	db, err := storage.Open(filepath.Join(t.TempDir(), "metrics.db"), logger)
	if err != nil {
		t.Fatalf("failed to create metrics database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewServer(version.Version, engine, db, logger)
}

// sendRequest sends a request and returns the response
func sendRequest(t *testing.T, server *Server, method string, id int, params interface{}) *Message {
	t.Helper()

	request := Message{
		Jsonrpc: "2.0",
		Id:      id,
		Method:  method,
		Params:  params,
	}

	requestBytes, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	requestBytes = append(requestBytes, '\n')

	stdin := bytes.NewReader(requestBytes)
	stdout := &bytes.Buffer{}

	server.SetStdin(stdin)
	server.SetStdout(stdout)

	msg, err := server.readMessage()
	if err != nil && err != io.EOF {
		t.Fatalf("failed to read message: %v", err)
	}

	return server.handleMessage(msg)
}

// toolEnvelope extracts the envelope JSON from a tools/call response
func toolEnvelope(t *testing.T, response *Message) map[string]interface{} {
	t.Helper()

	result, ok := response.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result is not an object: %+v", response)
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok {
		t.Fatalf("content missing from result: %+v", result)
	}
	text, ok := content[0]["text"].(string)
	if !ok {
		t.Fatalf("text missing from content: %+v", content)
	}

	var env map[string]interface{}
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		t.Fatalf("envelope is not JSON: %v\n%s", err, text)
	}
	return env
}

func TestMCPServerCreation(t *testing.T) {
	server := newTestMCPServer(t)

	if len(server.tools) != 8 {
		t.Errorf("registered %d tools, want 8", len(server.tools))
	}
}

func TestInitializeMethod(t *testing.T) {
	server := newTestMCPServer(t)

	response := sendRequest(t, server, "initialize", 1, map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]interface{}{"name": "test-client"},
	})

	if response.Error != nil {
		t.Fatalf("initialize failed: %v", response.Error)
	}
	result, ok := response.Result.(*InitializeResult)
	if !ok {
		t.Fatalf("result type %T", response.Result)
	}
	if result.ServerInfo.Name != "fluxmcp" {
		t.Errorf("server name = %q", result.ServerInfo.Name)
	}
	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %q", result.ProtocolVersion)
	}
}

func TestListTools(t *testing.T) {
	server := newTestMCPServer(t)

	response := sendRequest(t, server, "tools/list", 2, nil)
	if response.Error != nil {
		t.Fatalf("tools/list failed: %v", response.Error)
	}

	result := response.Result.(map[string]interface{})
	tools := result["tools"].([]Tool)

	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
		if tool.Description == "" {
			t.Errorf("tool %s has no description", tool.Name)
		}
		if tool.InputSchema == nil {
			t.Errorf("tool %s has no input schema", tool.Name)
		}
	}
	for _, want := range []string{"list_buckets_or_dbs", "list_measurements", "list_fields", "list_tags", "last_point", "query_timeseries", "window_stats", "get_query_metrics"} {
		if !names[want] {
			t.Errorf("tool %s not listed", want)
		}
	}
}

func TestMethodNotFound(t *testing.T) {
	server := newTestMCPServer(t)

	response := sendRequest(t, server, "unknown/method", 3, nil)
	if response.Error == nil {
		t.Fatal("expected error response")
	}
	if response.Error.Code != MethodNotFound {
		t.Errorf("code = %d, want %d", response.Error.Code, MethodNotFound)
	}
}

func TestCallListMeasurements(t *testing.T) {
	server := newTestMCPServer(t)

	response := sendRequest(t, server, "tools/call", 4, map[string]interface{}{
		"name":      "list_measurements",
		"arguments": map[string]interface{}{"target": "iot-devices"},
	})
	if response.Error != nil {
		t.Fatalf("tools/call failed: %v", response.Error)
	}

	env := toolEnvelope(t, response)
	data := env["data"].(map[string]interface{})
	if data["count"].(float64) != 2 {
		t.Errorf("count = %v", data["count"])
	}
	meta := env["meta"].(map[string]interface{})
	backend := meta["backend"].(map[string]interface{})
	if backend["dialect"] != "flux" {
		t.Errorf("dialect = %v", backend["dialect"])
	}
}

func TestCallQueryTimeseries(t *testing.T) {
	server := newTestMCPServer(t)

	response := sendRequest(t, server, "tools/call", 5, map[string]interface{}{
		"name": "query_timeseries",
		"arguments": map[string]interface{}{
			"target":      "iot-devices",
			"measurement": "device_status",
			"field":       "rssi",
			"start":       "-1h",
			"limit":       float64(100),
		},
	})
	if response.Error != nil {
		t.Fatalf("tools/call failed: %v", response.Error)
	}

	env := toolEnvelope(t, response)
	data := env["data"].(map[string]interface{})
	points := data["points"].([]interface{})
	if len(points) != 2 {
		t.Errorf("got %d points", len(points))
	}
	stats := data["stats"].(map[string]interface{})
	if stats["points_returned"].(float64) != 2 {
		t.Errorf("points_returned = %v", stats["points_returned"])
	}
}

func TestCallLastPoint(t *testing.T) {
	server := newTestMCPServer(t)

	response := sendRequest(t, server, "tools/call", 6, map[string]interface{}{
		"name": "last_point",
		"arguments": map[string]interface{}{
			"target":      "iot-devices",
			"measurement": "device_status",
			"field":       "rssi",
		},
	})
	if response.Error != nil {
		t.Fatalf("tools/call failed: %v", response.Error)
	}

	env := toolEnvelope(t, response)
	data := env["data"].(map[string]interface{})
	if data["field"] != "rssi" {
		t.Errorf("field = %v", data["field"])
	}
	tags := data["tags"].(map[string]interface{})
	if tags["device_id"] != "xyz-789" {
		t.Errorf("tags = %v", tags)
	}
}

func TestCallInvalidInputWrappedInEnvelope(t *testing.T) {
	server := newTestMCPServer(t)

	// aggregate without every is a validation error: it must come back as
	// an envelope with an error code, not a JSON-RPC error.
	response := sendRequest(t, server, "tools/call", 7, map[string]interface{}{
		"name": "query_timeseries",
		"arguments": map[string]interface{}{
			"target":      "iot-devices",
			"measurement": "device_status",
			"field":       "rssi",
			"aggregate":   "max",
		},
	})
	if response.Error != nil {
		t.Fatalf("expected envelope error, got RPC error: %v", response.Error)
	}

	env := toolEnvelope(t, response)
	if env["error"] == nil {
		t.Fatal("envelope carries no error")
	}
	data := env["data"].(map[string]interface{})
	if data["code"] != "INVALID_QUERY_INPUT" {
		t.Errorf("code = %v", data["code"])
	}
}

func TestCallUnknownTool(t *testing.T) {
	server := newTestMCPServer(t)

	response := sendRequest(t, server, "tools/call", 8, map[string]interface{}{
		"name":      "drop_everything",
		"arguments": map[string]interface{}{},
	})
	if response.Error == nil {
		t.Fatal("expected error response")
	}
}

func TestCallGetQueryMetrics(t *testing.T) {
	server := newTestMCPServer(t)

	// Generate some history first.
	sendRequest(t, server, "tools/call", 9, map[string]interface{}{
		"name":      "list_measurements",
		"arguments": map[string]interface{}{"target": "iot-devices"},
	})

	response := sendRequest(t, server, "tools/call", 10, map[string]interface{}{
		"name":      "get_query_metrics",
		"arguments": map[string]interface{}{},
	})
	if response.Error != nil {
		t.Fatalf("tools/call failed: %v", response.Error)
	}

	env := toolEnvelope(t, response)
	data := env["data"].(map[string]interface{})
	tools := data["tools"].([]interface{})
	if len(tools) == 0 {
		t.Error("no aggregates recorded")
	}
}

func TestResourcesList(t *testing.T) {
	server := newTestMCPServer(t)

	response := sendRequest(t, server, "resources/list", 11, nil)
	if response.Error != nil {
		t.Fatalf("resources/list failed: %v", response.Error)
	}

	result := response.Result.(map[string]interface{})
	templates := result["resourceTemplates"].([]ResourceTemplate)
	if len(templates) != 1 || !strings.HasPrefix(templates[0].URITemplate, "influxdb://") {
		t.Errorf("templates = %+v", templates)
	}
}

func TestResourcesRead(t *testing.T) {
	server := newTestMCPServer(t)

	response := sendRequest(t, server, "resources/read", 12, map[string]interface{}{
		"uri": "influxdb://iot-devices/device_status?field=rssi&start=-3d",
	})
	if response.Error != nil {
		t.Fatalf("resources/read failed: %v", response.Error)
	}

	result := response.Result.(map[string]interface{})
	contents := result["contents"].([]map[string]interface{})
	text := contents[0]["text"].(string)

	var env map[string]interface{}
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		t.Fatalf("resource text is not JSON: %v", err)
	}
	data := env["data"].(map[string]interface{})
	if len(data["points"].([]interface{})) != 2 {
		t.Errorf("points = %v", data["points"])
	}
}

func TestResourcesReadBadURI(t *testing.T) {
	server := newTestMCPServer(t)

	response := sendRequest(t, server, "resources/read", 13, map[string]interface{}{
		"uri": "https://iot-devices/device_status",
	})
	if response.Error == nil {
		t.Fatal("expected error response")
	}
}

func TestServerLoopEOF(t *testing.T) {
	server := newTestMCPServer(t)

	server.SetStdin(strings.NewReader(""))
	server.SetStdout(&bytes.Buffer{})

	if err := server.Start(); err != nil {
		t.Errorf("Start() = %v, want clean EOF shutdown", err)
	}
}

func TestServerLoopMalformedJSON(t *testing.T) {
	server := newTestMCPServer(t)

	request, _ := json.Marshal(Message{
		Jsonrpc: "2.0",
		Id:      1,
		Method:  "tools/list",
	})
	input := "this is not json\n" + string(request) + "\n"

	stdout := &bytes.Buffer{}
	server.SetStdin(strings.NewReader(input))
	server.SetStdout(stdout)

	if err := server.Start(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d response lines, want 2:\n%s", len(lines), stdout.String())
	}

	var parseErr Message
	if err := json.Unmarshal([]byte(lines[0]), &parseErr); err != nil {
		t.Fatalf("first response is not JSON: %v", err)
	}
	if parseErr.Error == nil || parseErr.Error.Code != ParseError {
		t.Errorf("first response = %+v, want parse error %d", parseErr, ParseError)
	}
	if parseErr.Id != nil {
		t.Errorf("parse error carries id %v, want none", parseErr.Id)
	}

	var listResp Message
	if err := json.Unmarshal([]byte(lines[1]), &listResp); err != nil {
		t.Fatalf("second response is not JSON: %v", err)
	}
	if listResp.Error != nil || listResp.Result == nil {
		t.Errorf("second response = %+v, want tools/list result", listResp)
	}
}

func TestServerLoopRoundTrip(t *testing.T) {
	server := newTestMCPServer(t)

	request, _ := json.Marshal(Message{
		Jsonrpc: "2.0",
		Id:      1,
		Method:  "tools/list",
	})

	stdout := &bytes.Buffer{}
	server.SetStdin(bytes.NewReader(append(request, '\n')))
	server.SetStdout(stdout)

	if err := server.Start(); err != nil {
		t.Fatal(err)
	}

	var response Message
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, stdout.String())
	}
	if response.Error != nil {
		t.Fatalf("response error: %v", response.Error)
	}
	if response.Result == nil {
		t.Fatal("response carries no result")
	}
}
