package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagesmith/api/schemas"
	"github.com/xkilldash9x/pagesmith/internal/config"
	"github.com/xkilldash9x/pagesmith/internal/tools"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: time.Second,
	}
}

func newTestServer(t *testing.T, artifactsDir string) (*Server, *tools.Registry) {
	t.Helper()
	logger := zap.NewNop()
	registry := tools.NewRegistry(logger)

	require.NoError(t, registry.Register(schemas.ToolDescriptor{
		Name:        "greet",
		Description: "test tool",
		Parameters: schemas.ObjectSchema(map[string]schemas.PropertySpec{
			"name": {Type: "string"},
		}, "name"),
	}, func(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
		return schemas.TextResult("hello " + args["name"].(string)), nil
	}))

	require.NoError(t, registry.Register(schemas.ToolDescriptor{
		Name: "flaky", Parameters: schemas.ObjectSchema(nil),
	}, func(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
		return nil, schemas.NewToolError(schemas.CodeUnavailable, "browser is down", "retry later")
	}))

	require.NoError(t, registry.Register(schemas.ToolDescriptor{
		Name: "slowpoke", Parameters: schemas.ObjectSchema(nil),
	}, func(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
		return nil, schemas.NewToolError(schemas.CodeTimeout, "wait exceeded its budget")
	}))

	return NewServer(testServerConfig(), registry, artifactsDir, "/artifacts", logger), registry
}

func postCall(t *testing.T, handler http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/call", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeCall(t *testing.T, rec *httptest.ResponseRecorder) callResponse {
	t.Helper()
	var resp callResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestListTools(t *testing.T) {
	s, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Tools []schemas.ToolDescriptor `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tools, 3)
	assert.Equal(t, "greet", resp.Tools[0].Name)
	assert.Contains(t, resp.Tools[0].Parameters.Required, "name")
}

func TestCallSuccess(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := postCall(t, s.Handler(), callRequest{
		Name:      "greet",
		Arguments: map[string]interface{}{"name": "pat"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCall(t, rec)
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "hello pat", resp.Result.Content[0].Text)
}

func TestCallRecoveredFaultRidesA200(t *testing.T) {
	s, _ := newTestServer(t, "")

	// Unknown tool.
	rec := postCall(t, s.Handler(), callRequest{Name: "missing"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCall(t, rec)
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.IsError)
	assert.Equal(t, schemas.CodeNotFound, resp.Result.ErrorCode)

	// Schema-rejected arguments.
	rec = postCall(t, s.Handler(), callRequest{Name: "greet"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeCall(t, rec)
	require.NotNil(t, resp.Result)
	assert.Equal(t, schemas.CodeInvalidArguments, resp.Result.ErrorCode)
}

func TestCallHardFailureStatusMapping(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := postCall(t, s.Handler(), callRequest{Name: "flaky"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeCall(t, rec)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, schemas.CodeUnavailable, resp.Error.Code)
	assert.Equal(t, []string{"retry later"}, resp.Error.Suggestions)

	rec = postCall(t, s.Handler(), callRequest{Name: "slowpoke"})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	resp = decodeCall(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, schemas.CodeTimeout, resp.Error.Code)
}

func TestCallRejectsBadBodies(t *testing.T) {
	s, _ := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/call", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postCall(t, s.Handler(), callRequest{Name: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeCall(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, schemas.CodeInvalidArguments, resp.Error.Code)
}

func TestArtifactsAreServed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shot.jpeg"), []byte("jpeg-bytes"), 0o644))
	s, _ := newTestServer(t, dir)

	req := httptest.NewRequest(http.MethodGet, "/artifacts/shot.jpeg", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())
}

func TestStartStopsOnContextCancel(t *testing.T) {
	s, _ := newTestServer(t, "")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	// Give the listener a moment, then trigger the graceful drain.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
