package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimoKiihamaki/cognicore/internal/config"
	"github.com/SimoKiihamaki/cognicore/internal/embedder"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv(embedder.EnvProvider, embedder.ProviderLocal)

	cfg := &config.Config{
		DBPath:              filepath.Join(t.TempDir(), "cognicore.db"),
		EmbedBatchSize:      config.DefaultBatchSize,
		SimilarityThreshold: config.DefaultSimilarityThreshold,
	}
	server, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(server.shutdown)
	return server
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "tool result is not text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func mcpCode(t *testing.T, err error) int {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	return mcpErr.Code
}

func TestServerInitialization(t *testing.T) {
	server := newTestServer(t)

	assert.NotNil(t, server.mcp)
	assert.NotNil(t, server.store)
	assert.NotNil(t, server.pipeline)
	assert.NotNil(t, server.registry)
	assert.NotNil(t, server.bus)
}

func TestAddListRemoveFolder(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()

	result, err := server.handleAddFolder(ctx, callRequest("add_folder", map[string]interface{}{
		"path":             dir,
		"poll_interval_ms": float64(60000),
	}))
	require.NoError(t, err)
	response := resultJSON(t, result)
	assert.Equal(t, true, response["added"])

	folder, ok := response["folder"].(map[string]interface{})
	require.True(t, ok)
	folderID, _ := folder["id"].(string)
	require.NotEmpty(t, folderID)
	assert.Equal(t, dir, folder["display_path"])
	assert.Equal(t, true, folder["is_active"])

	result, err = server.handleListFolders(ctx, callRequest("list_folders", nil))
	require.NoError(t, err)
	listed := resultJSON(t, result)
	assert.EqualValues(t, 1, listed["count"])

	result, err = server.handleRemoveFolder(ctx, callRequest("remove_folder", map[string]interface{}{
		"folder_id": folderID,
	}))
	require.NoError(t, err)
	removed := resultJSON(t, result)
	assert.Equal(t, true, removed["removed"])

	result, err = server.handleListFolders(ctx, callRequest("list_folders", nil))
	require.NoError(t, err)
	assert.EqualValues(t, 0, resultJSON(t, result)["count"])
}

func TestAddFolderValidation(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		args     map[string]interface{}
		wantCode int
	}{
		{"missing path", map[string]interface{}{}, ErrorCodeInvalidParams},
		{"empty path", map[string]interface{}{"path": ""}, ErrorCodeInvalidParams},
		{"relative path", map[string]interface{}{"path": "docs"}, ErrorCodeInvalidParams},
		{"nonexistent path", map[string]interface{}{"path": "/no/such/dir/cognicore-test"}, ErrorCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := server.handleAddFolder(ctx, callRequest("add_folder", tt.args))
			assert.Equal(t, tt.wantCode, mcpCode(t, err))
		})
	}
}

func TestRemoveUnknownFolder(t *testing.T) {
	server := newTestServer(t)

	_, err := server.handleRemoveFolder(context.Background(), callRequest("remove_folder", map[string]interface{}{
		"folder_id": "no-such-folder",
	}))
	assert.Equal(t, ErrorCodeFolderNotFound, mcpCode(t, err))
}

func TestStopAndStartMonitoring(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()

	result, err := server.handleAddFolder(ctx, callRequest("add_folder", map[string]interface{}{
		"path": dir,
	}))
	require.NoError(t, err)
	folder := resultJSON(t, result)["folder"].(map[string]interface{})
	folderID := folder["id"].(string)

	result, err = server.handleStopMonitoring(ctx, callRequest("stop_monitoring", map[string]interface{}{
		"folder_id": folderID,
	}))
	require.NoError(t, err)
	assert.Equal(t, false, resultJSON(t, result)["monitoring"])

	result, err = server.handleStartMonitoring(ctx, callRequest("start_monitoring", map[string]interface{}{
		"folder_id": folderID,
	}))
	require.NoError(t, err)
	assert.Equal(t, true, resultJSON(t, result)["monitoring"])
}

func TestGetStatsEmptyIndex(t *testing.T) {
	server := newTestServer(t)

	result, err := server.handleGetStats(context.Background(), callRequest("get_stats", nil))
	require.NoError(t, err)
	stats := resultJSON(t, result)
	assert.EqualValues(t, 0, stats["total_files"])
	assert.EqualValues(t, 0, stats["active_monitors"])
}

func TestSearchSimilarValidation(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	_, err := server.handleSearchSimilar(ctx, callRequest("search_similar", map[string]interface{}{}))
	assert.Equal(t, ErrorCodeEmptyQuery, mcpCode(t, err))

	_, err = server.handleSearchSimilar(ctx, callRequest("search_similar", map[string]interface{}{
		"query":     "find things",
		"threshold": float64(3),
	}))
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))
}

func TestSearchSimilarEmptyIndex(t *testing.T) {
	server := newTestServer(t)

	result, err := server.handleSearchSimilar(context.Background(), callRequest("search_similar", map[string]interface{}{
		"query": "anything",
	}))
	require.NoError(t, err)
	assert.EqualValues(t, 0, resultJSON(t, result)["count"])
}

func TestSuggestOrganizationEmptyIndex(t *testing.T) {
	server := newTestServer(t)

	result, err := server.handleSuggestOrganization(context.Background(), callRequest("suggest_organization", nil))
	require.NoError(t, err)
	assert.EqualValues(t, 0, resultJSON(t, result)["count"])
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"valid directory", dir, nil},
		{"empty", "", ErrPathRequired},
		{"relative", "docs", ErrPathNotAbsolute},
		{"missing", filepath.Join(dir, "nope"), ErrPathNotFound},
		{"regular file", file, ErrNotDirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]interface{}{
		"int_as_float": float64(7),
		"bool":         true,
		"float":        0.25,
	}

	assert.Equal(t, 7, getIntDefault(args, "int_as_float", 1))
	assert.Equal(t, 1, getIntDefault(args, "missing", 1))
	assert.Equal(t, true, getBoolDefault(args, "bool", false))
	assert.Equal(t, false, getBoolDefault(args, "missing", false))
	assert.Equal(t, 0.25, getFloatDefault(args, "float", 0.5))
	assert.Equal(t, 0.5, getFloatDefault(args, "missing", 0.5))
}
