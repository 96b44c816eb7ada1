package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/SimoKiihamaki/cognicore/internal/capability"
	"github.com/SimoKiihamaki/cognicore/internal/monitor"
	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeFolderNotFound = -32001 // Folder ID is not registered
	ErrorCodeAccessDenied   = -32002 // Directory access was denied or revoked
	ErrorCodeFolderActive   = -32003 // Operation requires the folder to be stopped
	ErrorCodeEmptyQuery     = -32004 // Query parameter is empty
)

// handleAddFolder handles the add_folder tool invocation
func (s *Server) handleAddFolder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	defaults := types.DefaultFolderOptions()
	opts := types.FolderOptions{
		PollIntervalMs:      getIntDefault(args, "poll_interval_ms", defaults.PollIntervalMs),
		MaxFileSizeBytes:    int64(getIntDefault(args, "max_file_size_bytes", int(defaults.MaxFileSizeBytes))),
		MaxDepth:            getIntDefault(args, "max_depth", defaults.MaxDepth),
		TextFilesOnly:       getBoolDefault(args, "text_files_only", defaults.TextFilesOnly),
		SkipExcludedDirs:    getBoolDefault(args, "skip_excluded_dirs", defaults.SkipExcludedDirs),
		IncludeAllFileTypes: getBoolDefault(args, "include_all_file_types", false),
	}

	handle, err := capability.NewOSHandle(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeAccessDenied, "cannot open directory", map[string]interface{}{
			"error": err.Error(),
		})
	}

	folder, err := s.registry.AddFolder(ctx, path, handle, opts)
	if err != nil {
		if errors.Is(err, types.ErrAccessDenied) {
			return nil, newMCPError(ErrorCodeAccessDenied, "directory access denied", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "failed to add folder", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"added":  true,
		"folder": folderResponse(folder),
	})), nil
}

// handleRemoveFolder handles the remove_folder tool invocation
func (s *Server) handleRemoveFolder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folderID, mcpErr := requiredFolderID(request)
	if mcpErr != nil {
		return nil, mcpErr
	}

	if err := s.registry.RemoveFolder(ctx, folderID); err != nil {
		if errors.Is(err, monitor.ErrFolderNotFound) {
			return nil, newMCPError(ErrorCodeFolderNotFound, "folder not found", map[string]interface{}{
				"folder_id": folderID,
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "failed to remove folder", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"removed":   true,
		"folder_id": folderID,
	})), nil
}

// handleListFolders handles the list_folders tool invocation
func (s *Server) handleListFolders(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folders := s.registry.Folders()
	out := make([]interface{}, 0, len(folders))
	for _, folder := range folders {
		out = append(out, folderResponse(folder))
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"count":   len(folders),
		"folders": out,
	})), nil
}

// handleStartMonitoring handles the start_monitoring tool invocation
func (s *Server) handleStartMonitoring(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folderID, mcpErr := requiredFolderID(request)
	if mcpErr != nil {
		return nil, mcpErr
	}

	err := s.registry.StartMonitoring(ctx, folderID)
	if errors.Is(err, monitor.ErrNoHandle) {
		// Handles are never persisted; after a restart the folder needs a
		// fresh grant, which re-opening the display path provides.
		folder, ferr := s.registry.GetFolder(folderID)
		if ferr != nil {
			return nil, newMCPError(ErrorCodeFolderNotFound, "folder not found", map[string]interface{}{
				"folder_id": folderID,
			})
		}
		handle, herr := capability.NewOSHandle(folder.DisplayPath)
		if herr != nil {
			return nil, newMCPError(ErrorCodeAccessDenied, "cannot re-open directory", map[string]interface{}{
				"error": herr.Error(),
			})
		}
		err = s.registry.AttachHandle(ctx, folderID, handle)
	}
	if err != nil {
		switch {
		case errors.Is(err, monitor.ErrFolderNotFound):
			return nil, newMCPError(ErrorCodeFolderNotFound, "folder not found", map[string]interface{}{
				"folder_id": folderID,
			})
		case errors.Is(err, types.ErrAccessDenied):
			return nil, newMCPError(ErrorCodeAccessDenied, "directory access denied", map[string]interface{}{
				"error": err.Error(),
			})
		default:
			return nil, newMCPError(ErrorCodeInternalError, "failed to start monitoring", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"monitoring": true,
		"folder_id":  folderID,
	})), nil
}

// handleStopMonitoring handles the stop_monitoring tool invocation
func (s *Server) handleStopMonitoring(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folderID, mcpErr := requiredFolderID(request)
	if mcpErr != nil {
		return nil, mcpErr
	}

	if err := s.registry.StopMonitoring(ctx, folderID); err != nil {
		if errors.Is(err, monitor.ErrFolderNotFound) {
			return nil, newMCPError(ErrorCodeFolderNotFound, "folder not found", map[string]interface{}{
				"folder_id": folderID,
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "failed to stop monitoring", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"monitoring": false,
		"folder_id":  folderID,
	})), nil
}

// handleGetStats handles the get_stats tool invocation
func (s *Server) handleGetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.registry.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to compute stats", map[string]interface{}{
			"error": err.Error(),
		})
	}
	completed, total := s.pipeline.Progress()

	response := map[string]interface{}{
		"total_files":         stats.TotalFiles,
		"active_monitors":     stats.ActiveMonitors,
		"file_type_histogram": stats.FileTypeHistogram,
		"embedding_progress": map[string]interface{}{
			"completed": completed,
			"total":     total,
		},
	}
	if !stats.LastScanTime.IsZero() {
		response["last_scan_time"] = stats.LastScanTime.Format(time.RFC3339)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchSimilar handles the search_similar tool invocation
func (s *Server) handleSearchSimilar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	threshold := getFloatDefault(args, "threshold", s.cfg.SimilarityThreshold)
	if threshold < -1 || threshold > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "threshold must be between -1.0 and 1.0", map[string]interface{}{
			"param": "threshold",
			"value": threshold,
		})
	}
	maxResults := getIntDefault(args, "max_results", 10)

	results, err := s.registry.SearchSimilar(ctx, query, threshold, maxResults)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	out := make([]interface{}, 0, len(results))
	for _, result := range results {
		entry := map[string]interface{}{
			"item_id": result.ItemID,
			"score":   result.Score,
			"rank":    result.Rank,
		}
		if item, err := s.store.GetItem(ctx, result.ItemID); err == nil {
			entry["filename"] = item.Filename
			entry["filepath"] = item.Filepath
		}
		out = append(out, entry)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": out,
	})), nil
}

// handleSuggestOrganization handles the suggest_organization tool invocation
func (s *Server) handleSuggestOrganization(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	threshold := getFloatDefault(args, "threshold", s.cfg.SimilarityThreshold)
	if threshold < -1 || threshold > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "threshold must be between -1.0 and 1.0", map[string]interface{}{
			"param": "threshold",
			"value": threshold,
		})
	}

	suggestions, err := s.registry.SuggestOrganization(ctx, threshold)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to compute suggestions", map[string]interface{}{
			"error": err.Error(),
		})
	}

	out := make([]interface{}, 0, len(suggestions))
	for _, suggestion := range suggestions {
		entry := map[string]interface{}{
			"item_id":          suggestion.ItemID,
			"current_folder":   suggestion.CurrentFolder,
			"suggested_folder": suggestion.SuggestedFolder,
			"score":            suggestion.Score,
		}
		if item, err := s.store.GetItem(ctx, suggestion.ItemID); err == nil {
			entry["filename"] = item.Filename
		}
		out = append(out, entry)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"count":       len(suggestions),
		"suggestions": out,
	})), nil
}

// Helper functions

// folderResponse flattens a folder record for tool output.
func folderResponse(folder *types.MonitoredFolder) map[string]interface{} {
	out := map[string]interface{}{
		"id":           folder.ID,
		"display_path": folder.DisplayPath,
		"is_active":    folder.IsActive,
		"options": map[string]interface{}{
			"poll_interval_ms":       folder.Options.PollIntervalMs,
			"max_file_size_bytes":    folder.Options.MaxFileSizeBytes,
			"max_depth":              folder.Options.MaxDepth,
			"text_files_only":        folder.Options.TextFilesOnly,
			"skip_excluded_dirs":     folder.Options.SkipExcludedDirs,
			"include_all_file_types": folder.Options.IncludeAllFileTypes,
		},
		"consecutive_errors": folder.ConsecutiveErrors,
	}
	if folder.LastError != "" {
		out["last_error"] = folder.LastError
	}
	if !folder.LastScanTime.IsZero() {
		out["last_scan_time"] = folder.LastScanTime.Format(time.RFC3339)
	}
	return out
}

// requiredFolderID extracts the mandatory folder_id argument.
func requiredFolderID(request mcp.CallToolRequest) (string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	folderID, ok := args["folder_id"].(string)
	if !ok || folderID == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "folder_id parameter is required", map[string]interface{}{
			"param":  "folder_id",
			"reason": "missing or empty",
		})
	}
	return folderID, nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a float parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
