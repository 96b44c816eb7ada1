package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// addFolderTool returns the tool definition for add_folder
func addFolderTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_folder",
		Description: "Register a directory tree for monitoring, indexing, and embedding",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the directory to monitor",
				},
				"poll_interval_ms": map[string]interface{}{
					"type":        "integer",
					"description": "Base polling interval in milliseconds",
					"default":     5000,
					"minimum":     100,
				},
				"max_file_size_bytes": map[string]interface{}{
					"type":        "integer",
					"description": "Files larger than this are skipped",
					"default":     10485760,
				},
				"max_depth": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum directory recursion depth",
					"default":     32,
				},
				"text_files_only": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, only files with known text extensions are indexed",
					"default":     true,
				},
				"skip_excluded_dirs": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, skip build output, VCS, and dependency directories",
					"default":     true,
				},
				"include_all_file_types": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, disable the extension filters entirely",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// removeFolderTool returns the tool definition for remove_folder
func removeFolderTool() mcp.Tool {
	return mcp.Tool{
		Name:        "remove_folder",
		Description: "Stop monitoring a folder and soft-delete its indexed items",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"folder_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the folder to remove",
				},
			},
			Required: []string{"folder_id"},
		},
	}
}

// listFoldersTool returns the tool definition for list_folders
func listFoldersTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_folders",
		Description: "List registered folders with their monitoring state",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// startMonitoringTool returns the tool definition for start_monitoring
func startMonitoringTool() mcp.Tool {
	return mcp.Tool{
		Name:        "start_monitoring",
		Description: "Resume the polling loop for a stopped folder",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"folder_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the folder to resume",
				},
			},
			Required: []string{"folder_id"},
		},
	}
}

// stopMonitoringTool returns the tool definition for stop_monitoring
func stopMonitoringTool() mcp.Tool {
	return mcp.Tool{
		Name:        "stop_monitoring",
		Description: "Halt the polling loop for a folder without removing its index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"folder_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the folder to stop",
				},
			},
			Required: []string{"folder_id"},
		},
	}
}

// getStatsTool returns the tool definition for get_stats
func getStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_stats",
		Description: "Query aggregate index statistics and embedding progress",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// searchSimilarTool returns the tool definition for search_similar
func searchSimilarTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_similar",
		Description: "Rank indexed items by semantic similarity to a query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language query text",
				},
				"threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity score (-1.0 to 1.0)",
					"minimum":     -1.0,
					"maximum":     1.0,
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results; 0 or omitted returns all matches",
					"default":     10,
					"minimum":     0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// suggestOrganizationTool returns the tool definition for suggest_organization
func suggestOrganizationTool() mcp.Tool {
	return mcp.Tool{
		Name:        "suggest_organization",
		Description: "Propose folder moves for items closer to another folder's centroid",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum centroid similarity for a suggestion (-1.0 to 1.0)",
					"minimum":     -1.0,
					"maximum":     1.0,
				},
			},
		},
	}
}
