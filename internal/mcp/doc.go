// Package mcp implements the Model Context Protocol (MCP) server for
// CogniCore.
//
// The server exposes the folder monitoring core to MCP clients over stdio
// as a set of tools:
//   - add_folder: register a directory tree for monitoring
//   - remove_folder: stop monitoring and soft-delete the folder's items
//   - list_folders: list registered folders and their state
//   - start_monitoring / stop_monitoring: control a folder's polling loop
//   - get_stats: aggregate index statistics and embedding progress
//   - search_similar: rank indexed items against a natural-language query
//   - suggest_organization: propose folder moves for misplaced items
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport. Stdout carries
// protocol messages only; all logging goes to stderr.
package mcp
