package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/SimoKiihamaki/cognicore/internal/config"
	"github.com/SimoKiihamaki/cognicore/internal/embedder"
	"github.com/SimoKiihamaki/cognicore/internal/events"
	"github.com/SimoKiihamaki/cognicore/internal/monitor"
	"github.com/SimoKiihamaki/cognicore/internal/pipeline"
	"github.com/SimoKiihamaki/cognicore/internal/store"
)

const (
	// ServerName is the MCP server name
	ServerName = "cognicore"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	cfg      *config.Config
	store    store.Store
	provider embedder.Provider
	pipeline *pipeline.Pipeline
	bus      *events.Bus
	registry *monitor.Registry
}

// NewServer creates a new MCP server instance wired to a fresh store,
// embedding pipeline, and folder registry.
func NewServer(cfg *config.Config) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	provider, err := embedder.NewFromEnv()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	bus := events.NewBus()
	pipe := pipeline.New(provider, st, bus, pipeline.Config{BatchSize: cfg.EmbedBatchSize})
	pipe.Start()

	registry := monitor.NewRegistry(st, provider, pipe, bus)
	if err := registry.LoadFolders(context.Background()); err != nil {
		pipe.Stop()
		_ = st.Close()
		return nil, fmt.Errorf("failed to restore folders: %w", err)
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:      mcpServer,
		cfg:      cfg,
		store:    st,
		provider: provider,
		pipeline: pipe,
		bus:      bus,
		registry: registry,
	}

	if err := s.registerTools(); err != nil {
		s.shutdown()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer s.shutdown()
	return server.ServeStdio(s.mcp)
}

// Registry exposes the folder registry, mainly for tests.
func (s *Server) Registry() *monitor.Registry {
	return s.registry
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(addFolderTool(), s.handleAddFolder)
	s.mcp.AddTool(removeFolderTool(), s.handleRemoveFolder)
	s.mcp.AddTool(listFoldersTool(), s.handleListFolders)
	s.mcp.AddTool(startMonitoringTool(), s.handleStartMonitoring)
	s.mcp.AddTool(stopMonitoringTool(), s.handleStopMonitoring)
	s.mcp.AddTool(getStatsTool(), s.handleGetStats)
	s.mcp.AddTool(searchSimilarTool(), s.handleSearchSimilar)
	s.mcp.AddTool(suggestOrganizationTool(), s.handleSuggestOrganization)
	return nil
}

// shutdown releases everything in reverse dependency order. Stopping the
// registry first quiesces the scan loops that feed the pipeline.
func (s *Server) shutdown() {
	s.registry.Close()
	s.pipeline.Stop()
	s.bus.Close()
	_ = s.provider.Close()
	_ = s.store.Close()
}
