// Package mcp exposes the form-fill pipeline as Model Context Protocol
// tools over standard I/O.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/pdf-form-filler/internal/config"
	"github.com/a3tai/pdf-form-filler/internal/fill"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	svc       *fill.Service
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, svc *fill.Service, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("fill service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		svc:       svc,
		mcpServer: mcpServer,
		logger:    logger,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	startTool := mcp.NewTool(
		"form_fill_start",
		mcp.WithDescription("Start filling a blank PDF form's text fields from the user's previously extracted facts"),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Identifier of the user whose uploads supply the facts"),
		),
		mcp.WithString("form_url",
			mcp.Required(),
			mcp.Description("HTTP(S) URL of the blank form PDF"),
		),
	)
	s.mcpServer.AddTool(startTool, s.handleFormFillStart)

	statusTool := mcp.NewTool(
		"form_fill_status",
		mcp.WithDescription("Get the current state of a form fill job, including per-field results"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Identifier returned by form_fill_start"),
		),
	)
	s.mcpServer.AddTool(statusTool, s.handleFormFillStatus)
}

// Handler functions
func (s *Server) handleFormFillStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	formURL, err := request.RequireString("form_url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	view, err := s.svc.Start(ctx, userID, formURL)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return s.jobResult(view)
}

func (s *Server) handleFormFillStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	view, err := s.svc.Get(jobID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return s.jobResult(view)
}

func (s *Server) jobResult(view *fill.JobView) (*mcp.CallToolResult, error) {
	payload, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode job state: %v", err)), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}

// Run starts the MCP server over standard I/O.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp.serve.stdio", "server", s.config.ServerName, "version", s.config.Version)

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
