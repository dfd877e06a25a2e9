// Package mcp implements the Model Context Protocol server for raikyaku.
//
// The MCP server exposes read-only views of the visit log and consent
// state through MCP resources and tools, allowing MCP-compatible AI
// agents to inspect captured data. Capture itself stays HTTP-only; the
// consent gate and the collection pipeline are not reachable from here.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/raikyaku/internal/consent"
	"github.com/ashita-ai/raikyaku/internal/export"
	"github.com/ashita-ai/raikyaku/internal/model"
	"github.com/ashita-ai/raikyaku/internal/store"
)

// Server wraps the MCP server with raikyaku's log and consent state.
type Server struct {
	mcpServer *mcpserver.MCPServer
	store     *store.Store
	gate      *consent.Gate
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(st *store.Store, gate *consent.Gate, logger *slog.Logger) *Server {
	s := &Server{
		store:  st,
		gate:   gate,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"raikyaku",
		"0.1.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// raikyaku://visits/recent — most recent visit records.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"raikyaku://visits/recent",
			"Recent Visits",
			mcplib.WithResourceDescription("Most recent visit records from the log"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleVisitsRecent,
	)

	// raikyaku://consent — current consent state.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"raikyaku://consent",
			"Consent State",
			mcplib.WithResourceDescription("Current visitor consent decision"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleConsentResource,
	)
}

func (s *Server) registerTools() {
	// visits_recent — list the newest records.
	s.mcpServer.AddTool(
		mcplib.NewTool("visits_recent",
			mcplib.WithDescription("List the most recent visit records, newest last"),
			mcplib.WithNumber("limit", mcplib.Description("Maximum records to return (default 10)")),
		),
		s.handleVisitsRecentTool,
	)

	// visits_export — render the log in a download format.
	s.mcpServer.AddTool(
		mcplib.NewTool("visits_export",
			mcplib.WithDescription("Export the full visit log as text or JSON"),
			mcplib.WithString("format", mcplib.Description("Export format: text or json"), mcplib.Required()),
		),
		s.handleVisitsExport,
	)

	// consent_state — report the consent decision.
	s.mcpServer.AddTool(
		mcplib.NewTool("consent_state",
			mcplib.WithDescription("Report the current consent decision and when it was made"),
		),
		s.handleConsentState,
	)
}

func (s *Server) handleVisitsRecent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	visits := tail(s.store.All(), 10)

	data, err := json.MarshalIndent(visits, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal visits: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "raikyaku://visits/recent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleConsentResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(model.ConsentResponse{
		State:     s.gate.State(),
		DecidedAt: s.gate.DecidedAt(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal consent: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "raikyaku://consent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleVisitsRecentTool(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}

	visits := tail(s.store.All(), limit)

	resultData, _ := json.MarshalIndent(map[string]any{
		"visits": visits,
		"total":  s.store.Len(),
	}, "", "  ")

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func (s *Server) handleVisitsExport(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	format := request.GetString("format", "")

	visits := s.store.All()
	switch format {
	case "text":
		report, err := export.Text(visits, time.Now())
		if err != nil {
			return errorResult(fmt.Sprintf("export failed: %v", err)), nil
		}
		return &mcplib.CallToolResult{
			Content: []mcplib.Content{
				mcplib.TextContent{Type: "text", Text: report},
			},
		}, nil
	case "json":
		data, err := export.JSON(visits)
		if err != nil {
			return errorResult(fmt.Sprintf("export failed: %v", err)), nil
		}
		return &mcplib.CallToolResult{
			Content: []mcplib.Content{
				mcplib.TextContent{Type: "text", Text: string(data)},
			},
		}, nil
	default:
		return errorResult("format must be text or json"), nil
	}
}

func (s *Server) handleConsentState(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	resultData, _ := json.Marshal(model.ConsentResponse{
		State:     s.gate.State(),
		DecidedAt: s.gate.DecidedAt(),
	})

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

// tail returns the last n elements of visits in order.
func tail(visits []model.Visit, n int) []model.Visit {
	if len(visits) <= n {
		return visits
	}
	return visits[len(visits)-n:]
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
