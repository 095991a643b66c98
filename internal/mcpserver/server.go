// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only Raido tools for LLM integration via stdio
// transport. The tools cover the public surface only: the gallery,
// share-link resolution, and the stops and items of public trips.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/tripservice"
)

// Server wraps the MCP server with Raido tools.
type Server struct {
	mcp *server.MCPServer
	svc *tripservice.Service
}

// New creates a new MCP server with all Raido tools registered.
func New(svc *tripservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_public_trips",
		mcp.WithDescription("List publicly visible trips, paged. Returns the standard "+
			"pagination envelope with trip summaries in data."),
		mcp.WithNumber("page", mcp.Description("Page number, 1-based (default 1)")),
		mcp.WithNumber("limit", mcp.Description("Page size, capped at 100 (default 20)")),
	), s.listPublicTrips)

	s.mcp.AddTool(mcp.NewTool("get_shared_trip",
		mcp.WithDescription("Resolve a share link token into the full read-only trip "+
			"projection, stops included. Works for any trip whose link is still valid, "+
			"regardless of visibility."),
		mcp.WithString("token", mcp.Required(), mcp.Description("Share token from a trip link")),
	), s.getSharedTrip)

	s.mcp.AddTool(mcp.NewTool("get_trip_stops",
		mcp.WithDescription("List the stops of a public trip in itinerary order."),
		mcp.WithString("trip_id", mcp.Required(), mcp.Description("Trip id (24 hex characters)")),
	), s.getTripStops)

	s.mcp.AddTool(mcp.NewTool("get_stop_items",
		mcp.WithDescription("List the itinerary items of a stop on a public trip, ordered "+
			"by day and position. Item structure follows the planning contract; read it "+
			"first via the get_planning_contract tool or the raido://itinerary-format resource."),
		mcp.WithString("stop_id", mcp.Required(), mcp.Description("Stop id (24 hex characters)")),
		mcp.WithNumber("day", mcp.Description("Optional day filter, 0-based from arrival")),
		mcp.WithString("category", mcp.Description("Optional category filter, one of the contract's closed set")),
	), s.getStopItems)

	s.mcp.AddTool(mcp.NewTool("get_planning_contract",
		mcp.WithDescription("Returns the canonical Raido itinerary structure contract. "+
			"Call this before interpreting trips, stops or items to understand days, "+
			"positions and categories."),
	), s.getPlanningContract)

	// Resource: itinerary structure contract.
	s.mcp.AddResource(
		mcp.NewResource("raido://itinerary-format", "Itinerary Format Contract",
			mcp.WithResourceDescription("Canonical trip/stop/item structure all itineraries follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readItineraryFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listPublicTrips(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page := req.GetInt("page", 1)
	limit := req.GetInt("limit", 20)

	res, err := s.svc.PublicTrips(ctx, page, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getSharedTrip(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	trip, err := s.svc.ResolveShare(ctx, token)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(trip, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getTripStops(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tripID, err := req.RequireString("trip_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stops, err := s.svc.TripStops(ctx, tripID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(stops, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getStopItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stopID, err := req.RequireString("stop_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var day *int
	if _, ok := req.GetArguments()["day"]; ok {
		d := req.GetInt("day", 0)
		day = &d
	}
	items, err := s.svc.StopItems(ctx, stopID, day, req.GetString("category", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getPlanningContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ItineraryFormatContract), nil
}

func (s *Server) readItineraryFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "raido://itinerary-format",
			MIMEType: "text/markdown",
			Text:     ItineraryFormatContract,
		},
	}, nil
}
