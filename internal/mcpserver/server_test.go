package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/raido/internal/auth"
	"github.com/starford/raido/internal/cache"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/ordering"
	"github.com/starford/raido/internal/store"
	"github.com/starford/raido/internal/tripservice"
)

func testServer(t *testing.T) (*Server, *tripservice.Service) {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	st := store.NewMemory()
	coord := cache.New(cache.NewMemoryBackend(), cache.DefaultTTLs(), logger)
	svc := tripservice.NewService(st, ordering.NewEngine(st), coord, nil, logger)
	return New(svc), svc
}

// owner is an authenticated context for seeding fixtures; the tools
// themselves run without an actor, like the stdio transport does.
func owner() context.Context {
	return auth.WithActor(context.Background(), auth.Actor{ID: "alice", Role: auth.RoleUser})
}

func seedTrip(t *testing.T, svc *tripservice.Service, name, visibility string) *models.Trip {
	t.Helper()
	trip, err := svc.CreateTrip(owner(), &models.Trip{
		Name:       name,
		StartDate:  time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		Visibility: visibility,
	})
	if err != nil {
		t.Fatalf("seed trip: %v", err)
	}
	return trip
}

func seedStop(t *testing.T, svc *tripservice.Service, tripID, city string) *models.Stop {
	t.Helper()
	stop, err := svc.CreateStop(owner(), tripID, &models.Stop{
		City:          city,
		Lat:           35.0,
		Lon:           135.7,
		ArrivalDate:   time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		DepartureDate: time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed stop: %v", err)
	}
	return stop
}

func seedItem(t *testing.T, svc *tripservice.Service, stopID string, day int, title string) *models.Item {
	t.Helper()
	item, err := svc.CreateItem(owner(), stopID, &models.Item{
		Title:    title,
		Day:      day,
		Category: models.CategorySightseeing,
	})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so we hit the
	// handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_public_trips":
		result, err = srv.listPublicTrips(ctx, req)
	case "get_shared_trip":
		result, err = srv.getSharedTrip(ctx, req)
	case "get_trip_stops":
		result, err = srv.getTripStops(ctx, req)
	case "get_stop_items":
		result, err = srv.getStopItems(ctx, req)
	case "get_planning_contract":
		result, err = srv.getPlanningContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListPublicTrips(t *testing.T) {
	srv, svc := testServer(t)
	seedTrip(t, svc, "Gallery trip", models.VisibilityPublic)
	seedTrip(t, svc, "Secret trip", models.VisibilityPrivate)

	r := callTool(t, srv, "list_public_trips", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("tool errored: %s", resultText(r))
	}

	var page struct {
		TotalItems int64         `json:"total_items"`
		Data       []models.Trip `json:"data"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &page); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if page.TotalItems != 1 || len(page.Data) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Data[0].Name != "Gallery trip" {
		t.Errorf("trip name = %q", page.Data[0].Name)
	}
}

func TestGetSharedTrip(t *testing.T) {
	srv, svc := testServer(t)
	trip := seedTrip(t, svc, "Kansai", models.VisibilityPrivate)
	seedStop(t, svc, trip.ID, "Kyoto")

	shared, err := svc.ShareTrip(owner(), trip.ID, nil)
	if err != nil {
		t.Fatalf("share: %v", err)
	}

	r := callTool(t, srv, "get_shared_trip", map[string]interface{}{
		"token": shared.ShareToken,
	})
	if r.IsError {
		t.Fatalf("tool errored: %s", resultText(r))
	}

	var pub models.PublicTrip
	if err := json.Unmarshal([]byte(resultText(r)), &pub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pub.Name != "Kansai" || len(pub.Stops) != 1 {
		t.Fatalf("unexpected projection: %+v", pub)
	}
}

func TestGetSharedTripUnknownToken(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_shared_trip", map[string]interface{}{
		"token": "no-such-token",
	})
	if !r.IsError {
		t.Error("expected error for unknown token")
	}
}

func TestGetTripStopsVisibility(t *testing.T) {
	srv, svc := testServer(t)
	pub := seedTrip(t, svc, "Open", models.VisibilityPublic)
	seedStop(t, svc, pub.ID, "Kyoto")
	seedStop(t, svc, pub.ID, "Osaka")
	priv := seedTrip(t, svc, "Closed", models.VisibilityPrivate)
	seedStop(t, svc, priv.ID, "Nara")

	r := callTool(t, srv, "get_trip_stops", map[string]interface{}{"trip_id": pub.ID})
	if r.IsError {
		t.Fatalf("tool errored: %s", resultText(r))
	}
	var stops []models.Stop
	if err := json.Unmarshal([]byte(resultText(r)), &stops); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(stops) != 2 || stops[0].City != "Kyoto" {
		t.Fatalf("unexpected stops: %+v", stops)
	}

	// Private trips stay invisible to the anonymous tool surface.
	r = callTool(t, srv, "get_trip_stops", map[string]interface{}{"trip_id": priv.ID})
	if !r.IsError {
		t.Error("expected error for private trip")
	}
}

func TestGetStopItemsDayFilter(t *testing.T) {
	srv, svc := testServer(t)
	trip := seedTrip(t, svc, "Open", models.VisibilityPublic)
	stop := seedStop(t, svc, trip.ID, "Kyoto")
	seedItem(t, svc, stop.ID, 0, "Fushimi Inari")
	seedItem(t, svc, stop.ID, 0, "Kinkaku-ji")
	seedItem(t, svc, stop.ID, 1, "Nishiki market")

	r := callTool(t, srv, "get_stop_items", map[string]interface{}{"stop_id": stop.ID})
	var items []models.Item
	if err := json.Unmarshal([]byte(resultText(r)), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("full list has %d items, want 3", len(items))
	}

	r = callTool(t, srv, "get_stop_items", map[string]interface{}{
		"stop_id": stop.ID,
		"day":     1,
	})
	items = nil
	if err := json.Unmarshal([]byte(resultText(r)), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Nishiki market" {
		t.Fatalf("unexpected day view: %+v", items)
	}

	// Category narrows the same surface.
	if _, err := svc.CreateItem(owner(), stop.ID, &models.Item{
		Title: "Ramen", Day: 0, Category: models.CategoryFood,
	}); err != nil {
		t.Fatalf("seed food item: %v", err)
	}
	r = callTool(t, srv, "get_stop_items", map[string]interface{}{
		"stop_id":  stop.ID,
		"category": models.CategoryFood,
	})
	items = nil
	if err := json.Unmarshal([]byte(resultText(r)), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Ramen" {
		t.Fatalf("unexpected category view: %+v", items)
	}
}

func TestPlanningContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_planning_contract", map[string]interface{}{})
	text := resultText(r)
	for _, want := range []string{"sightseeing", "position", "day 0"} {
		if !strings.Contains(text, want) {
			t.Errorf("contract missing %q", want)
		}
	}
}
