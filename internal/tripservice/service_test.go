package tripservice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/auth"
	"github.com/starford/raido/internal/cache"
	"github.com/starford/raido/internal/events"
	"github.com/starford/raido/internal/ident"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/ordering"
	"github.com/starford/raido/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type harness struct {
	svc     *Service
	store   *store.Memory
	backend *cache.MemoryBackend
	broker  *events.Broker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.NewMemory()
	backend := cache.NewMemoryBackend()
	broker := events.NewBroker()
	t.Cleanup(broker.Close)
	svc := NewService(st, ordering.NewEngine(st), cache.New(backend, cache.DefaultTTLs(), testLogger()), broker, testLogger())
	return &harness{svc: svc, store: st, backend: backend, broker: broker}
}

func asUser(id string) context.Context {
	return auth.WithActor(context.Background(), auth.Actor{ID: id, Role: auth.RoleUser})
}

func asAdmin(id string) context.Context {
	return auth.WithActor(context.Background(), auth.Actor{ID: id, Role: auth.RoleAdmin})
}

func mkTrip(t *testing.T, h *harness, ctx context.Context, name, visibility string) *models.Trip {
	t.Helper()
	trip, err := h.svc.CreateTrip(ctx, &models.Trip{
		Name:       name,
		StartDate:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC),
		Visibility: visibility,
	})
	if err != nil {
		t.Fatalf("create trip %s: %v", name, err)
	}
	return trip
}

func mkStop(t *testing.T, h *harness, ctx context.Context, tripID, city string) *models.Stop {
	t.Helper()
	stop, err := h.svc.CreateStop(ctx, tripID, &models.Stop{
		City:          city,
		ArrivalDate:   time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC),
		DepartureDate: time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create stop %s: %v", city, err)
	}
	return stop
}

func mkItem(t *testing.T, h *harness, ctx context.Context, stopID string, day int, title string) *models.Item {
	t.Helper()
	item, err := h.svc.CreateItem(ctx, stopID, &models.Item{
		Title:    title,
		Day:      day,
		Category: models.CategorySightseeing,
	})
	if err != nil {
		t.Fatalf("create item %s: %v", title, err)
	}
	return item
}

func TestCreateTripDefaults(t *testing.T) {
	h := newHarness(t)
	ctx := asUser("alice")

	trip, err := h.svc.CreateTrip(ctx, &models.Trip{
		OwnerID:   "mallory",
		Name:      "Summer",
		StartDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if trip.OwnerID != "alice" {
		t.Fatalf("owner = %q, want alice (supplied owner must be ignored)", trip.OwnerID)
	}
	if trip.Visibility != models.VisibilityPrivate {
		t.Fatalf("visibility = %q, want private default", trip.Visibility)
	}
	if trip.ID == "" {
		t.Fatal("trip id not assigned")
	}
}

func TestCreateTripRequiresAuth(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CreateTrip(context.Background(), &models.Trip{Name: "X"})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestCreateTripDateWindow(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CreateTrip(asUser("alice"), &models.Trip{
		Name:      "Backwards",
		StartDate: time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestTripVisibility(t *testing.T) {
	h := newHarness(t)
	owner := asUser("alice")
	private := mkTrip(t, h, owner, "Private", models.VisibilityPrivate)
	public := mkTrip(t, h, owner, "Public", models.VisibilityPublic)

	cases := []struct {
		name    string
		ctx     context.Context
		tripID  string
		wantErr error
	}{
		{"owner reads private", owner, private.ID, nil},
		{"stranger denied private", asUser("bob"), private.ID, apperr.ErrForbidden},
		{"anonymous denied private", context.Background(), private.ID, apperr.ErrForbidden},
		{"admin reads private", asAdmin("root"), private.ID, nil},
		{"stranger reads public", asUser("bob"), public.ID, nil},
		{"anonymous reads public", context.Background(), public.ID, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Trip(tc.ctx, tc.tripID)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("err = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestTripExistenceHidden(t *testing.T) {
	h := newHarness(t)
	missing := ident.New()

	if _, err := h.svc.Trip(asUser("alice"), missing); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("user err = %v, want forbidden", err)
	}
	if _, err := h.svc.Trip(context.Background(), missing); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("anonymous err = %v, want forbidden", err)
	}
	if _, err := h.svc.Trip(asAdmin("root"), missing); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("admin err = %v, want genuine not found", err)
	}
}

func TestTripRedactsShareCredentials(t *testing.T) {
	h := newHarness(t)
	owner := asUser("alice")
	trip := mkTrip(t, h, owner, "Shared", models.VisibilityPublic)
	if _, err := h.svc.ShareTrip(owner, trip.ID, nil); err != nil {
		t.Fatalf("share: %v", err)
	}

	got, err := h.svc.Trip(asUser("bob"), trip.ID)
	if err != nil {
		t.Fatalf("stranger read: %v", err)
	}
	if got.ShareToken != "" || got.ShareExpiresAt != nil {
		t.Fatal("share credentials leaked to a non-owner")
	}

	got, err = h.svc.Trip(owner, trip.ID)
	if err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if got.ShareToken == "" {
		t.Fatal("owner must still see the share token")
	}
}

func TestUpdateTripOwnerOnly(t *testing.T) {
	h := newHarness(t)
	trip := mkTrip(t, h, asUser("alice"), "Mine", models.VisibilityPrivate)
	name := "Renamed"

	if _, err := h.svc.UpdateTrip(asUser("bob"), trip.ID, models.TripPatch{Name: &name}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger err = %v, want forbidden", err)
	}
	if _, err := h.svc.UpdateTrip(asAdmin("root"), trip.ID, models.TripPatch{Name: &name}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("admin write err = %v, want forbidden (admins read, never write)", err)
	}
	got, err := h.svc.UpdateTrip(asUser("alice"), trip.ID, models.TripPatch{Name: &name})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if got.Name != "Renamed" {
		t.Fatalf("name = %q, want Renamed", got.Name)
	}
}

func TestUpdateTripValidation(t *testing.T) {
	h := newHarness(t)
	ctx := asUser("alice")
	trip := mkTrip(t, h, ctx, "Window", models.VisibilityPrivate)

	if _, err := h.svc.UpdateTrip(ctx, trip.ID, models.TripPatch{}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("empty patch err = %v, want validation", err)
	}

	// The new end lands before the untouched start; the merged window
	// must be rejected even though the patch alone looks fine.
	before := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if _, err := h.svc.UpdateTrip(ctx, trip.ID, models.TripPatch{EndDate: &before}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("merged window err = %v, want validation", err)
	}
}

func TestUserTripsCached(t *testing.T) {
	h := newHarness(t)
	ctx := asUser("alice")
	mkTrip(t, h, ctx, "One", models.VisibilityPrivate)
	mkTrip(t, h, ctx, "Two", models.VisibilityPrivate)

	page, err := h.svc.UserTrips(ctx, 1, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalItems != 2 {
		t.Fatalf("total = %d, want 2", page.TotalItems)
	}

	// A write that bypasses the service leaves the cached page stale.
	if err := h.store.CreateTrip(context.Background(), &models.Trip{
		OwnerID: "alice", Name: "Smuggled", Visibility: models.VisibilityPrivate,
	}); err != nil {
		t.Fatalf("direct create: %v", err)
	}
	page, err = h.svc.UserTrips(ctx, 1, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalItems != 2 {
		t.Fatalf("total = %d, want stale 2 from cache", page.TotalItems)
	}

	// A service write invalidates; the next list sees everything.
	mkTrip(t, h, ctx, "Three", models.VisibilityPrivate)
	page, err = h.svc.UserTrips(ctx, 1, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalItems != 4 {
		t.Fatalf("total = %d, want 4 after invalidation", page.TotalItems)
	}
}

func TestUserTripsEnvelope(t *testing.T) {
	h := newHarness(t)
	ctx := asUser("alice")
	for _, name := range []string{"A", "B", "C"} {
		mkTrip(t, h, ctx, name, models.VisibilityPrivate)
	}

	page, err := h.svc.UserTrips(ctx, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Page != 1 || page.Limit != 2 || page.TotalItems != 3 || page.TotalPages != 2 {
		t.Fatalf("envelope = %+v", page)
	}
	if !page.HasNext || page.HasPrev {
		t.Fatalf("has_next=%v has_prev=%v, want true/false", page.HasNext, page.HasPrev)
	}

	// Out-of-range inputs clamp instead of failing.
	page, err = h.svc.UserTrips(ctx, 0, 1000)
	if err != nil {
		t.Fatalf("clamped list: %v", err)
	}
	if page.Page != 1 || page.Limit != models.MaxPageLimit {
		t.Fatalf("page=%d limit=%d, want 1/%d", page.Page, page.Limit, models.MaxPageLimit)
	}
}

func TestPublicTripsRedacted(t *testing.T) {
	h := newHarness(t)
	owner := asUser("alice")
	trip := mkTrip(t, h, owner, "Gallery", models.VisibilityPublic)
	mkTrip(t, h, owner, "Hidden", models.VisibilityPrivate)
	if _, err := h.svc.ShareTrip(owner, trip.ID, nil); err != nil {
		t.Fatalf("share: %v", err)
	}

	page, err := h.svc.PublicTrips(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("public list: %v", err)
	}
	if page.TotalItems != 1 {
		t.Fatalf("total = %d, want only the public trip", page.TotalItems)
	}
	trips, ok := page.Data.([]models.Trip)
	if !ok {
		t.Fatalf("data type %T, want []models.Trip on a fresh load", page.Data)
	}
	if trips[0].ShareToken != "" || trips[0].ShareExpiresAt != nil {
		t.Fatal("share credentials leaked into the public gallery")
	}
}

func TestDeleteTripInvalidates(t *testing.T) {
	h := newHarness(t)
	ctx := asUser("alice")
	trip := mkTrip(t, h, ctx, "Doomed", models.VisibilityPrivate)
	stop := mkStop(t, h, ctx, trip.ID, "Lisbon")
	mkItem(t, h, ctx, stop.ID, 0, "Tram 28")

	// Prime the per-trip caches.
	if _, err := h.svc.TripStops(ctx, trip.ID); err != nil {
		t.Fatalf("stops: %v", err)
	}
	if _, err := h.svc.StopItems(ctx, stop.ID, nil, ""); err != nil {
		t.Fatalf("items: %v", err)
	}
	if _, err := h.backend.Get(context.Background(), cache.StopsKey(trip.ID)); err != nil {
		t.Fatalf("stops cache not primed: %v", err)
	}

	if err := h.svc.DeleteTrip(ctx, trip.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.backend.Get(context.Background(), cache.StopsKey(trip.ID)); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("stops cache survived delete: %v", err)
	}
	if _, err := h.backend.Get(context.Background(), cache.ItemsKey(stop.ID)); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("items cache survived delete: %v", err)
	}
	if _, err := h.svc.Trip(ctx, trip.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("read after delete = %v, want forbidden-shaped miss", err)
	}
}

func TestShareLifecycle(t *testing.T) {
	h := newHarness(t)
	owner := asUser("alice")
	trip := mkTrip(t, h, owner, "Roadtrip", models.VisibilityPrivate)
	mkStop(t, h, owner, trip.ID, "Porto")

	shared, err := h.svc.ShareTrip(owner, trip.ID, nil)
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if shared.ShareToken == "" || shared.ShareExpiresAt != nil {
		t.Fatalf("share token %q expiry %v, want token with no expiry", shared.ShareToken, shared.ShareExpiresAt)
	}

	// Anyone holding the token resolves the projection, private or not.
	pt, err := h.svc.ResolveShare(context.Background(), shared.ShareToken)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pt.ID != trip.ID || len(pt.Stops) != 1 {
		t.Fatalf("projection = %+v", pt)
	}

	// Rotation kills the old link immediately, cached copy included.
	rotated, err := h.svc.ShareTrip(owner, trip.ID, nil)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.ShareToken == shared.ShareToken {
		t.Fatal("rotation reissued the same token")
	}
	if _, err := h.backend.Get(context.Background(), cache.PublicTripKey(shared.ShareToken)); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("old projection still cached: %v", err)
	}
	if _, err := h.svc.ResolveShare(context.Background(), shared.ShareToken); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("old token resolve = %v, want not found", err)
	}

	// Revoking clears the token; revoking again stays a quiet no-op.
	revoked, err := h.svc.RevokeShare(owner, trip.ID)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.ShareToken != "" {
		t.Fatalf("token = %q after revoke", revoked.ShareToken)
	}
	if _, err := h.svc.ResolveShare(context.Background(), rotated.ShareToken); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("revoked token resolve = %v, want not found", err)
	}
	if _, err := h.svc.RevokeShare(owner, trip.ID); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
}

func TestShareExpiry(t *testing.T) {
	h := newHarness(t)
	owner := asUser("alice")
	trip := mkTrip(t, h, owner, "Flash", models.VisibilityPrivate)

	ttl := -time.Hour // already expired by the time anyone resolves it
	shared, err := h.svc.ShareTrip(owner, trip.ID, &ttl)
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if _, err := h.svc.ResolveShare(context.Background(), shared.ShareToken); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expired resolve = %v, want not found", err)
	}
}

func TestResolveShareMalformedToken(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.ResolveShare(context.Background(), "not-a-token"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestResolveShareCountsViews(t *testing.T) {
	h := newHarness(t)
	owner := asUser("alice")
	trip := mkTrip(t, h, owner, "Counted", models.VisibilityPrivate)
	shared, err := h.svc.ShareTrip(owner, trip.ID, nil)
	if err != nil {
		t.Fatalf("share: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := h.svc.ResolveShare(context.Background(), shared.ShareToken); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	got, err := h.svc.Trip(owner, trip.ID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ViewCount != 3 {
		t.Fatalf("view count = %d, want 3 (cache hits count too)", got.ViewCount)
	}
}

func TestSharedProjectionTracksStops(t *testing.T) {
	h := newHarness(t)
	owner := asUser("alice")
	trip := mkTrip(t, h, owner, "Growing", models.VisibilityPrivate)
	mkStop(t, h, owner, trip.ID, "Seville")
	shared, err := h.svc.ShareTrip(owner, trip.ID, nil)
	if err != nil {
		t.Fatalf("share: %v", err)
	}

	pt, err := h.svc.ResolveShare(context.Background(), shared.ShareToken)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(pt.Stops) != 1 {
		t.Fatalf("stops = %d, want 1", len(pt.Stops))
	}

	mkStop(t, h, owner, trip.ID, "Granada")
	pt, err = h.svc.ResolveShare(context.Background(), shared.ShareToken)
	if err != nil {
		t.Fatalf("resolve after stop create: %v", err)
	}
	if len(pt.Stops) != 2 {
		t.Fatalf("stops = %d, want 2 (stop writes must refresh the projection)", len(pt.Stops))
	}
}

func TestStopsAppendAndReorder(t *testing.T) {
	h := newHarness(t)
	ctx := asUser("alice")
	trip := mkTrip(t, h, ctx, "Route", models.VisibilityPrivate)
	s1 := mkStop(t, h, ctx, trip.ID, "Kyoto")
	s2 := mkStop(t, h, ctx, trip.ID, "Osaka")
	s3 := mkStop(t, h, ctx, trip.ID, "Nara")

	if s1.Position != 1 || s2.Position != 2 || s3.Position != 3 {
		t.Fatalf("positions = %d,%d,%d, want 1,2,3", s1.Position, s2.Position, s3.Position)
	}

	err := h.svc.ReorderStops(ctx, trip.ID, []store.PositionPair{
		{ID: s3.ID, Position: 1},
		{ID: s1.ID, Position: 2},
		{ID: s2.ID, Position: 3},
	})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	stops, err := h.svc.TripStops(ctx, trip.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := make([]string, len(stops))
	for i, st := range stops {
		got[i] = st.City
	}
	if strings.Join(got, ",") != "Nara,Kyoto,Osaka" {
		t.Fatalf("order = %v", got)
	}
}

func TestReorderStopsForeignID(t *testing.T) {
	h := newHarness(t)
	ctx := asUser("alice")
	trip := mkTrip(t, h, ctx, "Tight", models.VisibilityPrivate)
	mine := mkStop(t, h, ctx, trip.ID, "Bergen")

	other := mkTrip(t, h, ctx, "Other", models.VisibilityPrivate)
	alien := mkStop(t, h, ctx, other.ID, "Oslo")

	err := h.svc.ReorderStops(ctx, trip.ID, []store.PositionPair{
		{ID: mine.ID, Position: 2},
		{ID: alien.ID, Position: 1},
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found naming the foreign stop", err)
	}
	stops, err := h.svc.TripStops(ctx, trip.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if stops[0].Position != 1 {
		t.Fatalf("position = %d, the failed batch must change nothing", stops[0].Position)
	}
}

func TestStopOwnershipWalksToTrip(t *testing.T) {
	h := newHarness(t)
	stop := mkStop(t, h, asUser("alice"), mkTrip(t, h, asUser("alice"), "A", models.VisibilityPrivate).ID, "Vienna")
	notes := "forged"

	if _, err := h.svc.UpdateStop(asUser("bob"), stop.ID, models.StopPatch{Notes: &notes}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger stop write = %v, want forbidden", err)
	}
	if err := h.svc.DeleteStop(asUser("bob"), stop.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger stop delete = %v, want forbidden", err)
	}
}

func TestTripStopsPublicAccess(t *testing.T) {
	h := newHarness(t)
	owner := asUser("alice")
	trip := mkTrip(t, h, owner, "Open", models.VisibilityPublic)
	mkStop(t, h, owner, trip.ID, "Tallinn")

	stops, err := h.svc.TripStops(context.Background(), trip.ID)
	if err != nil {
		t.Fatalf("anonymous stops: %v", err)
	}
	if len(stops) != 1 {
		t.Fatalf("stops = %d, want 1", len(stops))
	}
}

func TestItemsDayScoped(t *testing.T) {
	h := newHarness(t)
	ctx := asUser("alice")
	trip := mkTrip(t, h, ctx, "Days", models.VisibilityPrivate)
	stop := mkStop(t, h, ctx, trip.ID, "Rome")
	i0a := mkItem(t, h, ctx, stop.ID, 0, "Forum")
	i0b := mkItem(t, h, ctx, stop.ID, 0, "Colosseum")
	i1 := mkItem(t, h, ctx, stop.ID, 1, "Vatican")

	if i0a.Position != 1 || i0b.Position != 2 {
		t.Fatalf("day 0 positions = %d,%d, want 1,2", i0a.Position, i0b.Position)
	}
	if i1.Position != 1 {
		t.Fatalf("day 1 position = %d, want its own sequence starting at 1", i1.Position)
	}

	day := 0
	items, err := h.svc.StopItems(ctx, stop.ID, &day, "")
	if err != nil {
		t.Fatalf("day list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("day 0 items = %d, want 2", len(items))
	}

	// Reordering day 0 may not touch day 1's item.
	err = h.svc.ReorderItems(ctx, stop.ID, 0, []store.PositionPair{
		{ID: i0b.ID, Position: 1},
		{ID: i0a.ID, Position: 2},
	})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	err = h.svc.ReorderItems(ctx, stop.ID, 0, []store.PositionPair{
		{ID: i1.ID, Position: 1},
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("cross-day reorder = %v, want not found", err)
	}
}

func TestItemDayMoveKeepsPosition(t *testing.T) {
	h := newHarness(t)
	ctx := asUser("alice")
	trip := mkTrip(t, h, ctx, "Move", models.VisibilityPrivate)
	stop := mkStop(t, h, ctx, trip.ID, "Berlin")
	mkItem(t, h, ctx, stop.ID, 0, "Museum")
	moved := mkItem(t, h, ctx, stop.ID, 0, "Wall")

	day := 3
	got, err := h.svc.UpdateItem(ctx, moved.ID, models.ItemPatch{Day: &day})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if got.Day != 3 || got.Position != moved.Position {
		t.Fatalf("day=%d pos=%d, want day 3 with position %d intact", got.Day, got.Position, moved.Position)
	}
}

func TestStopItemsCacheBypassForDayViews(t *testing.T) {
	h := newHarness(t)
	ctx := asUser("alice")
	trip := mkTrip(t, h, ctx, "Bypass", models.VisibilityPrivate)
	stop := mkStop(t, h, ctx, trip.ID, "Madrid")
	mkItem(t, h, ctx, stop.ID, 0, "Prado")

	if _, err := h.svc.StopItems(ctx, stop.ID, nil, ""); err != nil {
		t.Fatalf("full list: %v", err)
	}

	// Slip one in behind the service's back: the cached full list stays
	// stale, the day view reads the store directly.
	if err := h.store.CreateItem(context.Background(), &models.Item{
		StopID: stop.ID, Title: "Smuggled", Day: 0, Category: models.CategoryOther, Position: 99,
	}); err != nil {
		t.Fatalf("direct create: %v", err)
	}

	full, err := h.svc.StopItems(ctx, stop.ID, nil, "")
	if err != nil {
		t.Fatalf("full list: %v", err)
	}
	if len(full) != 1 {
		t.Fatalf("full list = %d items, want stale 1", len(full))
	}
	day := 0
	fresh, err := h.svc.StopItems(ctx, stop.ID, &day, "")
	if err != nil {
		t.Fatalf("day list: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("day list = %d items, want fresh 2", len(fresh))
	}
}

func TestStopItemsCategoryFilter(t *testing.T) {
	h := newHarness(t)
	ctx := asUser("alice")
	trip := mkTrip(t, h, ctx, "Eats", models.VisibilityPrivate)
	stop := mkStop(t, h, ctx, trip.ID, "Lyon")

	mk := func(title, category string, day int) {
		t.Helper()
		if _, err := h.svc.CreateItem(ctx, stop.ID, &models.Item{Title: title, Day: day, Category: category}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	mk("Bouchon", models.CategoryFood, 0)
	mk("Funicular", models.CategoryTransport, 0)
	mk("Market", models.CategoryFood, 1)

	food, err := h.svc.StopItems(ctx, stop.ID, nil, models.CategoryFood)
	if err != nil {
		t.Fatalf("category list: %v", err)
	}
	if len(food) != 2 {
		t.Fatalf("food items = %d, want 2", len(food))
	}
	for _, it := range food {
		if it.Category != models.CategoryFood {
			t.Errorf("item %s leaked with category %q", it.Title, it.Category)
		}
	}

	// Day and category narrow together.
	day := 0
	d0, err := h.svc.StopItems(ctx, stop.ID, &day, models.CategoryFood)
	if err != nil {
		t.Fatalf("day+category list: %v", err)
	}
	if len(d0) != 1 || d0[0].Title != "Bouchon" {
		t.Fatalf("day 0 food = %+v", d0)
	}

	// No match is an empty list, not an error.
	none, err := h.svc.StopItems(ctx, stop.ID, nil, models.CategoryShopping)
	if err != nil {
		t.Fatalf("empty category: %v", err)
	}
	if len(none) != 0 || none == nil {
		t.Fatalf("no-match listing: len = %d, nil = %v", len(none), none == nil)
	}

	if _, err := h.svc.StopItems(ctx, stop.ID, nil, "snacks"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown category err = %v, want validation", err)
	}
}

func TestSingleEntityReads(t *testing.T) {
	h := newHarness(t)
	owner := asUser("alice")
	trip := mkTrip(t, h, owner, "Solo", models.VisibilityPrivate)
	stop := mkStop(t, h, owner, trip.ID, "Ghent")
	item := mkItem(t, h, owner, stop.ID, 0, "Castle")

	got, err := h.svc.Stop(owner, stop.ID)
	if err != nil {
		t.Fatalf("stop read: %v", err)
	}
	if got.City != "Ghent" {
		t.Fatalf("stop = %+v", got)
	}
	it, err := h.svc.Item(owner, item.ID)
	if err != nil {
		t.Fatalf("item read: %v", err)
	}
	if it.Title != "Castle" {
		t.Fatalf("item = %+v", it)
	}

	// Access is decided at the trip root for both, and absence stays
	// indistinguishable from denial.
	stranger := asUser("mallory")
	if _, err := h.svc.Stop(stranger, stop.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger stop = %v, want forbidden", err)
	}
	if _, err := h.svc.Item(stranger, item.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger item = %v, want forbidden", err)
	}
	if _, err := h.svc.Item(stranger, ident.New()); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("missing item = %v, want forbidden", err)
	}

	// Flipping the trip public opens both to anonymous readers.
	pub := models.VisibilityPublic
	if _, err := h.svc.UpdateTrip(owner, trip.ID, models.TripPatch{Visibility: &pub}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := h.svc.Stop(context.Background(), stop.ID); err != nil {
		t.Fatalf("anonymous stop: %v", err)
	}
	if _, err := h.svc.Item(context.Background(), item.ID); err != nil {
		t.Fatalf("anonymous item: %v", err)
	}
}

func TestAdminStats(t *testing.T) {
	h := newHarness(t)
	owner := asUser("alice")
	trip := mkTrip(t, h, owner, "Stat", models.VisibilityPublic)
	stop := mkStop(t, h, owner, trip.ID, "Athens")
	mkItem(t, h, owner, stop.ID, 0, "Acropolis")

	if _, err := h.svc.AdminStats(owner); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("non-admin err = %v, want forbidden", err)
	}

	admin := asAdmin("root")
	stats, err := h.svc.AdminStats(admin)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := store.Stats{TotalTrips: 1, PublicTrips: 1, TotalStops: 1, TotalItems: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}

	// Creating a trip must drop the cached snapshot.
	mkTrip(t, h, owner, "More", models.VisibilityPrivate)
	stats, err = h.svc.AdminStats(admin)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalTrips != 2 {
		t.Fatalf("total trips = %d, want 2 after invalidation", stats.TotalTrips)
	}
}

func TestAdminTrips(t *testing.T) {
	h := newHarness(t)
	mkTrip(t, h, asUser("alice"), "A", models.VisibilityPrivate)
	mkTrip(t, h, asUser("bob"), "B", models.VisibilityPrivate)

	if _, err := h.svc.AdminTrips(asUser("alice"), 1, 20); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("non-admin err = %v, want forbidden", err)
	}
	page, err := h.svc.AdminTrips(asAdmin("root"), 1, 20)
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if page.TotalItems != 2 {
		t.Fatalf("total = %d, want every owner's trips", page.TotalItems)
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	h := newHarness(t)
	ctx := asUser("alice")
	sub := h.broker.Subscribe("")
	t.Cleanup(func() { h.broker.Unsubscribe(sub) })

	trip := mkTrip(t, h, ctx, "Loud", models.VisibilityPrivate)

	frame := recvFrame(t, sub)
	if !strings.Contains(frame, "event: "+events.TripCreated) {
		t.Fatalf("frame = %q, want %s", frame, events.TripCreated)
	}
	if !strings.Contains(frame, trip.ID) {
		t.Fatalf("frame %q does not carry the trip id", frame)
	}

	stop := mkStop(t, h, ctx, trip.ID, "Bruges")
	if frame := recvFrame(t, sub); !strings.Contains(frame, "event: "+events.StopCreated) {
		t.Fatalf("frame = %q, want %s", frame, events.StopCreated)
	}
	if err := h.svc.ReorderStops(ctx, trip.ID, []store.PositionPair{{ID: stop.ID, Position: 5}}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if frame := recvFrame(t, sub); !strings.Contains(frame, "event: "+events.StopsReordered) {
		t.Fatalf("frame = %q, want %s", frame, events.StopsReordered)
	}
}

func recvFrame(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case b := <-ch:
		return string(b)
	case <-time.After(2 * time.Second):
		t.Fatal("no event within 2s")
		return ""
	}
}
