package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/ident"
	"github.com/starford/raido/internal/models"
)

// Memory is a map-backed Store for tests and single-shot tooling. It
// has no multi-row transactions, so reorder batches use a per-parent
// version counter: stage under a read lock, commit under the write lock
// only if the version is unchanged. The loser of a race gets a conflict
// error and retries with fresh positions, which is the same observable
// contract the SQLite transaction provides.
type Memory struct {
	mu    sync.RWMutex
	trips map[string]*models.Trip
	stops map[string]*models.Stop
	items map[string]*models.Item

	stopRev map[string]uint64 // trip id -> bumped on stop delete/reorder
	itemRev map[string]uint64 // stop id -> bumped on item delete/day move/reorder

	stageHook func() // test seam: runs between stage and commit of a reorder
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		trips:   make(map[string]*models.Trip),
		stops:   make(map[string]*models.Stop),
		items:   make(map[string]*models.Item),
		stopRev: make(map[string]uint64),
		itemRev: make(map[string]uint64),
	}
}

// Close is a no-op for the memory store.
func (m *Memory) Close() error { return nil }

func cloneTrip(t *models.Trip) *models.Trip {
	c := *t
	if t.ShareExpiresAt != nil {
		e := *t.ShareExpiresAt
		c.ShareExpiresAt = &e
	}
	return &c
}

// --- trips ---

func (m *Memory) CreateTrip(_ context.Context, t *models.Trip) error {
	t.ID = ident.New()
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[t.ID] = cloneTrip(t)
	return nil
}

func (m *Memory) TripByID(_ context.Context, id string) (*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, apperr.NotFoundf("trip %s", id)
	}
	return cloneTrip(t), nil
}

func (m *Memory) TripsPaged(_ context.Context, f TripFilter, page, limit int) ([]models.Trip, int64, error) {
	m.mu.RLock()
	matched := make([]*models.Trip, 0, len(m.trips))
	for _, t := range m.trips {
		if f.OwnerID != "" && t.OwnerID != f.OwnerID {
			continue
		}
		if f.PublicOnly && t.Visibility != models.VisibilityPublic {
			continue
		}
		matched = append(matched, t)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := int64(len(matched))
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]models.Trip, 0, end-start)
	for _, t := range matched[start:end] {
		out = append(out, *cloneTrip(t))
	}
	return out, total, nil
}

func (m *Memory) UpdateTrip(_ context.Context, id string, p models.TripPatch) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, apperr.NotFoundf("trip %s", id)
	}
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.StartDate != nil {
		t.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		t.EndDate = *p.EndDate
	}
	if p.Visibility != nil {
		t.Visibility = *p.Visibility
	}
	t.UpdatedAt = time.Now().UTC()
	return cloneTrip(t), nil
}

func (m *Memory) DeleteTrip(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[id]; !ok {
		return apperr.NotFoundf("trip %s", id)
	}
	delete(m.trips, id)
	for sid, st := range m.stops {
		if st.TripID != id {
			continue
		}
		delete(m.stops, sid)
		for iid, it := range m.items {
			if it.StopID == sid {
				delete(m.items, iid)
			}
		}
		m.itemRev[sid]++
	}
	m.stopRev[id]++
	return nil
}

func (m *Memory) TripOwner(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return "", apperr.NotFoundf("trip %s", id)
	}
	return t.OwnerID, nil
}

func (m *Memory) TripByShareToken(_ context.Context, token string) (*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if token == "" {
		return nil, apperr.NotFoundf("share link")
	}
	now := time.Now().UTC()
	for _, t := range m.trips {
		if t.ShareToken != token {
			continue
		}
		if t.ShareExpiresAt != nil && !now.Before(*t.ShareExpiresAt) {
			break // expired behaves as absent
		}
		return cloneTrip(t), nil
	}
	return nil, apperr.NotFoundf("share link")
}

func (m *Memory) SetShareToken(_ context.Context, tripID, token string, expiresAt *time.Time) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return nil, apperr.NotFoundf("trip %s", tripID)
	}
	if token != "" {
		for id, other := range m.trips {
			if id != tripID && other.ShareToken == token {
				return nil, apperr.Conflictf("share token already in use")
			}
		}
	}
	t.ShareToken = token
	if token == "" {
		t.ShareExpiresAt = nil
	} else {
		t.ShareExpiresAt = expiresAt
	}
	t.UpdatedAt = time.Now().UTC()
	return cloneTrip(t), nil
}

func (m *Memory) BumpViewCount(_ context.Context, tripID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return apperr.NotFoundf("trip %s", tripID)
	}
	t.ViewCount++
	return nil
}

// --- stops ---

func (m *Memory) CreateStop(_ context.Context, st *models.Stop) error {
	st.ID = ident.New()
	now := time.Now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[st.TripID]; !ok {
		return apperr.NotFoundf("trip %s", st.TripID)
	}
	c := *st
	m.stops[st.ID] = &c
	return nil
}

func (m *Memory) StopByID(_ context.Context, id string) (*models.Stop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.stops[id]
	if !ok {
		return nil, apperr.NotFoundf("stop %s", id)
	}
	c := *st
	return &c, nil
}

func (m *Memory) StopsByTrip(_ context.Context, tripID string) ([]models.Stop, error) {
	m.mu.RLock()
	out := []models.Stop{}
	for _, st := range m.stops {
		if st.TripID == tripID {
			out = append(out, *st)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateStop(_ context.Context, id string, p models.StopPatch) (*models.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stops[id]
	if !ok {
		return nil, apperr.NotFoundf("stop %s", id)
	}
	if p.City != nil {
		st.City = *p.City
	}
	if p.Lat != nil {
		st.Lat = *p.Lat
	}
	if p.Lon != nil {
		st.Lon = *p.Lon
	}
	if p.ArrivalDate != nil {
		st.ArrivalDate = *p.ArrivalDate
	}
	if p.DepartureDate != nil {
		st.DepartureDate = *p.DepartureDate
	}
	if p.Notes != nil {
		st.Notes = *p.Notes
	}
	st.UpdatedAt = time.Now().UTC()
	c := *st
	return &c, nil
}

func (m *Memory) DeleteStop(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stops[id]
	if !ok {
		return apperr.NotFoundf("stop %s", id)
	}
	delete(m.stops, id)
	for iid, it := range m.items {
		if it.StopID == id {
			delete(m.items, iid)
		}
	}
	m.stopRev[st.TripID]++
	m.itemRev[id]++
	return nil
}

func (m *Memory) MaxStopPosition(_ context.Context, tripID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, st := range m.stops {
		if st.TripID == tripID && st.Position > max {
			max = st.Position
		}
	}
	return max, nil
}

func (m *Memory) ReorderStops(_ context.Context, tripID string, pairs []PositionPair) error {
	// Stage: verify membership and remember the parent version.
	m.mu.RLock()
	if _, ok := m.trips[tripID]; !ok {
		m.mu.RUnlock()
		return apperr.NotFoundf("trip %s", tripID)
	}
	rev := m.stopRev[tripID]
	for _, p := range pairs {
		st, ok := m.stops[p.ID]
		if !ok || st.TripID != tripID {
			m.mu.RUnlock()
			return apperr.NotFoundf("stop %s in trip %s", p.ID, tripID)
		}
	}
	m.mu.RUnlock()

	if m.stageHook != nil {
		m.stageHook()
	}

	// Commit: apply only if nothing changed membership in between.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopRev[tripID] != rev {
		return apperr.Conflictf("trip %s reordered concurrently", tripID)
	}
	// The trip's stops must hold pairwise distinct positions after the
	// batch, counting siblings the batch leaves untouched.
	next := make(map[string]int, len(pairs))
	for _, p := range pairs {
		next[p.ID] = p.Position
	}
	taken := make(map[int]struct{}, len(m.stops))
	for id, st := range m.stops {
		if st.TripID != tripID {
			continue
		}
		pos := st.Position
		if np, ok := next[id]; ok {
			pos = np
		}
		if _, dup := taken[pos]; dup {
			return apperr.Conflictf("position %d would be held by more than one stop in trip %s", pos, tripID)
		}
		taken[pos] = struct{}{}
	}
	now := time.Now().UTC()
	for _, p := range pairs {
		st := m.stops[p.ID]
		st.Position = p.Position
		st.UpdatedAt = now
	}
	m.stopRev[tripID]++
	return nil
}

// --- items ---

func (m *Memory) CreateItem(_ context.Context, it *models.Item) error {
	it.ID = ident.New()
	now := time.Now().UTC()
	it.CreatedAt, it.UpdatedAt = now, now

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stops[it.StopID]; !ok {
		return apperr.NotFoundf("stop %s", it.StopID)
	}
	c := *it
	m.items[it.ID] = &c
	return nil
}

func (m *Memory) ItemByID(_ context.Context, id string) (*models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFoundf("item %s", id)
	}
	c := *it
	return &c, nil
}

func (m *Memory) ItemsByStop(_ context.Context, stopID string, day *int) ([]models.Item, error) {
	m.mu.RLock()
	out := []models.Item{}
	for _, it := range m.items {
		if it.StopID != stopID {
			continue
		}
		if day != nil && it.Day != *day {
			continue
		}
		out = append(out, *it)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateItem(_ context.Context, id string, p models.ItemPatch) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFoundf("item %s", id)
	}
	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Day != nil && *p.Day != it.Day {
		it.Day = *p.Day
		m.itemRev[it.StopID]++ // day membership changed under any staged reorder
	}
	if p.StartTime != nil {
		it.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		it.EndTime = *p.EndTime
	}
	if p.Category != nil {
		it.Category = *p.Category
	}
	if p.Cost != nil {
		it.Cost = *p.Cost
	}
	if p.Notes != nil {
		it.Notes = *p.Notes
	}
	it.UpdatedAt = time.Now().UTC()
	c := *it
	return &c, nil
}

func (m *Memory) DeleteItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return apperr.NotFoundf("item %s", id)
	}
	delete(m.items, id)
	m.itemRev[it.StopID]++
	return nil
}

func (m *Memory) MaxItemPosition(_ context.Context, stopID string, day int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, it := range m.items {
		if it.StopID == stopID && it.Day == day && it.Position > max {
			max = it.Position
		}
	}
	return max, nil
}

func (m *Memory) ReorderItems(_ context.Context, stopID string, day int, pairs []PositionPair) error {
	m.mu.RLock()
	if _, ok := m.stops[stopID]; !ok {
		m.mu.RUnlock()
		return apperr.NotFoundf("stop %s", stopID)
	}
	rev := m.itemRev[stopID]
	for _, p := range pairs {
		it, ok := m.items[p.ID]
		if !ok || it.StopID != stopID || it.Day != day {
			m.mu.RUnlock()
			return apperr.NotFoundf("item %s on day %d of stop %s", p.ID, day, stopID)
		}
	}
	m.mu.RUnlock()

	if m.stageHook != nil {
		m.stageHook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.itemRev[stopID] != rev {
		return apperr.Conflictf("stop %s items reordered concurrently", stopID)
	}
	// Same sweep as stops, scoped to the one (stop, day) sequence.
	next := make(map[string]int, len(pairs))
	for _, p := range pairs {
		next[p.ID] = p.Position
	}
	taken := make(map[int]struct{}, len(m.items))
	for id, it := range m.items {
		if it.StopID != stopID || it.Day != day {
			continue
		}
		pos := it.Position
		if np, ok := next[id]; ok {
			pos = np
		}
		if _, dup := taken[pos]; dup {
			return apperr.Conflictf("position %d would be held by more than one item on day %d of stop %s", pos, day, stopID)
		}
		taken[pos] = struct{}{}
	}
	now := time.Now().UTC()
	for _, p := range pairs {
		it := m.items[p.ID]
		it.Position = p.Position
		it.UpdatedAt = now
	}
	m.itemRev[stopID]++
	return nil
}

// --- stats ---

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{
		TotalTrips: int64(len(m.trips)),
		TotalStops: int64(len(m.stops)),
		TotalItems: int64(len(m.items)),
	}
	for _, t := range m.trips {
		if t.Visibility == models.VisibilityPublic {
			st.PublicTrips++
		}
	}
	return st, nil
}
