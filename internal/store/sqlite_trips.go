package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/ident"
	"github.com/starford/raido/internal/models"
)

const tripCols = `id, owner_id, name, description, start_date, end_date,
	visibility, share_token, share_expires_at, view_count, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrip(row scanner) (*models.Trip, error) {
	var t models.Trip
	var exp sql.NullTime
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Description, &t.StartDate, &t.EndDate,
		&t.Visibility, &t.ShareToken, &exp, &t.ViewCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ShareExpiresAt = timePtr(exp)
	return &t, nil
}

// CreateTrip inserts a trip, assigning its id and timestamps in place.
func (s *SQLite) CreateTrip(ctx context.Context, t *models.Trip) error {
	t.ID = ident.New()
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO trips (`+tripCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.OwnerID, t.Name, t.Description, t.StartDate, t.EndDate,
		t.Visibility, t.ShareToken, nullableTime(t.ShareExpiresAt), t.ViewCount, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create trip: %w", translateErr(err))
	}
	return nil
}

// TripByID returns the trip or a not-found error.
func (s *SQLite) TripByID(ctx context.Context, id string) (*models.Trip, error) {
	t, err := scanTrip(s.conn.QueryRowContext(ctx, `SELECT `+tripCols+` FROM trips WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("trip %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: trip by id: %w", err)
	}
	return t, nil
}

func tripWhere(f TripFilter) (string, []any) {
	var conds []string
	var args []any
	if f.OwnerID != "" {
		conds = append(conds, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.PublicOnly {
		conds = append(conds, "visibility = ?")
		args = append(args, models.VisibilityPublic)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// TripsPaged returns one page of trips, newest first, plus the total
// match count from a separate query against the same filter.
func (s *SQLite) TripsPaged(ctx context.Context, f TripFilter, page, limit int) ([]models.Trip, int64, error) {
	where, args := tripWhere(f)

	var total int64
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count trips: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+tripCols+` FROM trips`+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list trips: %w", err)
	}
	defer rows.Close()

	trips := []models.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: scan trip: %w", err)
		}
		trips = append(trips, *t)
	}
	return trips, total, rows.Err()
}

// UpdateTrip applies a partial update; nil patch fields stay untouched.
func (s *SQLite) UpdateTrip(ctx context.Context, id string, p models.TripPatch) (*models.Trip, error) {
	var c setClause
	if p.Name != nil {
		c.add("name", *p.Name)
	}
	if p.Description != nil {
		c.add("description", *p.Description)
	}
	if p.StartDate != nil {
		c.add("start_date", *p.StartDate)
	}
	if p.EndDate != nil {
		c.add("end_date", *p.EndDate)
	}
	if p.Visibility != nil {
		c.add("visibility", *p.Visibility)
	}
	c.add("updated_at", time.Now().UTC())

	res, err := s.conn.ExecContext(ctx, `UPDATE trips SET `+c.sql()+` WHERE id = ?`, append(c.args, id)...)
	if err != nil {
		return nil, fmt.Errorf("store: update trip: %w", translateErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFoundf("trip %s", id)
	}
	return s.TripByID(ctx, id)
}

// DeleteTrip removes a trip; the schema cascades to its stops and items.
func (s *SQLite) DeleteTrip(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM trips WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete trip: %w", translateErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("trip %s", id)
	}
	return nil
}

// TripOwner resolves ownership at the trip root. Stops and items
// authorize through this, never through a denormalized owner column.
func (s *SQLite) TripOwner(ctx context.Context, id string) (string, error) {
	var owner string
	err := s.conn.QueryRowContext(ctx, `SELECT owner_id FROM trips WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFoundf("trip %s", id)
	}
	if err != nil {
		return "", fmt.Errorf("store: trip owner: %w", err)
	}
	return owner, nil
}

// TripByShareToken resolves a live share link. Expiry is enforced in
// the query, so an expired token is indistinguishable from a missing one.
func (s *SQLite) TripByShareToken(ctx context.Context, token string) (*models.Trip, error) {
	t, err := scanTrip(s.conn.QueryRowContext(ctx, `
		SELECT `+tripCols+` FROM trips
		WHERE share_token = ? AND share_token != ''
		  AND (share_expires_at IS NULL OR share_expires_at > ?)
	`, token, time.Now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("share link")
	}
	if err != nil {
		return nil, fmt.Errorf("store: trip by share token: %w", err)
	}
	return t, nil
}

// SetShareToken rotates (or, with an empty token, revokes) a trip's
// share link.
func (s *SQLite) SetShareToken(ctx context.Context, tripID, token string, expiresAt *time.Time) (*models.Trip, error) {
	if token == "" {
		expiresAt = nil
	}
	res, err := s.conn.ExecContext(ctx, `
		UPDATE trips SET share_token = ?, share_expires_at = ?, updated_at = ? WHERE id = ?
	`, token, nullableTime(expiresAt), time.Now().UTC(), tripID)
	if err != nil {
		return nil, fmt.Errorf("store: set share token: %w", translateErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFoundf("trip %s", tripID)
	}
	return s.TripByID(ctx, tripID)
}

// BumpViewCount increments the share-view counter.
func (s *SQLite) BumpViewCount(ctx context.Context, tripID string) error {
	res, err := s.conn.ExecContext(ctx, `UPDATE trips SET view_count = view_count + 1 WHERE id = ?`, tripID)
	if err != nil {
		return fmt.Errorf("store: bump view count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("trip %s", tripID)
	}
	return nil
}

// Stats aggregates entity counts for the admin dashboard.
func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.conn.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM trips),
		       (SELECT COUNT(*) FROM trips WHERE visibility = ?),
		       (SELECT COUNT(*) FROM stops),
		       (SELECT COUNT(*) FROM items)
	`, models.VisibilityPublic)
	if err := row.Scan(&st.TotalTrips, &st.PublicTrips, &st.TotalStops, &st.TotalItems); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}
