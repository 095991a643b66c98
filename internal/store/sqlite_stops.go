package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/ident"
	"github.com/starford/raido/internal/models"
)

const stopCols = `id, trip_id, city, lat, lon, arrival_date, departure_date,
	position, notes, created_at, updated_at`

func scanStop(row scanner) (*models.Stop, error) {
	var st models.Stop
	err := row.Scan(&st.ID, &st.TripID, &st.City, &st.Lat, &st.Lon, &st.ArrivalDate,
		&st.DepartureDate, &st.Position, &st.Notes, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// CreateStop inserts a stop, assigning its id and timestamps in place.
// The position comes from the caller; a missing trip surfaces as a
// not-found error via the foreign key.
func (s *SQLite) CreateStop(ctx context.Context, st *models.Stop) error {
	st.ID = ident.New()
	now := time.Now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO stops (`+stopCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, st.ID, st.TripID, st.City, st.Lat, st.Lon, st.ArrivalDate,
		st.DepartureDate, st.Position, st.Notes, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create stop: %w", translateErr(err))
	}
	return nil
}

// StopByID returns the stop or a not-found error.
func (s *SQLite) StopByID(ctx context.Context, id string) (*models.Stop, error) {
	st, err := scanStop(s.conn.QueryRowContext(ctx, `SELECT `+stopCols+` FROM stops WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("stop %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: stop by id: %w", err)
	}
	return st, nil
}

// StopsByTrip lists a trip's stops in display order. Duplicate
// positions from the accepted create race break the tie on created_at.
func (s *SQLite) StopsByTrip(ctx context.Context, tripID string) ([]models.Stop, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+stopCols+` FROM stops WHERE trip_id = ?
		ORDER BY position, created_at, id
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("store: stops by trip: %w", err)
	}
	defer rows.Close()

	stops := []models.Stop{}
	for rows.Next() {
		st, err := scanStop(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan stop: %w", err)
		}
		stops = append(stops, *st)
	}
	return stops, rows.Err()
}

// UpdateStop applies a partial update; positions change only through
// ReorderStops.
func (s *SQLite) UpdateStop(ctx context.Context, id string, p models.StopPatch) (*models.Stop, error) {
	var c setClause
	if p.City != nil {
		c.add("city", *p.City)
	}
	if p.Lat != nil {
		c.add("lat", *p.Lat)
	}
	if p.Lon != nil {
		c.add("lon", *p.Lon)
	}
	if p.ArrivalDate != nil {
		c.add("arrival_date", *p.ArrivalDate)
	}
	if p.DepartureDate != nil {
		c.add("departure_date", *p.DepartureDate)
	}
	if p.Notes != nil {
		c.add("notes", *p.Notes)
	}
	c.add("updated_at", time.Now().UTC())

	res, err := s.conn.ExecContext(ctx, `UPDATE stops SET `+c.sql()+` WHERE id = ?`, append(c.args, id)...)
	if err != nil {
		return nil, fmt.Errorf("store: update stop: %w", translateErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFoundf("stop %s", id)
	}
	return s.StopByID(ctx, id)
}

// DeleteStop removes a stop; the schema cascades to its items.
func (s *SQLite) DeleteStop(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM stops WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete stop: %w", translateErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("stop %s", id)
	}
	return nil
}

// MaxStopPosition returns the highest position among a trip's stops, or
// zero when it has none.
func (s *SQLite) MaxStopPosition(ctx context.Context, tripID string) (int, error) {
	var max int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM stops WHERE trip_id = ?`, tripID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("store: max stop position: %w", err)
	}
	return max, nil
}

// ReorderStops applies a position batch inside one immediate
// transaction. Each update is keyed on (id, trip_id); a pair that
// matches no row means the id is not a live child of this trip, and the
// whole transaction rolls back naming it. Before committing, the trip's
// stops are verified to hold pairwise distinct positions, so a batch
// that omits siblings cannot land on a position one of them still
// holds; such a batch rolls back as a conflict.
func (s *SQLite) ReorderStops(ctx context.Context, tripID string, pairs []PositionPair) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin reorder: %w", translateErr(err))
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := time.Now().UTC()
	for _, p := range pairs {
		res, err := tx.ExecContext(ctx,
			`UPDATE stops SET position = ?, updated_at = ? WHERE id = ? AND trip_id = ?`,
			p.Position, now, p.ID, tripID)
		if err != nil {
			return fmt.Errorf("store: reorder stop %s: %w", p.ID, translateErr(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFoundf("stop %s in trip %s", p.ID, tripID)
		}
	}
	var dup int
	err = tx.QueryRowContext(ctx, `
		SELECT position FROM stops WHERE trip_id = ?
		GROUP BY position HAVING COUNT(*) > 1 LIMIT 1
	`, tripID).Scan(&dup)
	if err == nil {
		return apperr.Conflictf("position %d would be held by more than one stop in trip %s", dup, tripID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: verify stop positions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit reorder: %w", translateErr(err))
	}
	return nil
}
