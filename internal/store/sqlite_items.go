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

const itemCols = `id, stop_id, title, day, start_time, end_time, category,
	cost, notes, position, created_at, updated_at`

func scanItem(row scanner) (*models.Item, error) {
	var it models.Item
	err := row.Scan(&it.ID, &it.StopID, &it.Title, &it.Day, &it.StartTime, &it.EndTime,
		&it.Category, &it.Cost, &it.Notes, &it.Position, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// CreateItem inserts an itinerary item, assigning its id and timestamps
// in place.
func (s *SQLite) CreateItem(ctx context.Context, it *models.Item) error {
	it.ID = ident.New()
	now := time.Now().UTC()
	it.CreatedAt, it.UpdatedAt = now, now

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO items (`+itemCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, it.ID, it.StopID, it.Title, it.Day, it.StartTime, it.EndTime,
		it.Category, it.Cost, it.Notes, it.Position, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create item: %w", translateErr(err))
	}
	return nil
}

// ItemByID returns the item or a not-found error.
func (s *SQLite) ItemByID(ctx context.Context, id string) (*models.Item, error) {
	it, err := scanItem(s.conn.QueryRowContext(ctx, `SELECT `+itemCols+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("item %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: item by id: %w", err)
	}
	return it, nil
}

// ItemsByStop lists a stop's items ordered by day then position, with
// created_at as the tie-break. A non-nil day narrows to that day only.
func (s *SQLite) ItemsByStop(ctx context.Context, stopID string, day *int) ([]models.Item, error) {
	q := `SELECT ` + itemCols + ` FROM items WHERE stop_id = ?`
	args := []any{stopID}
	if day != nil {
		q += ` AND day = ?`
		args = append(args, *day)
	}
	q += ` ORDER BY day, position, created_at, id`

	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: items by stop: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// UpdateItem applies a partial update; positions change only through
// ReorderItems.
func (s *SQLite) UpdateItem(ctx context.Context, id string, p models.ItemPatch) (*models.Item, error) {
	var c setClause
	if p.Title != nil {
		c.add("title", *p.Title)
	}
	if p.Day != nil {
		c.add("day", *p.Day)
	}
	if p.StartTime != nil {
		c.add("start_time", *p.StartTime)
	}
	if p.EndTime != nil {
		c.add("end_time", *p.EndTime)
	}
	if p.Category != nil {
		c.add("category", *p.Category)
	}
	if p.Cost != nil {
		c.add("cost", *p.Cost)
	}
	if p.Notes != nil {
		c.add("notes", *p.Notes)
	}
	c.add("updated_at", time.Now().UTC())

	res, err := s.conn.ExecContext(ctx, `UPDATE items SET `+c.sql()+` WHERE id = ?`, append(c.args, id)...)
	if err != nil {
		return nil, fmt.Errorf("store: update item: %w", translateErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFoundf("item %s", id)
	}
	return s.ItemByID(ctx, id)
}

// DeleteItem removes an itinerary item.
func (s *SQLite) DeleteItem(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete item: %w", translateErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("item %s", id)
	}
	return nil
}

// MaxItemPosition returns the highest position within one (stop, day)
// pair, or zero when the day is empty.
func (s *SQLite) MaxItemPosition(ctx context.Context, stopID string, day int) (int, error) {
	var max int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM items WHERE stop_id = ? AND day = ?`,
		stopID, day).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("store: max item position: %w", err)
	}
	return max, nil
}

// ReorderItems applies a position batch scoped to one (stop, day) pair
// inside one immediate transaction. A pair that matches no row fails
// the whole batch, and so does a batch that would leave two of the
// day's items on one position; the day must hold pairwise distinct
// positions at commit.
func (s *SQLite) ReorderItems(ctx context.Context, stopID string, day int, pairs []PositionPair) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin reorder: %w", translateErr(err))
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, p := range pairs {
		res, err := tx.ExecContext(ctx,
			`UPDATE items SET position = ?, updated_at = ? WHERE id = ? AND stop_id = ? AND day = ?`,
			p.Position, now, p.ID, stopID, day)
		if err != nil {
			return fmt.Errorf("store: reorder item %s: %w", p.ID, translateErr(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFoundf("item %s on day %d of stop %s", p.ID, day, stopID)
		}
	}
	var dup int
	err = tx.QueryRowContext(ctx, `
		SELECT position FROM items WHERE stop_id = ? AND day = ?
		GROUP BY position HAVING COUNT(*) > 1 LIMIT 1
	`, stopID, day).Scan(&dup)
	if err == nil {
		return apperr.Conflictf("position %d would be held by more than one item on day %d of stop %s", dup, day, stopID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: verify item positions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit reorder: %w", translateErr(err))
	}
	return nil
}
