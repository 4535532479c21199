// Package history records launched entries so frequently used results can
// be surfaced first on later queries.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/perchrun/perch/internal/events"
)

// Record is one launch event.
type Record struct {
	ID         string
	Plugin     string
	EntryName  string
	Query      string
	LaunchedAt time.Time
}

// Store persists launch history in SQLite.
type Store struct {
	db  *sql.DB
	hub *events.Hub
}

// NewStore creates the store. hub may be nil to skip launch notifications.
func NewStore(db *sql.DB, hub *events.Hub) *Store {
	return &Store{db: db, hub: hub}
}

// Append records that the user launched entryName from plugin while the
// query field held query.
func (s *Store) Append(ctx context.Context, plugin, entryName, query string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO launch_history (id, plugin, entry_name, query, launched_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), plugin, entryName, query,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append launch history: %w", err)
	}
	if s.hub != nil {
		s.hub.Publish(events.TypeLaunched, map[string]string{
			"plugin": plugin,
			"entry":  entryName,
		})
	}
	return nil
}

// LaunchCounts returns per-entry launch counts for one plugin, most-launched
// first. Plugins use this to boost habitual picks.
func (s *Store) LaunchCounts(ctx context.Context, plugin string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_name, COUNT(*) FROM launch_history
		 WHERE plugin = ? GROUP BY entry_name`, plugin)
	if err != nil {
		return nil, fmt.Errorf("query launch counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan launch count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// Recent returns the latest launches across all plugins, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, plugin, entry_name, query, launched_at FROM launch_history
		 ORDER BY launched_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent launches: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var at string
		if err := rows.Scan(&r.ID, &r.Plugin, &r.EntryName, &r.Query, &at); err != nil {
			return nil, fmt.Errorf("scan launch record: %w", err)
		}
		r.LaunchedAt, _ = time.Parse(time.RFC3339, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes records older than keep.
func (s *Store) Prune(ctx context.Context, keep time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM launch_history WHERE launched_at < ?`,
		time.Now().UTC().Add(-keep).Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("prune launch history: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
