package geo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"cargoplan/internal/model"
)

// SQLiteCache persists road distances between rounded coordinates in a
// local SQLite file so repeated route runs skip the OSRM call.
type SQLiteCache struct {
	db *sql.DB
}

const distanceCacheSchema = `
CREATE TABLE IF NOT EXISTS distance_cache (
    from_lat REAL NOT NULL,
    from_lng REAL NOT NULL,
    to_lat   REAL NOT NULL,
    to_lng   REAL NOT NULL,
    km       REAL NOT NULL,
    cached_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (from_lat, from_lng, to_lat, to_lng)
)`

// OpenSQLiteCache opens (or creates) the cache at path. ":memory:" works for tests.
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("open distance cache: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open distance cache: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("open distance cache: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(distanceCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("open distance cache: schema: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Close() error { return c.db.Close() }

// roundCoord rounds to 5 decimals (about 1 m).
func roundCoord(v float64) float64 { return math.Round(v*1e5) / 1e5 }

func (c *SQLiteCache) Get(ctx context.Context, from, to model.Coordinates) (float64, bool, error) {
	var km float64
	err := c.db.QueryRowContext(ctx,
		`SELECT km FROM distance_cache WHERE from_lat = ? AND from_lng = ? AND to_lat = ? AND to_lng = ?`,
		roundCoord(from.Lat), roundCoord(from.Lng), roundCoord(to.Lat), roundCoord(to.Lng),
	).Scan(&km)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get distance cache entry: %w", err)
	}
	return km, true, nil
}

func (c *SQLiteCache) Put(ctx context.Context, from, to model.Coordinates, km float64) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO distance_cache (from_lat, from_lng, to_lat, to_lng, km) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (from_lat, from_lng, to_lat, to_lng) DO UPDATE SET km = excluded.km, cached_at = datetime('now')`,
		roundCoord(from.Lat), roundCoord(from.Lng), roundCoord(to.Lat), roundCoord(to.Lng), km,
	)
	if err != nil {
		return fmt.Errorf("put distance cache entry: %w", err)
	}
	return nil
}

// Ping checks the cache database.
func (c *SQLiteCache) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }
