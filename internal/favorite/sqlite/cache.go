// Package sqlite keeps an on-disk copy of the Favorite Store so a new session
// can render favorites before the first list fetch completes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/setlistfan/favsync/internal/favorite"
	_ "modernc.org/sqlite"
)

// Common errors.
var (
	ErrCacheClosed = errors.New("favorites cache is closed")
)

// Cache persists favorite records using SQLite.
type Cache struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// New opens (or creates) the cache database at dbPath.
func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open favorites database: %w", err)
	}

	cache := &Cache{db: db}
	if err := cache.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize favorites database: %w", err)
	}

	return cache, nil
}

// NewWithDB creates a cache using an existing database connection.
func NewWithDB(db *sql.DB) (*Cache, error) {
	cache := &Cache{db: db}
	if err := cache.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize favorites tables: %w", err)
	}
	return cache, nil
}

// NewInMemory creates a new in-memory cache (useful for testing).
func NewInMemory() (*Cache, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	cache := &Cache{db: db}
	if err := cache.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return cache, nil
}

// initialize creates the necessary tables.
func (c *Cache) initialize() error {
	schema := `
		CREATE TABLE IF NOT EXISTS favorites (
			entity_type TEXT NOT NULL,
			entity_id INTEGER NOT NULL,
			favorite_id INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (entity_type, entity_id)
		);
	`

	_, err := c.db.Exec(schema)
	return err
}

// Load returns every cached record, artists first.
func (c *Cache) Load(ctx context.Context) ([]favorite.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrCacheClosed
	}

	rows, err := c.db.QueryContext(ctx,
		"SELECT entity_type, entity_id, favorite_id, created_at FROM favorites ORDER BY entity_type, created_at, entity_id",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	defer rows.Close()

	var records []favorite.Record
	for rows.Next() {
		var (
			entityType string
			entityID   int64
			favID      int64
			createdAt  int64
		)
		if err := rows.Scan(&entityType, &entityID, &favID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		et, err := favorite.ParseEntityType(entityType)
		if err != nil {
			continue
		}
		rec := favorite.NewRecord(favorite.Target{Type: et, ID: entityID}, favID)
		if createdAt != 0 {
			rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Put stores or replaces one record.
func (c *Cache) Put(ctx context.Context, rec favorite.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}

	if err := put(ctx, c.db, rec); err != nil {
		return fmt.Errorf("failed to cache favorite: %w", err)
	}
	return nil
}

// Delete removes the record for t.
func (c *Cache) Delete(ctx context.Context, t favorite.Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}

	_, err := c.db.ExecContext(ctx,
		"DELETE FROM favorites WHERE entity_type = ? AND entity_id = ?",
		string(t.Type), t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete cached favorite: %w", err)
	}
	return nil
}

// Replace swaps the whole cached collection in one transaction.
func (c *Cache) Replace(ctx context.Context, records []favorite.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM favorites"); err != nil {
		return fmt.Errorf("failed to reset favorites cache: %w", err)
	}
	for _, rec := range records {
		if err = put(ctx, tx, rec); err != nil {
			return fmt.Errorf("failed to cache favorite: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit favorites cache: %w", err)
	}
	return nil
}

// Clear removes all cached records.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}

	if _, err := c.db.ExecContext(ctx, "DELETE FROM favorites"); err != nil {
		return fmt.Errorf("failed to clear favorites cache: %w", err)
	}
	return nil
}

// Count returns the number of cached records.
func (c *Cache) Count(ctx context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, ErrCacheClosed
	}

	var count int64
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM favorites").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count favorites: %w", err)
	}
	return count, nil
}

// Close closes the cache.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	return c.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func put(ctx context.Context, db execer, rec favorite.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	t := rec.Target()
	var createdAt int64
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt.Unix()
	}
	_, err := db.ExecContext(ctx,
		"INSERT OR REPLACE INTO favorites (entity_type, entity_id, favorite_id, created_at) VALUES (?, ?, ?, ?)",
		string(t.Type), t.ID, rec.FavoriteID, createdAt,
	)
	return err
}

// Seed loads the cached records into store.
func Seed(ctx context.Context, store *favorite.Store, cache *Cache) error {
	records, err := cache.Load(ctx)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		store.SetAll(records)
	}
	return nil
}

// Bind mirrors every effective store mutation into cache. Write failures are
// logged; the store stays authoritative.
func Bind(store *favorite.Store, cache *Cache, logger zerolog.Logger) (unbind func()) {
	return store.Observe(func(change favorite.Change) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var err error
		switch change.Kind {
		case favorite.ChangeReplaced:
			err = cache.Replace(ctx, change.Records)
		case favorite.ChangeAdded:
			for _, rec := range change.Records {
				if err = cache.Put(ctx, rec); err != nil {
					break
				}
			}
		case favorite.ChangeRemoved:
			for _, rec := range change.Records {
				if err = cache.Delete(ctx, rec.Target()); err != nil {
					break
				}
			}
		case favorite.ChangeCleared:
			err = cache.Clear(ctx)
		}

		if err != nil {
			logger.Warn().Err(err).Str("change", change.Kind.String()).Msg("failed to mirror favorites into cache")
		}
	})
}
