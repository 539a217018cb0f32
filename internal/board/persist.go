package board

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// walJournalSizeLimit caps the WAL journal at 16 MiB; cached batches are
// small and the file lives in the user's state directory.
const walJournalSizeLimit = 16777216

// CacheFile persists the last server-confirmed batch per cache key in an
// embedded SQLite database, so the board renders instantly on startup while
// the first refetch is still in flight. Only confirmed values are written —
// optimistic patches never reach the file.
type CacheFile struct {
	db     *sql.DB
	logger *slog.Logger

	getStmt  *sql.Stmt
	saveStmt *sql.Stmt
}

// OpenCacheFile opens (or creates) the cache database at path, applying
// migrations. Use ":memory:" for tests.
func OpenCacheFile(path string, logger *slog.Logger) (*CacheFile, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("opening cache file", slog.String("path", path))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("board: open sqlite: %w", err)
	}

	ctx := context.Background()

	if err := setCachePragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	c := &CacheFile{db: db, logger: logger}

	if err := c.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("board: prepare cache statements: %w", err)
	}

	return c, nil
}

// setCachePragmas configures SQLite for WAL mode.
func setCachePragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("board: set pragma %q: %w", p, err)
		}
	}

	return nil
}

func (c *CacheFile) prepareStatements(ctx context.Context) error {
	var err error

	c.getStmt, err = c.db.PrepareContext(ctx,
		`SELECT payload, fetched_at FROM cache_entries WHERE key = ?`)
	if err != nil {
		return err
	}

	c.saveStmt, err = c.db.PrepareContext(ctx,
		`INSERT INTO cache_entries (key, payload, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`)

	return err
}

// Save writes a server-confirmed batch for the key.
func (c *CacheFile) Save(ctx context.Context, key Key, batch *CalendarBatch, fetchedAt int64) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("board: encoding cache payload for %s: %w", key, err)
	}

	if _, err := c.saveStmt.ExecContext(ctx, string(key), payload, fetchedAt); err != nil {
		return fmt.Errorf("board: saving cache entry %s: %w", key, err)
	}

	return nil
}

// Load returns the persisted batch for the key and the time it was fetched,
// or (nil, 0, nil) when no entry exists.
func (c *CacheFile) Load(ctx context.Context, key Key) (*CalendarBatch, int64, error) {
	var (
		payload   []byte
		fetchedAt int64
	)

	err := c.getStmt.QueryRowContext(ctx, string(key)).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}

	if err != nil {
		return nil, 0, fmt.Errorf("board: loading cache entry %s: %w", key, err)
	}

	var batch CalendarBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, 0, fmt.Errorf("board: decoding cache entry %s: %w", key, err)
	}

	return &batch, fetchedAt, nil
}

// Hook returns a Store refetch hook that persists every installed value.
// Write failures are logged, not propagated — the in-memory cache is already
// correct and the file only serves the next warm start.
func (c *CacheFile) Hook() func(Key, *CalendarBatch) {
	return func(key Key, batch *CalendarBatch) {
		if err := c.Save(context.Background(), key, batch, NowNano()); err != nil {
			c.logger.Warn("cache file write failed", slog.String("error", err.Error()))
		}
	}
}

// Prime installs the persisted value for key into the store, marked stale.
// Missing entries are a no-op.
func (c *CacheFile) Prime(ctx context.Context, store *Store, key Key) error {
	batch, _, err := c.Load(ctx, key)
	if err != nil {
		return err
	}

	if batch == nil {
		return nil
	}

	store.Prime(key, batch)
	c.logger.Debug("warm-started cache key", slog.String("key", string(key)))

	return nil
}

// Close closes the underlying database.
func (c *CacheFile) Close() error {
	if c.getStmt != nil {
		c.getStmt.Close()
	}

	if c.saveStmt != nil {
		c.saveStmt.Close()
	}

	return c.db.Close()
}
