package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS translations (
	cache_key  TEXT PRIMARY KEY,
	translated TEXT NOT NULL,
	uses       INTEGER NOT NULL DEFAULT 1,
	last_used  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_translations_last_used ON translations(last_used);
`

// trimRatio is the fill level the cache is trimmed down to once it overflows.
const trimRatio = 0.9

// TranslationCache implements store.TranslationCache on SQLite.
type TranslationCache struct {
	db         *sql.DB
	maxEntries int
	now        func() time.Time
}

// New opens (or creates) the cache database at dbPath.
// maxEntries <= 0 disables trimming.
func New(dbPath string, maxEntries int) (*TranslationCache, error) {
	return NewWithSetup(dbPath, maxEntries, nil)
}

// NewWithSetup opens the cache and runs setup after the schema is applied.
// Useful for tests to seed rows.
func NewWithSetup(dbPath string, maxEntries int, setup func(*sql.DB) error) (*TranslationCache, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &TranslationCache{db: db, maxEntries: maxEntries, now: time.Now}, nil
}

// Close closes the database connection.
func (c *TranslationCache) Close() error {
	return c.db.Close()
}

// GetTranslation returns a cached translation and bumps its recency.
func (c *TranslationCache) GetTranslation(ctx context.Context, key string) (string, bool, error) {
	var translated string
	err := c.db.QueryRowContext(ctx,
		`SELECT translated FROM translations WHERE cache_key = ?`, key,
	).Scan(&translated)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get translation: %w", err)
	}

	if _, err := c.db.ExecContext(ctx,
		`UPDATE translations SET uses = uses + 1, last_used = ? WHERE cache_key = ?`,
		c.now().UnixNano(), key,
	); err != nil {
		return translated, true, fmt.Errorf("touch translation: %w", err)
	}
	return translated, true, nil
}

// PutTranslation upserts a translation and trims least recently used rows past the cap.
func (c *TranslationCache) PutTranslation(ctx context.Context, key, translated string) error {
	query := `
		INSERT INTO translations (cache_key, translated, uses, last_used)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			translated = excluded.translated,
			uses = translations.uses + 1,
			last_used = excluded.last_used
	`
	if _, err := c.db.ExecContext(ctx, query, key, translated, c.now().UnixNano()); err != nil {
		return fmt.Errorf("put translation: %w", err)
	}
	return c.trim(ctx)
}

// Len returns the number of cached translations.
func (c *TranslationCache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM translations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count translations: %w", err)
	}
	return n, nil
}

func (c *TranslationCache) trim(ctx context.Context) error {
	if c.maxEntries <= 0 {
		return nil
	}
	n, err := c.Len(ctx)
	if err != nil {
		return err
	}
	if n <= c.maxEntries {
		return nil
	}

	target := int(float64(c.maxEntries) * trimRatio)
	_, err = c.db.ExecContext(ctx, `
		DELETE FROM translations WHERE cache_key IN (
			SELECT cache_key FROM translations ORDER BY last_used ASC LIMIT ?
		)`, n-target)
	if err != nil {
		return fmt.Errorf("trim translations: %w", err)
	}
	return nil
}
