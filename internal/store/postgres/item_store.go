// Package postgres persists accepted items, their dedup indexes and their
// embeddings.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/newswire/harvester/internal/embedding"
	"github.com/newswire/harvester/internal/feed"
	"github.com/newswire/harvester/internal/hash/sha256"
)

// DB is the subset of pgxpool.Pool the store uses. The indirection exists
// for pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ItemStore implements feed.ItemStore on Postgres.
type ItemStore struct {
	db  DB
	log *zap.Logger
}

// New builds an ItemStore.
func New(db DB, log *zap.Logger) *ItemStore {
	return &ItemStore{db: db, log: log}
}

var _ feed.ItemStore = (*ItemStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL UNIQUE,
	title        TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	summary      TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	collected_at TIMESTAMPTZ NOT NULL,
	tags         TEXT[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS items_published_at_idx ON items (published_at DESC);

CREATE TABLE IF NOT EXISTS dedup_hashes (
	normalized_hash TEXT PRIMARY KEY,
	item_id         TEXT NOT NULL REFERENCES items (id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS item_embeddings (
	item_id   TEXT PRIMARY KEY REFERENCES items (id) ON DELETE CASCADE,
	embedding BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS duplicates (
	item_id     TEXT NOT NULL,
	original_id TEXT NOT NULL REFERENCES items (id) ON DELETE CASCADE,
	marked_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (item_id, original_id)
);
`

// EnsureSchema creates the tables if they do not exist.
func (s *ItemStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// GetByURL returns the stored item for an exact URL, or nil when absent.
func (s *ItemStore) GetByURL(ctx context.Context, url string) (*feed.StoredItem, error) {
	row := s.db.QueryRow(ctx, `
		SELECT i.id, i.url, i.title, i.content, i.source, i.published_at, e.embedding
		FROM items i
		LEFT JOIN item_embeddings e ON e.item_id = i.id
		WHERE i.url = $1`, url)

	item, err := scanStoredItem(row, s.log)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get by url: %w", err)
	}
	return item, nil
}

// GetByNormalizedHash returns the item id indexed under a normalized hash,
// or "" when absent.
func (s *ItemStore) GetByNormalizedHash(ctx context.Context, hash string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`SELECT item_id FROM dedup_hashes WHERE normalized_hash = $1`, hash,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get by hash: %w", err)
	}
	return id, nil
}

// ListRecent returns items published within the lookback horizon, oldest
// first, capped at limit.
func (s *ItemStore) ListRecent(ctx context.Context, lookbackDays int, limit int) ([]feed.StoredItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT i.id, i.url, i.title, i.content, i.source, i.published_at, e.embedding
		FROM items i
		LEFT JOIN item_embeddings e ON e.item_id = i.id
		WHERE i.published_at >= now() - ($1 * INTERVAL '1 day')
		ORDER BY i.published_at DESC
		LIMIT $2`, lookbackDays, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()

	var items []feed.StoredItem
	for rows.Next() {
		item, err := scanStoredItem(rows, s.log)
		if err != nil {
			return nil, fmt.Errorf("scan recent item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}

	// Query order is newest first; callers want oldest first so window
	// eviction drops the oldest.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

// Insert persists an item, its normalized hash index entry and, when
// present, its embedding in one transaction.
func (s *ItemStore) Insert(ctx context.Context, item feed.Item, vec []float32) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO items (id, url, title, content, summary, source, published_at, collected_at, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.URL, item.Title, item.Content, item.Summary,
		item.Source, item.PublishedAt, item.CollectedAt, item.Tags,
	); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO dedup_hashes (normalized_hash, item_id)
		VALUES ($1, $2)
		ON CONFLICT (normalized_hash) DO NOTHING`,
		sha256.NormalizedHash(item.Title, item.Content), item.ID,
	); err != nil {
		return fmt.Errorf("insert hash: %w", err)
	}

	if len(vec) > 0 {
		if _, err := tx.Exec(ctx, `
			INSERT INTO item_embeddings (item_id, embedding)
			VALUES ($1, $2)`,
			item.ID, embedding.MarshalVector(vec),
		); err != nil {
			return fmt.Errorf("insert embedding: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// MarkDuplicate records that a candidate id duplicated an existing item.
func (s *ItemStore) MarkDuplicate(ctx context.Context, id, originalID string) error {
	if _, err := s.db.Exec(ctx, `
		INSERT INTO duplicates (item_id, original_id)
		VALUES ($1, $2)
		ON CONFLICT (item_id, original_id) DO NOTHING`,
		id, originalID,
	); err != nil {
		return fmt.Errorf("mark duplicate: %w", err)
	}
	return nil
}

// PruneOlderThan deletes items published more than retainDays ago and
// returns how many went away. Hash and embedding rows follow via cascade.
func (s *ItemStore) PruneOlderThan(ctx context.Context, retainDays int) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM items
		WHERE published_at < now() - ($1 * INTERVAL '1 day')`, retainDays)
	if err != nil {
		return 0, fmt.Errorf("prune items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanStoredItem decodes one item row. A corrupt persisted embedding is
// logged and dropped rather than failing the row.
func scanStoredItem(row pgx.Row, log *zap.Logger) (*feed.StoredItem, error) {
	var item feed.StoredItem
	var raw []byte
	if err := row.Scan(&item.ID, &item.URL, &item.Title, &item.Content,
		&item.Source, &item.PublishedAt, &raw); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		vec, err := embedding.UnmarshalVector(raw)
		if err != nil {
			log.Warn("dropping corrupt persisted embedding",
				zap.String("id", item.ID),
				zap.Error(err),
			)
		} else {
			item.Embedding = vec
		}
	}
	return &item, nil
}
