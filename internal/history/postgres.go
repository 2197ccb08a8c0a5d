package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"go.clipd.dev/clipd/internal/item"
)

// Schema creates the clips table. Applied by serve at startup; idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS clips (
	id             BIGSERIAL PRIMARY KEY,
	user_id        TEXT        NOT NULL,
	origin_device  TEXT        NOT NULL DEFAULT '',
	content_type   TEXT        NOT NULL,
	image_encoding TEXT        NOT NULL DEFAULT '',
	content        BYTEA       NOT NULL,
	stamped_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS clips_user_stamped_idx ON clips (user_id, stamped_at DESC, id DESC);
`

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool to databaseURL, verifies it, and ensures the
// schema exists.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 10 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() { p.pool.Close() }

// Append implements Store.
func (p *Postgres) Append(ctx context.Context, it *item.Item) error {
	query := `INSERT INTO clips (user_id, origin_device, content_type, image_encoding, content, stamped_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id`

	err := p.pool.QueryRow(ctx, query,
		it.UserID,
		it.OriginDevice,
		string(it.Kind),
		it.ImageEncoding,
		it.Content,
		it.StampedAt,
	).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("failed to append clip: %w", err)
	}
	return nil
}

// LastN implements Store. Results are ordered by stamp, newest first, with
// the insertion id as the final tie-breaker.
func (p *Postgres) LastN(ctx context.Context, userID string, n int) ([]item.Item, error) {
	if n <= 0 {
		return []item.Item{}, nil
	}

	query := `SELECT id, user_id, origin_device, content_type, image_encoding, content, stamped_at
	          FROM clips
	          WHERE user_id = $1
	          ORDER BY stamped_at DESC, id DESC
	          LIMIT $2`

	rows, err := p.pool.Query(ctx, query, userID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query clips: %w", err)
	}
	defer rows.Close()

	items := []item.Item{}
	for rows.Next() {
		var it item.Item
		var kind string
		if err := rows.Scan(
			&it.ID,
			&it.UserID,
			&it.OriginDevice,
			&kind,
			&it.ImageEncoding,
			&it.Content,
			&it.StampedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan clip: %w", err)
		}
		it.Kind = item.Kind(kind)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clips: %w", err)
	}
	return items, nil
}
