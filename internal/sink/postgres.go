package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashita-ai/raikyaku/internal/model"
)

// Postgres stores each record as a JSONB row. Re-delivery of the same
// visit is a no-op, so at-least-once dispatch stays harmless.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Name() string { return "postgres" }

// EnsureSchema creates the visits table when it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS visits (
			id          UUID PRIMARY KEY,
			captured_at TIMESTAMPTZ NOT NULL,
			record      JSONB NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("sink: ensure schema: %w", err)
	}
	return nil
}

// Deliver inserts the record, ignoring duplicates by visit ID.
func (p *Postgres) Deliver(ctx context.Context, v model.Visit) error {
	record, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sink: marshal visit: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO visits (id, captured_at, record)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		v.ID, v.Timestamp, record,
	)
	if err != nil {
		return fmt.Errorf("sink: insert visit: %w", err)
	}
	return nil
}

// Count reports the number of stored visits. Used by tests and the
// health probe for the postgres sink.
func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM visits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sink: count visits: %w", err)
	}
	return n, nil
}
