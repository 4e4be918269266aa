package agent

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldworks/answerhub/pkg/memory"
)

// Querier executes read-only SQL against the business database and
// returns at most maxRows row-records.
type Querier interface {
	Query(ctx context.Context, sqlText string, maxRows int) ([]memory.Row, error)
}

// PgxQuerier backs Querier with a pgx connection pool.
type PgxQuerier struct {
	pool *pgxpool.Pool
}

// NewPgxQuerier connects to the business database at databaseURL.
func NewPgxQuerier(ctx context.Context, databaseURL string) (*PgxQuerier, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to business database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping business database: %w", err)
	}
	return &PgxQuerier{pool: pool}, nil
}

// Close releases the pool.
func (q *PgxQuerier) Close() { q.pool.Close() }

// Health verifies database reachability.
func (q *PgxQuerier) Health(ctx context.Context) error {
	return q.pool.Ping(ctx)
}

// Query runs sqlText and collects up to maxRows rows as column→value
// mappings. The cap guards against unbounded result sets from generated
// queries that omit a LIMIT.
func (q *PgxQuerier) Query(ctx context.Context, sqlText string, maxRows int) ([]memory.Row, error) {
	rows, err := q.pool.Query(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]memory.Row, 0, maxRows)
	for rows.Next() {
		if len(out) >= maxRows {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(memory.Row, len(fields))
		for i, field := range fields {
			row[string(field.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
