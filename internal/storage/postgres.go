package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresProvider reads the issuance table from PostgreSQL. Used when the
// bootstrapped credentials carry a database URL; the local CSV client is the
// fallback.
type PostgresProvider struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgresProvider connects and pings the configured database.
func NewPostgresProvider(ctx context.Context, connURL string, log zerolog.Logger) (*PostgresProvider, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	log.Info().Msg("postgres dataset provider initialized")
	return &PostgresProvider{pool: pool, log: log}, nil
}

// Close releases the connection pool.
func (p *PostgresProvider) Close() {
	p.pool.Close()
}

// ReadTable loads every row of the named issuance table, ordered by issue
// date. Column names come from the result descriptions, so schema additions
// flow through without code changes.
func (p *PostgresProvider) ReadTable(ctx context.Context, table string) ([]map[string]any, error) {
	// Table names cannot be bound as parameters; the key comes from the
	// bootstrapped credentials, not from request input.
	query := fmt.Sprintf(`SELECT * FROM %s ORDER BY %s`, pgxIdentifier(table), IssueDateColumn)
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query issuance table %s: %w", table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan issuance row: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			value := values[i]
			if t, ok := value.(time.Time); ok {
				value = t.UTC()
			}
			row[string(fd.Name)] = value
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issuance rows: %w", err)
	}

	p.log.Info().Str("table", table).Int("rows", len(out)).Msg("dataset read complete")
	return out, nil
}

func pgxIdentifier(name string) string {
	return `"` + name + `"`
}
