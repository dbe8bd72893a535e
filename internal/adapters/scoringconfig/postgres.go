// Package scoringconfig provides the remote scoring-config sources consulted
// by the metric configuration resolver.
package scoringconfig

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/okian/oratio/internal/domain/metricconfig"
)

// DB is the subset of pgx used by PostgresSource. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS scoring_config (
    metric_name TEXT PRIMARY KEY,
    weight      DOUBLE PRECISION NOT NULL DEFAULT 0,
    min_value   DOUBLE PRECISION,
    max_value   DOUBLE PRECISION
);`

const selectRows = `SELECT metric_name, weight, min_value, max_value FROM scoring_config ORDER BY metric_name`

// PostgresSource reads scoring rows from the scoring_config table.
type PostgresSource struct {
	db DB
}

var _ metricconfig.RemoteSource = (*PostgresSource)(nil)

// NewPostgresSource creates the table when missing and returns a source.
func NewPostgresSource(ctx context.Context, db DB) (*PostgresSource, error) {
	if _, err := db.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("scoring config: migrate: %w", err)
	}
	return &PostgresSource{db: db}, nil
}

// FetchScoringConfig implements metricconfig.RemoteSource.
func (s *PostgresSource) FetchScoringConfig(ctx context.Context) ([]metricconfig.RemoteRow, error) {
	rows, err := s.db.Query(ctx, selectRows)
	if err != nil {
		return nil, fmt.Errorf("scoring config: query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (metricconfig.RemoteRow, error) {
		var r metricconfig.RemoteRow
		if err := row.Scan(&r.MetricName, &r.Weight, &r.MinValue, &r.MaxValue); err != nil {
			return metricconfig.RemoteRow{}, err
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scoring config: scan: %w", err)
	}
	return out, nil
}
