package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smarttraffic/console/internal/traffic"
)

// Schema creates the archive tables. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS history_points (
		id          BIGSERIAL PRIMARY KEY,
		observed_at TIMESTAMPTZ NOT NULL,
		label       TEXT NOT NULL,
		counts      JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS history_points_observed_at_idx ON history_points (observed_at DESC)`,
	`CREATE TABLE IF NOT EXISTS violations (
		id             TEXT PRIMARY KEY,
		vehicle_number TEXT NOT NULL,
		type           TEXT NOT NULL,
		observed_at    TIMESTAMPTZ NOT NULL,
		location       TEXT NOT NULL,
		details        TEXT NOT NULL DEFAULT '',
		image_url      TEXT NOT NULL DEFAULT '',
		archived_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS violations_observed_at_idx ON violations (observed_at DESC)`,
}

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgreSQL archive repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// RecordHistory stores a history point.
func (r *PostgresRepository) RecordHistory(ctx context.Context, point traffic.HistoryPoint) error {
	counts, err := json.Marshal(point.Counts)
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}

	query := `
		INSERT INTO history_points (observed_at, label, counts)
		VALUES ($1, $2, $3)
	`
	if _, err := r.pool.Exec(ctx, query, point.Time, point.Label, counts); err != nil {
		return fmt.Errorf("insert history point: %w", err)
	}
	return nil
}

// RecordViolations stores violations not seen before in one round trip.
func (r *PostgresRepository) RecordViolations(ctx context.Context, violations []traffic.Violation) error {
	if len(violations) == 0 {
		return nil
	}

	query := `
		INSERT INTO violations (id, vehicle_number, type, observed_at, location, details, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, v := range violations {
		batch.Queue(query, v.ID, v.VehicleNumber, string(v.Type), v.Timestamp, v.Location, v.Details, v.ImageURL)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range violations {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert violation: %w", err)
		}
	}
	return nil
}

// ListHistory returns archived history points, newest first.
func (r *PostgresRepository) ListHistory(ctx context.Context, opts ListOptions) ([]traffic.HistoryPoint, error) {
	query := `
		SELECT observed_at, label, counts
		FROM history_points
		WHERE observed_at >= $1
		ORDER BY observed_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, sinceOrEpoch(opts.Since), opts.limit())
	if err != nil {
		return nil, fmt.Errorf("query history points: %w", err)
	}
	defer rows.Close()

	var points []traffic.HistoryPoint
	for rows.Next() {
		var (
			p   traffic.HistoryPoint
			raw []byte
		)
		if err := rows.Scan(&p.Time, &p.Label, &raw); err != nil {
			return nil, fmt.Errorf("scan history point: %w", err)
		}
		if err := json.Unmarshal(raw, &p.Counts); err != nil {
			return nil, fmt.Errorf("decode counts: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// ListViolations returns archived violations, newest first.
func (r *PostgresRepository) ListViolations(ctx context.Context, opts ListOptions) ([]traffic.Violation, error) {
	query := `
		SELECT id, vehicle_number, type, observed_at, location, details, image_url
		FROM violations
		WHERE observed_at >= $1
		ORDER BY observed_at DESC, id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, sinceOrEpoch(opts.Since), opts.limit())
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	var violations []traffic.Violation
	for rows.Next() {
		var (
			v   traffic.Violation
			typ string
		)
		if err := rows.Scan(&v.ID, &v.VehicleNumber, &typ, &v.Timestamp, &v.Location, &v.Details, &v.ImageURL); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		v.Type = traffic.ViolationType(typ)
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return violations, nil
}

func sinceOrEpoch(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t
}
