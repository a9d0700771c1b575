package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DB wraps a PostgreSQL connection pool for the submission audit log.
// The service runs without it; absence only disables durable auditing.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// LogSubmission inserts one audit record.
func (db *DB) LogSubmission(ctx context.Context, rec *SubmissionRecord) error {
	query := `
		INSERT INTO submissions (id, user_id, code_hash, code, status, output,
			error_trace, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := db.pool.Exec(ctx, query,
		rec.ID, rec.UserID, rec.CodeHash,
		truncateForDB(rec.Code, 65535),
		rec.Status,
		truncateForDB(rec.Output, 65535),
		truncateForDB(rec.ErrorTrace, 65535),
		rec.DurationMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves a single audit record by ID.
func (db *DB) GetSubmission(ctx context.Context, id string) (*SubmissionRecord, error) {
	query := `
		SELECT id, user_id, code_hash, code, status, output, error_trace,
			duration_ms, created_at
		FROM submissions WHERE id = $1`

	var rec SubmissionRecord
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.UserID, &rec.CodeHash, &rec.Code, &rec.Status,
		&rec.Output, &rec.ErrorTrace, &rec.DurationMS, &rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("querying submission %s: %w", id, err)
	}
	return &rec, nil
}

// ListSubmissions queries audit records with optional filters.
func (db *DB) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]SubmissionRecord, error) {
	query := `
		SELECT id, user_id, code_hash, status, duration_ms, created_at
		FROM submissions
		WHERE ($1 = 0 OR user_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, query,
		filter.UserID, filter.Status, limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying submissions: %w", err)
	}
	defer rows.Close()

	var results []SubmissionRecord
	for rows.Next() {
		var rec SubmissionRecord
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.CodeHash, &rec.Status,
			&rec.DurationMS, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning submission row: %w", err)
		}
		results = append(results, rec)
	}

	return results, rows.Err()
}

func truncateForDB(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
