package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS submissions (
		tx_hash       TEXT PRIMARY KEY,
		operation     TEXT NOT NULL,
		account       TEXT NOT NULL,
		chain_id      BIGINT NOT NULL,
		block_number  BIGINT NOT NULL,
		status        TEXT NOT NULL,
		reason        TEXT NOT NULL DEFAULT '',
		submitted_at  TIMESTAMPTZ NOT NULL,
		confirmed_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS submissions_confirmed_at_idx ON submissions (confirmed_at DESC);
`

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository and makes sure
// the journal table exists
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info("Connected to PostgreSQL submission journal")
	return r, nil
}

// EnsureSchema creates the journal table if it does not exist
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveSubmission records a confirmed or reverted submission
func (r *PostgresRepository) SaveSubmission(ctx context.Context, s models.Submission) error {
	query := `
		INSERT INTO submissions (
			tx_hash, operation, account, chain_id, block_number,
			status, reason, submitted_at, confirmed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tx_hash) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			confirmed_at = EXCLUDED.confirmed_at
	`

	_, err := r.pool.Exec(ctx, query,
		s.TxHash,
		s.Operation,
		s.Account,
		int64(s.ChainID),
		int64(s.BlockNumber),
		string(s.Status),
		s.Reason,
		s.SubmittedAt,
		s.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save submission: %w", err)
	}

	return nil
}

// ListSubmissions lists submissions, newest first, with pagination
func (r *PostgresRepository) ListSubmissions(ctx context.Context, limit, offset int) ([]models.Submission, error) {
	query := `
		SELECT
			tx_hash, operation, account, chain_id, block_number,
			status, reason, submitted_at, confirmed_at
		FROM submissions
		ORDER BY confirmed_at DESC, tx_hash
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	submissions := []models.Submission{}

	for rows.Next() {
		var (
			s                 models.Submission
			chainID, blockNum int64
			status            string
		)
		if err := rows.Scan(
			&s.TxHash,
			&s.Operation,
			&s.Account,
			&chainID,
			&blockNum,
			&status,
			&s.Reason,
			&s.SubmittedAt,
			&s.ConfirmedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		s.ChainID = uint64(chainID)
		s.BlockNumber = uint64(blockNum)
		s.Status = models.SubmissionStatus(status)
		submissions = append(submissions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}

	return submissions, nil
}

// Ping checks if the database connection is alive
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
