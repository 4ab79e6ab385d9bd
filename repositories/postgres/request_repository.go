package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/llmfallback/llmfallback/models"
	"github.com/llmfallback/llmfallback/repositories"
	"go.uber.org/zap"
)

// ErrRecordNotFound is returned when a request record does not exist
var ErrRecordNotFound = errors.New("request record not found")

const requestColumns = `id, request_id, status, requested_model, provider, model, attempts,
	       prompt_tokens, completion_tokens, total_tokens, latency_ms,
	       error_message, ip_address, user_agent, created_at`

// RequestRepository implements repositories.RequestRepository over PostgreSQL
type RequestRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request ledger repository
func NewRequestRepository(db *DB, logger *zap.Logger) repositories.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores a new request record.
// Non-blocking from the caller's perspective: the audit recorder invokes it
// from its worker goroutines.
func (r *RequestRepository) Insert(ctx context.Context, record *models.RequestRecord) error {
	query := `
		INSERT INTO request_records (
			id, request_id, status, requested_model, provider, model, attempts,
			prompt_tokens, completion_tokens, total_tokens, latency_ms,
			error_message, ip_address, user_agent, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.RequestID,
		record.Status,
		record.RequestedModel,
		record.Provider,
		record.Model,
		record.Attempts,
		record.PromptTokens,
		record.CompletionTokens,
		record.TotalTokens,
		record.LatencyMs,
		record.ErrorMessage,
		record.IPAddress,
		record.UserAgent,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert request record: %w", err)
	}

	r.logger.Debug("request record inserted",
		zap.String("id", record.ID.String()),
		zap.String("status", string(record.Status)))
	return nil
}

// GetByID retrieves a record by its primary key
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RequestRecord, error) {
	query := `SELECT ` + requestColumns + ` FROM request_records WHERE id = $1`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get request record: %w", err)
	}

	return record, nil
}

// List returns the most recent records, newest first
func (r *RequestRepository) List(ctx context.Context, limit, offset int) ([]*models.RequestRecord, error) {
	query := `SELECT ` + requestColumns + `
		FROM request_records
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list request records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListByStatus returns records with the given status, newest first
func (r *RequestRepository) ListByStatus(ctx context.Context, status models.RequestStatus, limit, offset int) ([]*models.RequestRecord, error) {
	query := `SELECT ` + requestColumns + `
		FROM request_records
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list request records by status: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CountSince returns how many records were created after the cutoff
func (r *RequestRepository) CountSince(ctx context.Context, cutoff time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM request_records WHERE created_at > $1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count request records: %w", err)
	}

	return count, nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.RequestRecord, error) {
	record := &models.RequestRecord{}
	err := row.Scan(
		&record.ID,
		&record.RequestID,
		&record.Status,
		&record.RequestedModel,
		&record.Provider,
		&record.Model,
		&record.Attempts,
		&record.PromptTokens,
		&record.CompletionTokens,
		&record.TotalTokens,
		&record.LatencyMs,
		&record.ErrorMessage,
		&record.IPAddress,
		&record.UserAgent,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func scanRecords(rows *sql.Rows) ([]*models.RequestRecord, error) {
	var records []*models.RequestRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate request records: %w", err)
	}
	return records, nil
}
