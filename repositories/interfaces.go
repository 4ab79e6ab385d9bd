// Package repositories defines the persistence interfaces the services
// depend on; concrete implementations live in subpackages.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/llmfallback/llmfallback/models"
)

// RequestRepository persists the request ledger
type RequestRepository interface {
	// Insert stores a new request record
	Insert(ctx context.Context, record *models.RequestRecord) error

	// GetByID retrieves a record by its primary key
	GetByID(ctx context.Context, id uuid.UUID) (*models.RequestRecord, error)

	// List returns the most recent records, newest first
	List(ctx context.Context, limit, offset int) ([]*models.RequestRecord, error)

	// ListByStatus returns records with the given status, newest first
	ListByStatus(ctx context.Context, status models.RequestStatus, limit, offset int) ([]*models.RequestRecord, error)

	// CountSince returns how many records were created after the cutoff
	CountSince(ctx context.Context, cutoff time.Time) (int, error)
}
