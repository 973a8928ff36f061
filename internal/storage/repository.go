package storage

import (
	"context"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
)

// Repository defines the interface for the submission journal
type Repository interface {
	// Submissions
	SaveSubmission(ctx context.Context, s models.Submission) error
	ListSubmissions(ctx context.Context, limit, offset int) ([]models.Submission, error)

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}
