package storage

import (
	"context"
	"sync"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
)

// MemoryRepository keeps the most recent submissions in process. It is used
// when no database is configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	capacity int
	entries  []models.Submission // oldest first
	index    map[string]int
}

// NewMemoryRepository creates a journal holding at most capacity entries
func NewMemoryRepository(capacity int) *MemoryRepository {
	if capacity <= 0 {
		capacity = 500
	}
	return &MemoryRepository{
		capacity: capacity,
		index:    make(map[string]int),
	}
}

// SaveSubmission records s, replacing an entry with the same hash
func (r *MemoryRepository) SaveSubmission(ctx context.Context, s models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.index[s.TxHash]; ok {
		r.entries[i] = s
		return nil
	}

	r.entries = append(r.entries, s)
	if len(r.entries) > r.capacity {
		r.entries = append([]models.Submission(nil), r.entries[len(r.entries)-r.capacity:]...)
	}
	r.reindex()
	return nil
}

func (r *MemoryRepository) reindex() {
	clear(r.index)
	for i, e := range r.entries {
		r.index[e.TxHash] = i
	}
}

// ListSubmissions lists submissions, newest first, with pagination
func (r *MemoryRepository) ListSubmissions(ctx context.Context, limit, offset int) ([]models.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Submission{}
	if offset < 0 {
		offset = 0
	}
	for i := len(r.entries) - 1 - offset; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}
