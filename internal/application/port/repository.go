package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
)

var (
	// ErrCheckpointNotFound is returned when a thread has no checkpoint
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrVersionConflict is returned when Save is called with a stale version
	ErrVersionConflict = errors.New("checkpoint version conflict")
)

// CheckpointStore persists thread state at step boundaries
type CheckpointStore interface {
	// Save writes state as the next checkpoint of its thread. state.Version must
	// equal the stored version (0 for a new thread); on success it is incremented.
	Save(ctx context.Context, state *entity.ThreadState) error

	// Load returns the latest checkpoint of a thread
	Load(ctx context.Context, threadID string) (*entity.ThreadState, error)

	// History returns every checkpoint of a thread, oldest first
	History(ctx context.Context, threadID string) ([]*entity.Checkpoint, error)

	// Purge deletes a thread and its history. Returns ErrCheckpointNotFound if absent.
	Purge(ctx context.Context, threadID string) error

	// ListByNode returns threads parked at node whose last update is older than olderThan
	ListByNode(ctx context.Context, node string, olderThan time.Time) ([]*entity.ThreadState, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
