package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/application/port"
	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
	"github.com/garyjia/invoice-reconciler/internal/infrastructure/persistence/sqlite"
)

// CheckpointRepository implements port.CheckpointStore on SQLite
type CheckpointRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewCheckpointRepository creates a new checkpoint repository
func NewCheckpointRepository(db *sqlite.DB, logger *zap.Logger) *CheckpointRepository {
	return &CheckpointRepository{
		db:     db,
		logger: logger,
	}
}

// Save writes the latest row and appends to history in one transaction.
// st.Version is only incremented once the transaction commits.
func (r *CheckpointRepository) Save(ctx context.Context, st *entity.ThreadState) error {
	if st == nil || st.ThreadID == "" {
		return fmt.Errorf("checkpoint requires a thread id")
	}

	expected := st.Version
	snapshot := *st
	snapshot.Version = expected + 1
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now().UTC()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = snapshot.UpdatedAt
	}

	data, err := json.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	updatedAt := snapshot.UpdatedAt.UTC()
	err = r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		var res sql.Result
		if expected == 0 {
			res, err = exec.ExecContext(txCtx, `
				INSERT INTO thread_checkpoints (
					thread_id, run_id, version, node, status, state_json, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(thread_id) DO NOTHING
			`, snapshot.ThreadID, snapshot.RunID, snapshot.Version, snapshot.Node, snapshot.Status,
				string(data), snapshot.CreatedAt.UTC(), updatedAt)
		} else {
			res, err = exec.ExecContext(txCtx, `
				UPDATE thread_checkpoints
				SET run_id = ?, version = ?, node = ?, status = ?, state_json = ?, created_at = ?, updated_at = ?
				WHERE thread_id = ? AND version = ?
			`, snapshot.RunID, snapshot.Version, snapshot.Node, snapshot.Status, string(data),
				snapshot.CreatedAt.UTC(), updatedAt, snapshot.ThreadID, expected)
		}
		if err != nil {
			return fmt.Errorf("failed to write checkpoint: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: thread %s expected version %d", port.ErrVersionConflict, snapshot.ThreadID, expected)
		}

		_, err = exec.ExecContext(txCtx, `
			INSERT INTO checkpoint_history (
				thread_id, run_id, version, node, status, state_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, snapshot.ThreadID, snapshot.RunID, snapshot.Version, snapshot.Node, snapshot.Status,
			string(data), updatedAt)
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("%w: thread %s history already has version %d", port.ErrVersionConflict, snapshot.ThreadID, snapshot.Version)
		}
		if err != nil {
			return fmt.Errorf("failed to append checkpoint history: %w", err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save checkpoint",
			zap.String("thread_id", st.ThreadID),
			zap.Int64("expected_version", expected),
			zap.Error(err))
		return err
	}

	st.Version = snapshot.Version
	st.UpdatedAt = snapshot.UpdatedAt
	st.CreatedAt = snapshot.CreatedAt
	return nil
}

// Load returns the latest checkpoint of a thread
func (r *CheckpointRepository) Load(ctx context.Context, threadID string) (*entity.ThreadState, error) {
	var data string
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT state_json FROM thread_checkpoints WHERE thread_id = ?`, threadID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return decodeState(data)
}

// History returns every checkpoint of a thread ordered by version
func (r *CheckpointRepository) History(ctx context.Context, threadID string) ([]*entity.Checkpoint, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT version, node, status, state_json, created_at
		FROM checkpoint_history
		WHERE thread_id = ?
		ORDER BY version ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint history: %w", err)
	}
	defer rows.Close()

	var checkpoints []*entity.Checkpoint
	for rows.Next() {
		cp := &entity.Checkpoint{ThreadID: threadID}
		var data string
		if err := rows.Scan(&cp.Version, &cp.Node, &cp.Status, &data, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint history: %w", err)
		}
		if cp.State, err = decodeState(data); err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// Purge deletes the thread and its history
func (r *CheckpointRepository) Purge(ctx context.Context, threadID string) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		res, err := exec.ExecContext(txCtx, `DELETE FROM thread_checkpoints WHERE thread_id = ?`, threadID)
		if err != nil {
			return fmt.Errorf("failed to delete checkpoint: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			return port.ErrCheckpointNotFound
		}

		if _, err := exec.ExecContext(txCtx, `DELETE FROM checkpoint_history WHERE thread_id = ?`, threadID); err != nil {
			return fmt.Errorf("failed to delete checkpoint history: %w", err)
		}

		r.logger.Info("Checkpoints purged", zap.String("thread_id", threadID))
		return nil
	})
}

// ListByNode returns threads at node last updated before olderThan, oldest first
func (r *CheckpointRepository) ListByNode(ctx context.Context, node string, olderThan time.Time) ([]*entity.ThreadState, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT state_json
		FROM thread_checkpoints
		WHERE node = ? AND updated_at < ?
		ORDER BY updated_at ASC, thread_id ASC
	`, node, olderThan.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var states []*entity.ThreadState
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		st, err := decodeState(data)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func decodeState(data string) (*entity.ThreadState, error) {
	var st entity.ThreadState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &st, nil
}

var _ port.CheckpointStore = (*CheckpointRepository)(nil)
