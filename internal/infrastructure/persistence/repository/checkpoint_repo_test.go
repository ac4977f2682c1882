package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/application/port"
	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
	"github.com/garyjia/invoice-reconciler/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-reconciler/pkg/database"
)

func setupRepo(t *testing.T) *CheckpointRepository {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	conn, err := database.New(ctx, database.Config{Path: filepath.Join(t.TempDir(), "checkpoints.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = database.NewMigrator(conn, logger).RunMigrations(ctx, sqlite.Migrations)
	require.NoError(t, err)

	return NewCheckpointRepository(sqlite.NewDB(conn.DB, logger), logger)
}

func newThread(id, node string, at time.Time) *entity.ThreadState {
	return &entity.ThreadState{
		ThreadID:  id,
		RunID:     "run-1",
		VendorID:  "V001",
		Node:      node,
		Status:    entity.RunStatusPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestCheckpointRepository_SaveAndLoad(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	st := newThread("t-1", "RECONCILE", at)
	st.Results = []entity.ReconciliationResult{{
		Invoice:     entity.Invoice{ID: "INV-001", VendorID: "V001", Amount: 1000000},
		MatchStatus: entity.MatchStatusMatched,
		MatchScore:  1,
	}}
	require.NoError(t, repo.Save(ctx, st))
	assert.Equal(t, int64(1), st.Version)

	loaded, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, "RECONCILE", loaded.Node)
	require.Len(t, loaded.Results, 1)
	assert.Equal(t, entity.Money(1000000), loaded.Results[0].Invoice.Amount)
	assert.True(t, loaded.UpdatedAt.Equal(at))

	loaded.Node = "ROUTE"
	require.NoError(t, repo.Save(ctx, loaded))
	assert.Equal(t, int64(2), loaded.Version)

	again, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "ROUTE", again.Node)
	assert.Equal(t, int64(2), again.Version)
}

func TestCheckpointRepository_LoadMissing(t *testing.T) {
	repo := setupRepo(t)

	_, err := repo.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, port.ErrCheckpointNotFound)
}

func TestCheckpointRepository_VersionConflict(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, newThread("t-1", "START", at)))

	// a second writer that never saw version 1
	stale := newThread("t-1", "START", at)
	err := repo.Save(ctx, stale)
	assert.ErrorIs(t, err, port.ErrVersionConflict)
	assert.Equal(t, int64(0), stale.Version)

	current, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)
	current.Node = "RECONCILE"
	require.NoError(t, repo.Save(ctx, current))

	behind := current.Clone()
	behind.Version = 1
	assert.ErrorIs(t, repo.Save(ctx, behind), port.ErrVersionConflict)

	history, err := repo.History(ctx, "t-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestCheckpointRepository_ConcurrentWritersOneWins(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, newThread("t-1", "START", time.Now().UTC())))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := newThread("t-1", "RECONCILE", time.Now().UTC())
			st.Version = 1
			err := repo.Save(ctx, st)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, port.ErrVersionConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 3, conflicts)
}

func TestCheckpointRepository_HistoryOrdered(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	st := newThread("t-1", "START", at)
	for _, node := range []string{"START", "RECONCILE", "ROUTE", "END"} {
		st.Node = node
		st.UpdatedAt = st.UpdatedAt.Add(time.Second)
		require.NoError(t, repo.Save(ctx, st))
	}

	history, err := repo.History(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, cp := range history {
		assert.Equal(t, int64(i+1), cp.Version)
		assert.Equal(t, cp.Node, cp.State.Node)
		assert.Equal(t, "t-1", cp.ThreadID)
	}
	assert.Equal(t, "START", history[0].Node)
	assert.Equal(t, "END", history[3].Node)

	empty, err := repo.History(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCheckpointRepository_Purge(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	st := newThread("t-1", "START", time.Now().UTC())
	require.NoError(t, repo.Save(ctx, st))
	st.Node = "END"
	require.NoError(t, repo.Save(ctx, st))
	require.NoError(t, repo.Save(ctx, newThread("t-2", "START", time.Now().UTC())))

	require.NoError(t, repo.Purge(ctx, "t-1"))

	_, err := repo.Load(ctx, "t-1")
	assert.ErrorIs(t, err, port.ErrCheckpointNotFound)
	history, err := repo.History(ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = repo.Load(ctx, "t-2")
	assert.NoError(t, err)

	assert.ErrorIs(t, repo.Purge(ctx, "t-1"), port.ErrCheckpointNotFound)
}

func TestCheckpointRepository_ListByNode(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, newThread("old", "INTERRUPTED", base)))
	require.NoError(t, repo.Save(ctx, newThread("older", "INTERRUPTED", base.Add(-time.Hour))))
	require.NoError(t, repo.Save(ctx, newThread("fresh", "INTERRUPTED", base.Add(2*time.Hour))))
	require.NoError(t, repo.Save(ctx, newThread("done", "END", base)))

	states, err := repo.ListByNode(ctx, "INTERRUPTED", base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "older", states[0].ThreadID)
	assert.Equal(t, "old", states[1].ThreadID)

	none, err := repo.ListByNode(ctx, "INTERRUPTED", base.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}
