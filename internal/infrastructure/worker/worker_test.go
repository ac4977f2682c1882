package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
	"github.com/garyjia/invoice-reconciler/internal/domain/event"
)

type mockWorker struct {
	name     string
	startErr error
	order    *[]string
	started  bool
}

func (w *mockWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.started = true
	return nil
}

func (w *mockWorker) Stop() error {
	*w.order = append(*w.order, w.name)
	return nil
}

func (w *mockWorker) Name() string { return w.name }

func TestManager_StartStopOrder(t *testing.T) {
	var stopped []string
	a := &mockWorker{name: "a", order: &stopped}
	b := &mockWorker{name: "b", order: &stopped, startErr: errors.New("boom")}
	c := &mockWorker{name: "c", order: &stopped}

	m := NewManager(zap.NewNop())
	m.Register(a)
	m.Register(b)
	m.Register(c)
	assert.Equal(t, 3, m.Count())

	err := m.StartAll(context.Background())
	assert.ErrorContains(t, err, "b: boom")
	assert.True(t, m.IsRunning())
	assert.True(t, a.started)
	assert.True(t, c.started)

	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.Equal(t, []string{"c", "a"}, stopped)
	assert.False(t, m.IsRunning())
	assert.NoError(t, m.StopAll())
}

type mockLister struct {
	mu     sync.Mutex
	states []*entity.ThreadState
	err    error
	calls  int
}

func (m *mockLister) ListInterrupted(ctx context.Context, olderThan time.Duration) ([]*entity.ThreadState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.states, m.err
}

type mockPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockPublisher) Publish(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func staleThread(id string, version int64, updated time.Time) *entity.ThreadState {
	return &entity.ThreadState{
		ThreadID:  id,
		RunID:     "run-" + id,
		Node:      "INTERRUPTED",
		Status:    entity.RunStatusAwaitingApproval,
		Version:   version,
		UpdatedAt: updated,
		Interrupt: &entity.InterruptDescriptor{InvoiceID: "INV-001", Amount: 1000000},
	}
}

func TestStaleSweeper_Sweep(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	lister := &mockLister{states: []*entity.ThreadState{
		staleThread("t-1", 5, now.Add(-25*time.Hour)),
	}}
	pub := &mockPublisher{}
	s := NewStaleSweeper(lister, pub, 24*time.Hour, time.Minute, zap.NewNop())
	s.now = func() time.Time { return now }
	ctx := context.Background()

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	evt := pub.events[0]
	assert.Equal(t, event.TypeApprovalStale, evt.Type)
	assert.Equal(t, "t-1", evt.ThreadID)
	assert.Equal(t, int64(5), evt.Version)
	assert.Equal(t, int64(25*3600), evt.GetPayloadInt(event.KeyWaiting))
	assert.Equal(t, "INV-001", evt.GetPayloadString(event.KeyInvoiceID))

	// same checkpoint is reported once
	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// a thread that left INTERRUPTED and came back is reported again
	lister.states = nil
	_, err = s.Sweep(ctx)
	require.NoError(t, err)
	lister.states = []*entity.ThreadState{staleThread("t-1", 9, now.Add(-30*time.Hour))}
	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, pub.count())
}

func TestStaleSweeper_ListError(t *testing.T) {
	s := NewStaleSweeper(&mockLister{err: errors.New("db locked")}, &mockPublisher{}, time.Hour, time.Minute, zap.NewNop())
	_, err := s.Sweep(context.Background())
	assert.ErrorContains(t, err, "db locked")
}

func TestStaleSweeper_StartStop(t *testing.T) {
	lister := &mockLister{states: []*entity.ThreadState{staleThread("t-1", 1, time.Now().Add(-time.Hour))}}
	pub := &mockPublisher{}
	s := NewStaleSweeper(lister, pub, time.Minute, 10*time.Millisecond, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestStaleSweeper_InvalidInterval(t *testing.T) {
	s := NewStaleSweeper(&mockLister{}, &mockPublisher{}, time.Hour, 0, zap.NewNop())
	assert.Error(t, s.Start(context.Background()))
}
