package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/application/dispatcher"
	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
	"github.com/garyjia/invoice-reconciler/internal/domain/event"
)

// InterruptedLister finds threads that have waited for approval too long
type InterruptedLister interface {
	ListInterrupted(ctx context.Context, olderThan time.Duration) ([]*entity.ThreadState, error)
}

// StaleSweeper periodically publishes approval.stale for threads parked at
// INTERRUPTED longer than staleAfter. It never resumes or cancels a thread.
// Each checkpoint version is reported once.
type StaleSweeper struct {
	lister     InterruptedLister
	publisher  dispatcher.Publisher
	staleAfter time.Duration
	interval   time.Duration
	now        func() time.Time
	logger     *zap.Logger

	mu       sync.Mutex
	reported map[string]int64
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewStaleSweeper creates a new stale approval sweeper
func NewStaleSweeper(
	lister InterruptedLister,
	publisher dispatcher.Publisher,
	staleAfter, interval time.Duration,
	logger *zap.Logger,
) *StaleSweeper {
	return &StaleSweeper{
		lister:     lister,
		publisher:  publisher,
		staleAfter: staleAfter,
		interval:   interval,
		now:        time.Now,
		logger:     logger,
		reported:   make(map[string]int64),
	}
}

// Name returns the worker name for identification
func (s *StaleSweeper) Name() string {
	return "StaleSweeper"
}

// Start launches the sweep loop
func (s *StaleSweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", s.interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return fmt.Errorf("stale sweeper is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("StaleSweeper started",
		zap.Duration("stale_after", s.staleAfter),
		zap.Duration("interval", s.interval))

	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish
func (s *StaleSweeper) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()
	<-done

	s.logger.Info("StaleSweeper stopped")
	return nil
}

func (s *StaleSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Stale approval sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep publishes approval.stale for each newly stale thread and returns how many were published
func (s *StaleSweeper) Sweep(ctx context.Context) (int, error) {
	states, err := s.lister.ListInterrupted(ctx, s.staleAfter)
	if err != nil {
		return 0, fmt.Errorf("list interrupted threads: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	live := make(map[string]struct{}, len(states))
	published := 0
	for _, st := range states {
		live[st.ThreadID] = struct{}{}
		if v, ok := s.reported[st.ThreadID]; ok && v == st.Version {
			continue
		}

		payload := map[string]interface{}{
			event.KeyNode:    st.Node,
			event.KeyStatus:  st.Status,
			event.KeyWaiting: int64(now.Sub(st.UpdatedAt).Seconds()),
		}
		if st.Interrupt != nil {
			payload[event.KeyInvoiceID] = st.Interrupt.InvoiceID
			payload[event.KeyAmount] = st.Interrupt.Amount.Cents()
		}
		evt := event.NewEvent(event.TypeApprovalStale, st.ThreadID, st.RunID, payload).AtVersion(st.Version)
		s.publisher.Publish(ctx, evt)

		s.reported[st.ThreadID] = st.Version
		published++

		s.logger.Warn("Approval is stale",
			zap.String("thread_id", st.ThreadID),
			zap.String("run_id", st.RunID),
			zap.Duration("waiting", now.Sub(st.UpdatedAt)))
	}

	// forget threads that were resumed or purged
	for id := range s.reported {
		if _, ok := live[id]; !ok {
			delete(s.reported, id)
		}
	}
	return published, nil
}
