package service

import (
	"context"
	"fmt"

	"github.com/garyjia/invoice-reconciler/internal/application/dispatcher"
	"github.com/garyjia/invoice-reconciler/internal/application/port"
	"github.com/garyjia/invoice-reconciler/internal/application/workflow"
	"github.com/garyjia/invoice-reconciler/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// StateReader reads the latest checkpoint of a thread
type StateReader interface {
	GetState(ctx context.Context, threadID string) (*workflow.StateSnapshot, error)
}

// NotificationService tells approvers about payments held for approval
type NotificationService interface {
	// NotifyApprovalRequired notifies the approver if the thread is still suspended
	NotifyApprovalRequired(ctx context.Context, threadID string, reminder bool) error

	// Register subscribes the service to run.interrupted and approval.stale
	Register(d dispatcher.Dispatcher)
}

type notificationServiceImpl struct {
	states   StateReader
	notifier port.ApprovalNotifier
	logger   Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(states StateReader, notifier port.ApprovalNotifier, logger Logger) NotificationService {
	return &notificationServiceImpl{
		states:   states,
		notifier: notifier,
		logger:   logger,
	}
}

// NotifyApprovalRequired reads the interrupt from the checkpoint rather than the
// event so a thread resumed in the meantime is not announced
func (s *notificationServiceImpl) NotifyApprovalRequired(ctx context.Context, threadID string, reminder bool) error {
	snap, err := s.states.GetState(ctx, threadID)
	if err != nil {
		s.logger.Error("Failed to load thread for notification", "error", err, "thread_id", threadID)
		return fmt.Errorf("get state: %w", err)
	}

	if !snap.Node.IsSuspended() || snap.Values.Interrupt == nil {
		s.logger.Info("Thread no longer awaiting approval, skipping notification",
			"thread_id", threadID,
			"node", snap.Node,
		)
		return nil
	}

	notice := port.ApprovalNotice{
		ThreadID:  threadID,
		RunID:     snap.Values.RunID,
		Interrupt: *snap.Values.Interrupt,
		Reminder:  reminder,
	}
	if err := s.notifier.NotifyApprovalRequired(ctx, notice); err != nil {
		s.logger.Error("Failed to notify approver", "error", err, "thread_id", threadID)
		return fmt.Errorf("notify approver: %w", err)
	}

	s.logger.Info("Approval notification sent",
		"thread_id", threadID,
		"invoice_id", notice.Interrupt.InvoiceID,
		"reminder", reminder,
	)
	return nil
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeRunInterrupted, "approval-notifier", func(ctx context.Context, evt *event.Event) error {
		return s.NotifyApprovalRequired(ctx, evt.ThreadID, false)
	})
	d.SubscribeNamed(event.TypeApprovalStale, "approval-reminder", func(ctx context.Context, evt *event.Event) error {
		return s.NotifyApprovalRequired(ctx, evt.ThreadID, true)
	})
}
