package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/invoice-reconciler/internal/application/tools"
	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
	domainwf "github.com/garyjia/invoice-reconciler/internal/domain/workflow"
)

// ErrInvalidInput is returned for malformed arguments such as an empty thread id
var ErrInvalidInput = errors.New("invalid input")

// WorkflowEngine runs reconciliation threads one checkpointed step at a time
type WorkflowEngine interface {
	// StartRun begins a run on a new thread, or on a thread whose previous run is terminal
	StartRun(ctx context.Context, threadID, vendorID string) (*RunResult, error)

	// ResumeRun delivers the approval decision to a thread halted at INTERRUPTED
	ResumeRun(ctx context.Context, threadID string, approved bool) (*RunResult, error)

	// GetState returns the latest checkpoint without modifying it
	GetState(ctx context.Context, threadID string) (*StateSnapshot, error)

	// Recover continues a thread whose last checkpoint is at a runnable node
	Recover(ctx context.Context, threadID string) (*RunResult, error)

	// History returns every checkpoint of a thread, oldest first
	History(ctx context.Context, threadID string) ([]*entity.Checkpoint, error)

	// Purge deletes a thread and its history
	Purge(ctx context.Context, threadID string) error

	// ListInterrupted returns threads waiting for approval longer than olderThan
	ListInterrupted(ctx context.Context, olderThan time.Duration) ([]*entity.ThreadState, error)
}

// Tools is the tool layer the nodes call
type Tools interface {
	FetchPendingInvoices(ctx context.Context, vendorID string) tools.Outcome[[]entity.Invoice]
	MatchInvoiceToPO(ctx context.Context, inv entity.Invoice) tools.Outcome[entity.ReconciliationResult]
	ExecutePayment(ctx context.Context, req entity.PaymentRequest) tools.Outcome[entity.PaymentReceipt]
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RunResult is returned when a call halts: either a terminal summary or an interrupt
type RunResult struct {
	ThreadID     string                        `json:"thread_id"`
	RunID        string                        `json:"run_id"`
	Node         domainwf.State                `json:"node"`
	Status       string                        `json:"status"`
	Interrupt    *entity.InterruptDescriptor   `json:"interrupt,omitempty"`
	Receipt      *entity.PaymentReceipt        `json:"receipt,omitempty"`
	LastError    *entity.ToolErrorRecord       `json:"last_error"`
	Results      []entity.ReconciliationResult `json:"reconciled"`
	UsedFallback bool                          `json:"used_fallback"`
	RetryCount   int                           `json:"retry_count"`
}

// Interrupted reports whether the run is waiting for an approval decision
func (r *RunResult) Interrupted() bool {
	return r.Node.IsSuspended()
}

// StateSnapshot is the read-only view returned by GetState
type StateSnapshot struct {
	ThreadID string              `json:"thread_id"`
	Node     domainwf.State      `json:"node"`
	Next     []domainwf.Trigger  `json:"next"`
	Terminal bool                `json:"terminal"`
	Values   *entity.ThreadState `json:"values"`
}

func newRunResult(st *entity.ThreadState) *RunResult {
	r := &RunResult{
		ThreadID:     st.ThreadID,
		RunID:        st.RunID,
		Node:         domainwf.State(st.Node),
		Status:       st.Status,
		Receipt:      st.Receipt,
		LastError:    st.LastError,
		Results:      st.Results,
		UsedFallback: st.UsedFallback,
		RetryCount:   st.RetryCount,
	}
	if r.Node.IsSuspended() {
		r.Interrupt = st.Interrupt
	}
	return r
}

func newSnapshot(st *entity.ThreadState) *StateSnapshot {
	node := domainwf.State(st.Node)
	return &StateSnapshot{
		ThreadID: st.ThreadID,
		Node:     node,
		Next:     reconciliationGraph.Permitted(node),
		Terminal: node.IsTerminal(),
		Values:   st,
	}
}
