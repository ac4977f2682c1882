package workflow

import (
	"context"
	"errors"

	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
	domainwf "github.com/garyjia/invoice-reconciler/internal/domain/workflow"
)

var (
	errNoPendingPayment = errors.New("no pending payment selected")
	errNotApproved      = errors.New("no recorded approval")
)

type edge = domainwf.Edge[*entity.ThreadState]

// reconciliationGraph is checked against the candidate checkpoint on every step.
// Payment is reachable only through the approval guards.
var reconciliationGraph = domainwf.MustGraph(
	edge{From: domainwf.StateStart, Trigger: domainwf.TriggerBegin, To: domainwf.StateReconcile},
	edge{From: domainwf.StateReconcile, Trigger: domainwf.TriggerReconciled, To: domainwf.StateRoute},

	// ROUTE is the manager step: it never pays, it only picks the branch
	edge{From: domainwf.StateRoute, Trigger: domainwf.TriggerPaymentPending, To: domainwf.StateCheckApproval, Guard: requirePendingPayment},
	edge{From: domainwf.StateRoute, Trigger: domainwf.TriggerFail, To: domainwf.StateFailed},
	edge{From: domainwf.StateRoute, Trigger: domainwf.TriggerNothingToPay, To: domainwf.StateEnd},

	edge{From: domainwf.StateCheckApproval, Trigger: domainwf.TriggerRequireApproval, To: domainwf.StateInterrupted, Guard: requirePendingPayment},
	edge{From: domainwf.StateCheckApproval, Trigger: domainwf.TriggerAutoApprove, To: domainwf.StateExecutePayment, Guard: requireApproval},

	// INTERRUPTED only moves on an explicit resume
	edge{From: domainwf.StateInterrupted, Trigger: domainwf.TriggerApprove, To: domainwf.StateExecutePayment, Guard: requireApproval},
	edge{From: domainwf.StateInterrupted, Trigger: domainwf.TriggerReject, To: domainwf.StateEnd},

	edge{From: domainwf.StateExecutePayment, Trigger: domainwf.TriggerPaymentSucceeded, To: domainwf.StateEnd},
	edge{From: domainwf.StateExecutePayment, Trigger: domainwf.TriggerPaymentFailed, To: domainwf.StateEnd},
)

func requirePendingPayment(_ context.Context, st *entity.ThreadState) error {
	if st.PendingPayment == nil {
		return errNoPendingPayment
	}
	return nil
}

func requireApproval(ctx context.Context, st *entity.ThreadState) error {
	if err := requirePendingPayment(ctx, st); err != nil {
		return err
	}
	if st.Approval == nil || !*st.Approval {
		return errNotApproved
	}
	return nil
}

// ReconciliationGraph returns the transition table the engine steps through
func ReconciliationGraph() *domainwf.Graph[*entity.ThreadState] {
	return reconciliationGraph
}
