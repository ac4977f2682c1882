package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
	domainwf "github.com/garyjia/invoice-reconciler/internal/domain/workflow"
)

// nodeFunc computes one step on a private copy of the thread state and
// returns the trigger for the outgoing edge
type nodeFunc func(ctx context.Context, st *entity.ThreadState) (*entity.ThreadState, domainwf.Trigger, error)

func (e *engineImpl) nodes() map[domainwf.State]nodeFunc {
	return map[domainwf.State]nodeFunc{
		domainwf.StateStart:          e.start,
		domainwf.StateReconcile:      e.reconcile,
		domainwf.StateRoute:          e.route,
		domainwf.StateCheckApproval:  e.checkApproval,
		domainwf.StateExecutePayment: e.executePayment,
	}
}

func (e *engineImpl) start(ctx context.Context, st *entity.ThreadState) (*entity.ThreadState, domainwf.Trigger, error) {
	st.Status = entity.RunStatusPending
	return st, domainwf.TriggerBegin, nil
}

// reconcile fetches pending invoices and matches each one in fetch order. A
// fetch that never succeeds marks the run failed; ROUTE sends it to FAILED.
func (e *engineImpl) reconcile(ctx context.Context, st *entity.ThreadState) (*entity.ThreadState, domainwf.Trigger, error) {
	fetched := e.tools.FetchPendingInvoices(ctx, st.VendorID)
	st.RetryCount += fetched.Failures
	if !fetched.OK() {
		st.UsedFallback = st.UsedFallback || fetched.UsedFallback
		st.LastError = fetched.Err.Record(e.now())
		st.Results = []entity.ReconciliationResult{}
		st.Status = entity.RunStatusFailed
		return st, domainwf.TriggerReconciled, nil
	}

	results := make([]entity.ReconciliationResult, 0, len(fetched.Value))
	for _, inv := range fetched.Value {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		if inv.Currency == "" {
			inv.Currency = entity.DefaultCurrency
		}
		matched := e.tools.MatchInvoiceToPO(ctx, inv)
		st.RetryCount += matched.Failures
		if !matched.OK() {
			st.UsedFallback = true
			st.LastError = matched.Err.Record(e.now())
		}
		results = append(results, matched.Value)
	}

	st.Results = results
	return st, domainwf.TriggerReconciled, nil
}

// route picks the first payable result in fetch order; one thread carries one payment
func (e *engineImpl) route(ctx context.Context, st *entity.ThreadState) (*entity.ThreadState, domainwf.Trigger, error) {
	if st.Status == entity.RunStatusFailed {
		st.Route = entity.RouteFailed
		return st, domainwf.TriggerFail, nil
	}

	for _, r := range st.Results {
		if !r.IsPayable() {
			continue
		}
		st.PendingPayment = &entity.PendingPayment{
			InvoiceID: r.Invoice.ID,
			VendorID:  r.Invoice.VendorID,
			Amount:    r.ResolvedAmount,
		}
		st.Route = entity.RouteCheckApproval
		return st, domainwf.TriggerPaymentPending, nil
	}

	st.Route = entity.RouteEnd
	st.Status = entity.RunStatusNoAction
	return st, domainwf.TriggerNothingToPay, nil
}

func (e *engineImpl) checkApproval(ctx context.Context, st *entity.ThreadState) (*entity.ThreadState, domainwf.Trigger, error) {
	if st.PendingPayment == nil {
		return nil, "", fmt.Errorf("thread %s reached %s without a pending payment", st.ThreadID, domainwf.StateCheckApproval)
	}

	if e.gate.Evaluate(st.PendingPayment.Amount) {
		st.Status = entity.RunStatusAwaitingApproval
		st.Interrupt = e.gate.Interrupt(*st.PendingPayment)
		return st, domainwf.TriggerRequireApproval, nil
	}

	approved := true
	st.Approval = &approved
	st.ApprovedBy = entity.ApprovedByThreshold
	return st, domainwf.TriggerAutoApprove, nil
}

// executePayment never runs without a recorded approval. The idempotency key
// is stable for the run so re-executing the step after a lost checkpoint
// cannot pay twice.
func (e *engineImpl) executePayment(ctx context.Context, st *entity.ThreadState) (*entity.ThreadState, domainwf.Trigger, error) {
	p := st.PendingPayment
	if p == nil {
		return nil, "", fmt.Errorf("thread %s reached %s without a pending payment", st.ThreadID, domainwf.StateExecutePayment)
	}
	if st.Approval == nil || !*st.Approval {
		return nil, "", &domainwf.InvalidStateError{ThreadID: st.ThreadID, Node: domainwf.StateExecutePayment, Op: "pay unapproved invoice"}
	}

	currency := entity.DefaultCurrency
	idx, found := st.ResultFor(p.InvoiceID)
	if found && st.Results[idx].Invoice.Currency != "" {
		currency = st.Results[idx].Invoice.Currency
	}

	out := e.tools.ExecutePayment(ctx, entity.PaymentRequest{
		InvoiceID:      p.InvoiceID,
		VendorID:       p.VendorID,
		Amount:         p.Amount,
		Currency:       currency,
		IdempotencyKey: IdempotencyKey(st.RunID, p.InvoiceID),
	})
	st.RetryCount += out.Failures
	if !out.OK() {
		st.LastError = out.Err.Record(e.now())
		st.Status = entity.RunStatusFailed
		return st, domainwf.TriggerPaymentFailed, nil
	}

	receipt := out.Value
	st.Receipt = &receipt
	st.Status = entity.RunStatusPaid
	if found {
		st.Results[idx].Invoice = st.Results[idx].Invoice.WithStatus(entity.InvoiceStatusPaid)
	}
	return st, domainwf.TriggerPaymentSucceeded, nil
}

// IdempotencyKey identifies one payment attempt series for an invoice within a run
func IdempotencyKey(runID, invoiceID string) string {
	return runID + ":" + invoiceID
}
