package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/application/port"
	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
)

// Toolkit is the set of tools the reconciliation workflow calls
type Toolkit struct {
	invoices   port.InvoiceSource
	orders     port.PurchaseOrderSource
	payments   port.PaymentGateway
	policy     RetryPolicy
	fetchLimit int
	logger     *zap.Logger
}

// Option configures the toolkit
type Option func(*Toolkit)

// WithRetryPolicy overrides DefaultRetryPolicy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(t *Toolkit) {
		t.policy = p
	}
}

// WithFetchLimit caps the number of invoices fetched per run
func WithFetchLimit(n int) Option {
	return func(t *Toolkit) {
		t.fetchLimit = n
	}
}

// NewToolkit creates a toolkit over the given ports
func NewToolkit(
	invoices port.InvoiceSource,
	orders port.PurchaseOrderSource,
	payments port.PaymentGateway,
	logger *zap.Logger,
	opts ...Option,
) *Toolkit {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Toolkit{
		invoices:   invoices,
		orders:     orders,
		payments:   payments,
		policy:     DefaultRetryPolicy(),
		fetchLimit: 10,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FetchPendingInvoices falls back to an empty list after exhaustion
func (t *Toolkit) FetchPendingInvoices(ctx context.Context, vendorID string) Outcome[[]entity.Invoice] {
	out := Call(ctx, t.policy, t.logger, entity.ToolFetchPendingInvoices, func(ctx context.Context) ([]entity.Invoice, error) {
		return t.invoices.FetchPendingInvoices(ctx, vendorID, t.fetchLimit)
	})
	return WithFallback(out, []entity.Invoice{})
}

// MatchInvoiceToPO falls back to an unmatched result carrying the error text
func (t *Toolkit) MatchInvoiceToPO(ctx context.Context, inv entity.Invoice) Outcome[entity.ReconciliationResult] {
	out := Call(ctx, t.policy, t.logger, entity.ToolMatchInvoiceToPO, func(ctx context.Context) (entity.ReconciliationResult, error) {
		pos, err := t.orders.ListOpenPurchaseOrders(ctx, inv.VendorID)
		if err != nil {
			return entity.ReconciliationResult{}, err
		}
		return Match(inv, pos), nil
	})
	if out.OK() {
		return out
	}
	return WithFallback(out, entity.ReconciliationResult{
		Invoice:        inv,
		MatchStatus:    entity.MatchStatusUnmatched,
		ResolvedAmount: inv.Amount,
		Message:        "purchase order lookup failed",
		Error:          out.Err.Err.Error(),
	})
}

// ExecutePayment has no fallback: a failed payment must fail the run
func (t *Toolkit) ExecutePayment(ctx context.Context, req entity.PaymentRequest) Outcome[entity.PaymentReceipt] {
	return Call(ctx, t.policy, t.logger, entity.ToolExecutePayment, func(ctx context.Context) (entity.PaymentReceipt, error) {
		receipt, err := t.payments.ExecutePayment(ctx, req)
		if err != nil {
			return entity.PaymentReceipt{}, err
		}
		if receipt == nil {
			return entity.PaymentReceipt{}, fmt.Errorf("payment gateway returned no receipt for %s", req.InvoiceID)
		}
		return *receipt, nil
	})
}

// Match pairs an invoice with one of its vendor's open purchase orders.
// The PO named by the invoice wins if it exists; otherwise the first PO of
// the same amount. A vendor PO with a different amount is a mismatch.
func Match(inv entity.Invoice, pos []entity.PurchaseOrder) entity.ReconciliationResult {
	result := entity.ReconciliationResult{
		Invoice:        inv,
		MatchStatus:    entity.MatchStatusUnmatched,
		ResolvedAmount: inv.Amount,
	}

	var vendorPOs []entity.PurchaseOrder
	for _, po := range pos {
		if po.VendorID == inv.VendorID && po.IsOpen() {
			vendorPOs = append(vendorPOs, po)
		}
	}
	if len(vendorPOs) == 0 {
		result.Message = fmt.Sprintf("no open purchase order for vendor %s", inv.VendorID)
		return result
	}

	var candidate *entity.PurchaseOrder
	if inv.POReference != "" {
		for i := range vendorPOs {
			if vendorPOs[i].ID == inv.POReference {
				candidate = &vendorPOs[i]
				break
			}
		}
	}
	if candidate == nil {
		for i := range vendorPOs {
			if vendorPOs[i].Amount == inv.Amount {
				candidate = &vendorPOs[i]
				break
			}
		}
	}

	if candidate != nil && candidate.Amount == inv.Amount {
		po := *candidate
		result.PurchaseOrder = &po
		result.MatchStatus = entity.MatchStatusMatched
		result.MatchScore = 1.0
		result.Invoice = inv.WithStatus(entity.InvoiceStatusMatched)
		result.Message = fmt.Sprintf("matched %s to %s", inv.ID, po.ID)
		return result
	}

	po := vendorPOs[0]
	if candidate != nil {
		po = *candidate
	}
	result.PurchaseOrder = &po
	result.MatchStatus = entity.MatchStatusAmountMismatch
	result.MatchScore = 0.5
	result.Message = fmt.Sprintf("invoice %s amount %s does not match %s amount %s", inv.ID, inv.Amount, po.ID, po.Amount)
	return result
}
