package port

import (
	"context"

	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
)

// InvoiceSource lists invoices awaiting reconciliation
type InvoiceSource interface {
	// FetchPendingInvoices returns pending invoices in a stable order.
	// An empty vendorID means all vendors; limit <= 0 means no limit.
	FetchPendingInvoices(ctx context.Context, vendorID string, limit int) ([]entity.Invoice, error)
}

// PurchaseOrderSource lists purchase orders invoices are matched against
type PurchaseOrderSource interface {
	ListOpenPurchaseOrders(ctx context.Context, vendorID string) ([]entity.PurchaseOrder, error)
}

// PaymentGateway executes vendor payments. Repeating a request with the same
// idempotency key returns the original receipt.
type PaymentGateway interface {
	ExecutePayment(ctx context.Context, req entity.PaymentRequest) (*entity.PaymentReceipt, error)
}

// ApprovalNotice is what an approver is told about a held payment
type ApprovalNotice struct {
	ThreadID  string
	RunID     string
	Interrupt entity.InterruptDescriptor
	Reminder  bool
}

// ApprovalNotifier tells a human that a payment is waiting for them
type ApprovalNotifier interface {
	NotifyApprovalRequired(ctx context.Context, notice ApprovalNotice) error
}
