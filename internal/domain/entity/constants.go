package entity

// Invoice status constants
const (
	InvoiceStatusPending  = "pending"
	InvoiceStatusMatched  = "matched"
	InvoiceStatusPaid     = "paid"
	InvoiceStatusRejected = "rejected"
)

// Purchase order status constants
const (
	PurchaseOrderStatusOpen   = "open"
	PurchaseOrderStatusClosed = "closed"
)

// Match status constants for ReconciliationResult
const (
	MatchStatusMatched        = "matched"
	MatchStatusUnmatched      = "unmatched"
	MatchStatusAmountMismatch = "amount_mismatch"
)

// Run status constants for the reconciliation envelope
const (
	RunStatusPending          = "pending"
	RunStatusAwaitingApproval = "awaiting_approval"
	RunStatusPaid             = "paid"
	RunStatusCancelled        = "cancelled"
	RunStatusFailed           = "failed"
	RunStatusNoAction         = "no_action"
)

// Routing decisions taken by the manager step
const (
	RouteCheckApproval = "check_approval"
	RouteFailed        = "failed"
	RouteEnd           = "end"
)

// Approval sources
const (
	ApprovedByThreshold = "threshold"
	ApprovedByHuman     = "human"
)

// Tool names used in error records and logs
const (
	ToolFetchPendingInvoices = "fetch_pending_invoices"
	ToolMatchInvoiceToPO     = "match_invoice_to_po"
	ToolExecutePayment       = "execute_payment"
)

// DefaultCurrency is used when the ERP omits a currency
const DefaultCurrency = "USD"
