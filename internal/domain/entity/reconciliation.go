package entity

import "time"

// ReconciliationResult pairs an invoice with the purchase order it was matched against
type ReconciliationResult struct {
	Invoice        Invoice        `json:"invoice"`
	PurchaseOrder  *PurchaseOrder `json:"purchase_order,omitempty"`
	MatchStatus    string         `json:"match_status"`
	MatchScore     float64        `json:"match_score"`
	ResolvedAmount Money          `json:"resolved_amount_cents"`
	Message        string         `json:"message,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// IsPayable reports whether the result can be turned into a pending payment
func (r ReconciliationResult) IsPayable() bool {
	return r.MatchStatus == MatchStatusMatched && r.ResolvedAmount > 0
}

// PendingPayment is the single payment decision a thread carries
type PendingPayment struct {
	InvoiceID string `json:"invoice_id"`
	VendorID  string `json:"vendor_id"`
	Amount    Money  `json:"amount_cents"`
}

// PaymentRequest is the input to the payment tool
type PaymentRequest struct {
	InvoiceID      string `json:"invoice_id"`
	VendorID       string `json:"vendor_id"`
	Amount         Money  `json:"amount_cents"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key"`
}

// PaymentReceipt is returned by the payment gateway on success
type PaymentReceipt struct {
	Reference      string    `json:"reference"`
	InvoiceID      string    `json:"invoice_id"`
	VendorID       string    `json:"vendor_id"`
	Amount         Money     `json:"amount_cents"`
	IdempotencyKey string    `json:"idempotency_key"`
	PaidAt         time.Time `json:"paid_at"`
}
