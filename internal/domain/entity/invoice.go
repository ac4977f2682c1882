package entity

import "time"

// Invoice is a payable invoice fetched from the ERP / AP system
type Invoice struct {
	ID          string     `json:"invoice_id"`
	VendorID    string     `json:"vendor_id"`
	VendorName  string     `json:"vendor_name,omitempty"`
	Amount      Money      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	POReference string     `json:"po_reference,omitempty"`
	Status      string     `json:"status"`
}

// WithStatus returns a copy of the invoice with the given status.
// Invoices are never mutated in place once fetched.
func (i Invoice) WithStatus(status string) Invoice {
	i.Status = status
	return i
}

// IsPending reports whether the invoice is still awaiting reconciliation
func (i Invoice) IsPending() bool {
	return i.Status == "" || i.Status == InvoiceStatusPending
}

// PurchaseOrder is used only for matching and is read-only within the workflow
type PurchaseOrder struct {
	ID          string `json:"po_id"`
	VendorID    string `json:"vendor_id"`
	Amount      Money  `json:"amount_cents"`
	LineItemRef string `json:"line_item_ref,omitempty"`
	Status      string `json:"status"`
}

// IsOpen reports whether the purchase order can still be matched
func (p PurchaseOrder) IsOpen() bool {
	return p.Status == "" || p.Status == PurchaseOrderStatusOpen
}
