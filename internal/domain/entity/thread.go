package entity

import "time"

// ToolErrorRecord is the last tool failure recorded on a thread
type ToolErrorRecord struct {
	Tool     string    `json:"tool"`
	Message  string    `json:"message"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
}

// InterruptDescriptor is returned to the caller when a run suspends for approval
type InterruptDescriptor struct {
	Question  string `json:"question"`
	InvoiceID string `json:"invoice_id"`
	VendorID  string `json:"vendor_id"`
	Amount    Money  `json:"amount_cents"`
	Threshold Money  `json:"approval_threshold_cents"`
}

// ThreadState is the persisted reconciliation envelope for one thread identifier.
// Node holds the workflow graph node the thread is parked at.
type ThreadState struct {
	ThreadID string `json:"thread_id"`
	RunID    string `json:"run_id"`
	VendorID string `json:"vendor_id,omitempty"`

	Node   string `json:"node"`
	Status string `json:"status"`

	Results        []ReconciliationResult `json:"reconciled"`
	Route          string                 `json:"route,omitempty"`
	PendingPayment *PendingPayment        `json:"pending_payment,omitempty"`

	Approval   *bool                `json:"approval,omitempty"`
	ApprovedBy string               `json:"approved_by,omitempty"`
	Interrupt  *InterruptDescriptor `json:"interrupt,omitempty"`

	LastError    *ToolErrorRecord `json:"last_error"`
	RetryCount   int              `json:"retry_count"`
	UsedFallback bool             `json:"used_fallback"`

	Receipt *PaymentReceipt `json:"receipt,omitempty"`

	Version   int64     `json:"version"`
	Steps     int       `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so a step can compute a transition without
// touching the last committed state
func (s *ThreadState) Clone() *ThreadState {
	if s == nil {
		return nil
	}
	c := *s
	if s.Results != nil {
		c.Results = make([]ReconciliationResult, len(s.Results))
		for i, r := range s.Results {
			c.Results[i] = r
			if r.PurchaseOrder != nil {
				po := *r.PurchaseOrder
				c.Results[i].PurchaseOrder = &po
			}
			if r.Invoice.DueDate != nil {
				due := *r.Invoice.DueDate
				c.Results[i].Invoice.DueDate = &due
			}
		}
	}
	if s.PendingPayment != nil {
		p := *s.PendingPayment
		c.PendingPayment = &p
	}
	if s.Approval != nil {
		a := *s.Approval
		c.Approval = &a
	}
	if s.Interrupt != nil {
		i := *s.Interrupt
		c.Interrupt = &i
	}
	if s.LastError != nil {
		e := *s.LastError
		c.LastError = &e
	}
	if s.Receipt != nil {
		r := *s.Receipt
		c.Receipt = &r
	}
	return &c
}

// ResultFor returns the reconciliation result for an invoice, if any
func (s *ThreadState) ResultFor(invoiceID string) (int, bool) {
	for i, r := range s.Results {
		if r.Invoice.ID == invoiceID {
			return i, true
		}
	}
	return -1, false
}

// Checkpoint is one durably stored snapshot of a thread at a step boundary
type Checkpoint struct {
	ThreadID  string       `json:"thread_id"`
	Version   int64        `json:"version"`
	Node      string       `json:"node"`
	Status    string       `json:"status"`
	State     *ThreadState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}
