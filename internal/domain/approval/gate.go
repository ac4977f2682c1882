// Package approval decides which payments need a human decision before execution.
package approval

import (
	"fmt"

	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
)

// NeedsApproval reports whether a payment must wait for a human. The
// comparison is inclusive: a payment exactly at the threshold needs approval.
func NeedsApproval(amount, threshold entity.Money) bool {
	return amount >= threshold
}

// Gate holds the approval threshold and nothing else
type Gate struct {
	Threshold entity.Money
}

// NewGate creates a gate for the given threshold
func NewGate(threshold entity.Money) Gate {
	return Gate{Threshold: threshold}
}

// Evaluate reports whether a payment of amount needs approval
func (g Gate) Evaluate(amount entity.Money) bool {
	return NeedsApproval(amount, g.Threshold)
}

// Question is the prompt shown to the approver
func (g Gate) Question(amount entity.Money) string {
	return fmt.Sprintf("Ready to pay this %s invoice. Approve?", amount)
}

// Interrupt builds the descriptor returned to the caller when a payment is held
func (g Gate) Interrupt(p entity.PendingPayment) *entity.InterruptDescriptor {
	return &entity.InterruptDescriptor{
		Question:  g.Question(p.Amount),
		InvoiceID: p.InvoiceID,
		VendorID:  p.VendorID,
		Amount:    p.Amount,
		Threshold: g.Threshold,
	}
}
