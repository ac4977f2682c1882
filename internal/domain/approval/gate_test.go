package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
)

func TestNeedsApproval(t *testing.T) {
	threshold := entity.MoneyFromFloat(5000)

	tests := []struct {
		name   string
		amount entity.Money
		want   bool
	}{
		{"just below", entity.MoneyFromFloat(4999), false},
		{"one cent below", entity.Money(499999), false},
		{"exactly at", entity.MoneyFromFloat(5000), true},
		{"above", entity.MoneyFromFloat(10000), true},
		{"zero", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsApproval(tt.amount, threshold))
			assert.Equal(t, tt.want, NewGate(threshold).Evaluate(tt.amount))
		})
	}
}

func TestGate_Question(t *testing.T) {
	g := NewGate(entity.MoneyFromFloat(5000))
	assert.Equal(t, "Ready to pay this $10,000.00 invoice. Approve?", g.Question(entity.MoneyFromFloat(10000)))
	assert.Equal(t, "Ready to pay this $5,000.50 invoice. Approve?", g.Question(entity.Money(500050)))
}

func TestGate_Interrupt(t *testing.T) {
	g := NewGate(entity.MoneyFromFloat(5000))
	d := g.Interrupt(entity.PendingPayment{InvoiceID: "INV-001", VendorID: "V001", Amount: entity.MoneyFromFloat(10000)})

	assert.Equal(t, "INV-001", d.InvoiceID)
	assert.Equal(t, "V001", d.VendorID)
	assert.Equal(t, entity.MoneyFromFloat(10000), d.Amount)
	assert.Equal(t, entity.MoneyFromFloat(5000), d.Threshold)
	assert.Contains(t, d.Question, "$10,000.00")
}
