package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
)

type stubInvoices struct {
	failures int
	calls    int
	invoices []entity.Invoice
	gotLimit int
}

func (s *stubInvoices) FetchPendingInvoices(ctx context.Context, vendorID string, limit int) ([]entity.Invoice, error) {
	s.calls++
	s.gotLimit = limit
	if s.calls <= s.failures {
		return nil, errors.New("ERP API timeout")
	}
	return s.invoices, nil
}

type stubOrders struct {
	err    error
	orders []entity.PurchaseOrder
}

func (s *stubOrders) ListOpenPurchaseOrders(ctx context.Context, vendorID string) ([]entity.PurchaseOrder, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []entity.PurchaseOrder
	for _, po := range s.orders {
		if po.VendorID == vendorID {
			out = append(out, po)
		}
	}
	return out, nil
}

type stubPayments struct {
	err      error
	requests []entity.PaymentRequest
}

func (s *stubPayments) ExecutePayment(ctx context.Context, req entity.PaymentRequest) (*entity.PaymentReceipt, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &entity.PaymentReceipt{Reference: "PAY-" + req.InvoiceID, InvoiceID: req.InvoiceID, Amount: req.Amount}, nil
}

func newTestToolkit(inv *stubInvoices, po *stubOrders, pay *stubPayments) *Toolkit {
	policy, _ := noSleepPolicy(3)
	return NewToolkit(inv, po, pay, zap.NewNop(), WithRetryPolicy(policy), WithFetchLimit(25))
}

func TestMatch(t *testing.T) {
	orders := []entity.PurchaseOrder{
		{ID: "PO-101", VendorID: "V001", Amount: entity.MoneyFromFloat(10000)},
		{ID: "PO-102", VendorID: "V001", Amount: entity.MoneyFromFloat(500)},
		{ID: "PO-201", VendorID: "V002", Amount: entity.MoneyFromFloat(2500)},
		{ID: "PO-300", VendorID: "V003", Amount: entity.MoneyFromFloat(900), Status: entity.PurchaseOrderStatusClosed},
	}

	tests := []struct {
		name      string
		invoice   entity.Invoice
		wantMatch string
		wantPO    string
		wantScore float64
	}{
		{"amount match", entity.Invoice{ID: "INV-002", VendorID: "V001", Amount: entity.MoneyFromFloat(500)}, entity.MatchStatusMatched, "PO-102", 1.0},
		{"reference wins", entity.Invoice{ID: "INV-009", VendorID: "V001", Amount: entity.MoneyFromFloat(10000), POReference: "PO-101"}, entity.MatchStatusMatched, "PO-101", 1.0},
		{"reference with wrong amount", entity.Invoice{ID: "INV-010", VendorID: "V001", Amount: entity.MoneyFromFloat(7), POReference: "PO-102"}, entity.MatchStatusAmountMismatch, "PO-102", 0.5},
		{"vendor only", entity.Invoice{ID: "INV-011", VendorID: "V002", Amount: entity.MoneyFromFloat(2499)}, entity.MatchStatusAmountMismatch, "PO-201", 0.5},
		{"unknown vendor", entity.Invoice{ID: "INV-012", VendorID: "V999", Amount: entity.MoneyFromFloat(1)}, entity.MatchStatusUnmatched, "", 0},
		{"closed po ignored", entity.Invoice{ID: "INV-013", VendorID: "V003", Amount: entity.MoneyFromFloat(900)}, entity.MatchStatusUnmatched, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.invoice, orders)
			assert.Equal(t, tt.wantMatch, got.MatchStatus)
			assert.Equal(t, tt.wantScore, got.MatchScore)
			assert.Equal(t, tt.invoice.Amount, got.ResolvedAmount)
			if tt.wantPO == "" {
				assert.Nil(t, got.PurchaseOrder)
			} else {
				require.NotNil(t, got.PurchaseOrder)
				assert.Equal(t, tt.wantPO, got.PurchaseOrder.ID)
			}
			if tt.wantMatch == entity.MatchStatusMatched {
				assert.Equal(t, entity.InvoiceStatusMatched, got.Invoice.Status)
				assert.True(t, got.IsPayable())
			} else {
				assert.False(t, got.IsPayable())
			}
		})
	}
}

func TestToolkit_FetchPendingInvoices(t *testing.T) {
	t.Run("retries transient failures", func(t *testing.T) {
		inv := &stubInvoices{failures: 2, invoices: []entity.Invoice{{ID: "INV-001"}}}
		out := newTestToolkit(inv, &stubOrders{}, &stubPayments{}).FetchPendingInvoices(context.Background(), "")

		assert.True(t, out.OK())
		assert.Len(t, out.Value, 1)
		assert.Equal(t, 2, out.Failures)
		assert.Equal(t, 25, inv.gotLimit)
	})

	t.Run("falls back to empty list", func(t *testing.T) {
		inv := &stubInvoices{failures: 3}
		out := newTestToolkit(inv, &stubOrders{}, &stubPayments{}).FetchPendingInvoices(context.Background(), "")

		assert.False(t, out.OK())
		assert.True(t, out.UsedFallback)
		assert.NotNil(t, out.Value)
		assert.Empty(t, out.Value)
		assert.Equal(t, 3, inv.calls)
		assert.Contains(t, out.Err.Error(), "ERP API timeout")
	})
}

func TestToolkit_MatchInvoiceToPO_Fallback(t *testing.T) {
	tk := newTestToolkit(&stubInvoices{}, &stubOrders{err: errors.New("po service down")}, &stubPayments{})
	inv := entity.Invoice{ID: "INV-001", VendorID: "V001", Amount: entity.MoneyFromFloat(10000)}

	out := tk.MatchInvoiceToPO(context.Background(), inv)

	assert.True(t, out.UsedFallback)
	assert.Equal(t, entity.MatchStatusUnmatched, out.Value.MatchStatus)
	assert.Equal(t, "po service down", out.Value.Error)
	assert.Equal(t, "INV-001", out.Value.Invoice.ID)
}

func TestToolkit_ExecutePayment(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		pay := &stubPayments{}
		tk := newTestToolkit(&stubInvoices{}, &stubOrders{}, pay)
		out := tk.ExecutePayment(context.Background(), entity.PaymentRequest{InvoiceID: "INV-002", IdempotencyKey: "run:INV-002"})

		require.True(t, out.OK())
		assert.Equal(t, "PAY-INV-002", out.Value.Reference)
		assert.Equal(t, "run:INV-002", pay.requests[0].IdempotencyKey)
	})

	t.Run("no fallback", func(t *testing.T) {
		pay := &stubPayments{err: errors.New("gateway unavailable")}
		tk := newTestToolkit(&stubInvoices{}, &stubOrders{}, pay)
		out := tk.ExecutePayment(context.Background(), entity.PaymentRequest{InvoiceID: "INV-002"})

		assert.False(t, out.OK())
		assert.False(t, out.UsedFallback)
		assert.Empty(t, out.Value.Reference)
		assert.Len(t, pay.requests, 3)
	})
}
