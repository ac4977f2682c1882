package erp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/application/port"
	"github.com/garyjia/invoice-reconciler/internal/application/tools"
	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
)

// Settler is told when an invoice has been paid
type Settler interface {
	SetInvoiceStatus(ctx context.Context, invoiceID, status string) error
}

// PaymentGateway is a simulated payment API. Requests are deduplicated on
// their idempotency key, so a replayed step returns the first receipt. An
// invoice is paid at most once whatever key a later request carries.
type PaymentGateway struct {
	mu       sync.Mutex
	receipts map[string]*entity.PaymentReceipt
	paid     map[string]string // invoice id -> idempotency key

	settler Settler
	now     func() time.Time
	logger  *zap.Logger
}

// GatewayOption configures a PaymentGateway
type GatewayOption func(*PaymentGateway)

// WithSettler marks invoices paid in the ERP after a successful payment
func WithSettler(s Settler) GatewayOption {
	return func(g *PaymentGateway) {
		g.settler = s
	}
}

// WithGatewayClock overrides the receipt timestamp source
func WithGatewayClock(now func() time.Time) GatewayOption {
	return func(g *PaymentGateway) {
		g.now = now
	}
}

// NewPaymentGateway creates a new simulated payment gateway
func NewPaymentGateway(logger *zap.Logger, opts ...GatewayOption) *PaymentGateway {
	g := &PaymentGateway{
		receipts: make(map[string]*entity.PaymentReceipt),
		paid:     make(map[string]string),
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ExecutePayment pays an invoice once per idempotency key
func (g *PaymentGateway) ExecutePayment(ctx context.Context, req entity.PaymentRequest) (*entity.PaymentReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.InvoiceID == "" || req.IdempotencyKey == "" {
		return nil, tools.Permanent(fmt.Errorf("payment requires invoice_id and idempotency_key"))
	}
	if req.Amount <= 0 {
		return nil, tools.Permanent(fmt.Errorf("invalid payment amount %s", req.Amount))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if prior, ok := g.receipts[req.IdempotencyKey]; ok {
		g.logger.Info("Duplicate payment request, returning original receipt",
			zap.String("invoice_id", req.InvoiceID),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("reference", prior.Reference))
		r := *prior
		return &r, nil
	}

	if key, ok := g.paid[req.InvoiceID]; ok {
		g.logger.Warn("Refusing second payment for invoice",
			zap.String("invoice_id", req.InvoiceID),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("paid_under", key))
		return nil, tools.Permanent(fmt.Errorf("%w: %s was paid under %s", ErrAlreadySettled, req.InvoiceID, key))
	}

	receipt := &entity.PaymentReceipt{
		Reference:      newReference(req.InvoiceID),
		InvoiceID:      req.InvoiceID,
		VendorID:       req.VendorID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		PaidAt:         g.now().UTC(),
	}

	if g.settler != nil {
		if err := g.settler.SetInvoiceStatus(ctx, req.InvoiceID, entity.InvoiceStatusPaid); err != nil {
			err = fmt.Errorf("failed to settle invoice %s: %w", req.InvoiceID, err)
			if errors.Is(err, ErrAlreadySettled) {
				return nil, tools.Permanent(err)
			}
			return nil, err
		}
	}
	g.receipts[req.IdempotencyKey] = receipt
	g.paid[req.InvoiceID] = req.IdempotencyKey

	g.logger.Info("Payment executed",
		zap.String("invoice_id", req.InvoiceID),
		zap.String("vendor_id", req.VendorID),
		zap.String("amount", req.Amount.String()),
		zap.String("reference", receipt.Reference))

	r := *receipt
	return &r, nil
}

// Payments returns the number of distinct payments executed
func (g *PaymentGateway) Payments() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.receipts)
}

func newReference(invoiceID string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("PAY-%s-%s", invoiceID, strings.ToUpper(suffix))
}

var _ port.PaymentGateway = (*PaymentGateway)(nil)
