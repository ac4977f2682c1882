package erp

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/application/port"
	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
)

// ErrTimeout is returned by simulated ERP calls that time out
var ErrTimeout = errors.New("erp api timeout")

// ErrInvoiceNotFound is returned when settling an unknown invoice
var ErrInvoiceNotFound = errors.New("invoice not found")

// ErrAlreadySettled is returned when paying an invoice the ERP already shows as paid
var ErrAlreadySettled = errors.New("invoice already settled")

// Catalog is an in-memory ERP holding invoices and purchase orders.
// A non-zero failure rate makes each read time out with that probability.
type Catalog struct {
	mu       sync.RWMutex
	invoices []entity.Invoice
	orders   []entity.PurchaseOrder

	failureRate float64
	roll        func() float64
	logger      *zap.Logger
}

// CatalogOption configures a Catalog
type CatalogOption func(*Catalog)

// WithFailureRate sets the probability that a read returns ErrTimeout
func WithFailureRate(rate float64) CatalogOption {
	return func(c *Catalog) {
		c.failureRate = rate
	}
}

// WithRoll replaces the random source used for simulated failures
func WithRoll(roll func() float64) CatalogOption {
	return func(c *Catalog) {
		c.roll = roll
	}
}

// NewCatalog creates a catalog over copies of invoices and orders
func NewCatalog(invoices []entity.Invoice, orders []entity.PurchaseOrder, logger *zap.Logger, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		invoices: append([]entity.Invoice(nil), invoices...),
		orders:   append([]entity.PurchaseOrder(nil), orders...),
		roll:     rand.Float64,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewDemoCatalog creates a catalog seeded with DemoInvoices and DemoPurchaseOrders
func NewDemoCatalog(logger *zap.Logger, opts ...CatalogOption) *Catalog {
	return NewCatalog(DemoInvoices(), DemoPurchaseOrders(), logger, opts...)
}

// DemoInvoices returns three pending invoices across two vendors
func DemoInvoices() []entity.Invoice {
	return []entity.Invoice{
		{ID: "INV-001", VendorID: "V001", VendorName: "Acme Corp", Amount: 1000000, Currency: entity.DefaultCurrency, POReference: "PO-101", Status: entity.InvoiceStatusPending},
		{ID: "INV-002", VendorID: "V001", VendorName: "Acme Corp", Amount: 50000, Currency: entity.DefaultCurrency, POReference: "PO-102", Status: entity.InvoiceStatusPending},
		{ID: "INV-003", VendorID: "V002", VendorName: "Beta Inc", Amount: 250000, Currency: entity.DefaultCurrency, POReference: "PO-201", Status: entity.InvoiceStatusPending},
	}
}

// DemoPurchaseOrders returns the open purchase orders matching DemoInvoices
func DemoPurchaseOrders() []entity.PurchaseOrder {
	return []entity.PurchaseOrder{
		{ID: "PO-101", VendorID: "V001", Amount: 1000000, Status: entity.PurchaseOrderStatusOpen},
		{ID: "PO-102", VendorID: "V001", Amount: 50000, Status: entity.PurchaseOrderStatusOpen},
		{ID: "PO-201", VendorID: "V002", Amount: 250000, Status: entity.PurchaseOrderStatusOpen},
	}
}

// FetchPendingInvoices returns pending invoices in catalog order
func (c *Catalog) FetchPendingInvoices(ctx context.Context, vendorID string, limit int) ([]entity.Invoice, error) {
	if err := c.simulate(ctx, "fetch_pending_invoices"); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]entity.Invoice, 0, len(c.invoices))
	for _, inv := range c.invoices {
		if !inv.IsPending() {
			continue
		}
		if vendorID != "" && inv.VendorID != vendorID {
			continue
		}
		if inv.Currency == "" {
			inv.Currency = entity.DefaultCurrency
		}
		out = append(out, inv)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListOpenPurchaseOrders returns open purchase orders, optionally for one vendor
func (c *Catalog) ListOpenPurchaseOrders(ctx context.Context, vendorID string) ([]entity.PurchaseOrder, error) {
	if err := c.simulate(ctx, "list_open_purchase_orders"); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]entity.PurchaseOrder, 0, len(c.orders))
	for _, po := range c.orders {
		if !po.IsOpen() {
			continue
		}
		if vendorID != "" && po.VendorID != vendorID {
			continue
		}
		out = append(out, po)
	}
	return out, nil
}

// SetInvoiceStatus records an invoice status change, e.g. after payment.
// A paid invoice cannot be marked paid again.
func (c *Catalog) SetInvoiceStatus(ctx context.Context, invoiceID, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.invoices {
		if c.invoices[i].ID == invoiceID {
			if status == entity.InvoiceStatusPaid && c.invoices[i].Status == entity.InvoiceStatusPaid {
				return fmt.Errorf("%w: %s", ErrAlreadySettled, invoiceID)
			}
			c.invoices[i].Status = status
			c.logger.Info("Invoice status updated",
				zap.String("invoice_id", invoiceID),
				zap.String("status", status))
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
}

func (c *Catalog) simulate(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.failureRate > 0 && c.roll() < c.failureRate {
		c.logger.Warn("Simulated ERP timeout", zap.String("op", op))
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return nil
}

var (
	_ port.InvoiceSource       = (*Catalog)(nil)
	_ port.PurchaseOrderSource = (*Catalog)(nil)
)
