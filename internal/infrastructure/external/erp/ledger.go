package erp

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
)

// Sheet names in an AP ledger workbook
const (
	InvoiceSheet       = "Invoices"
	PurchaseOrderSheet = "PurchaseOrders"
)

// InvoiceColumns is the header row of the invoice sheet
var InvoiceColumns = []string{"invoice_id", "vendor_id", "vendor_name", "amount", "currency", "due_date", "po_reference", "status"}

// PurchaseOrderColumns is the header row of the purchase order sheet
var PurchaseOrderColumns = []string{"po_id", "vendor_id", "amount", "line_item_ref", "status"}

// LoadLedger reads an xlsx AP ledger export into a Catalog. Columns are
// located by header name so extra or reordered columns are accepted.
func LoadLedger(path string, logger *zap.Logger, opts ...CatalogOption) (*Catalog, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	invoiceRows, err := f.GetRows(InvoiceSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", InvoiceSheet, err)
	}
	invoices, err := parseInvoices(invoiceRows)
	if err != nil {
		return nil, err
	}

	orderRows, err := f.GetRows(PurchaseOrderSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", PurchaseOrderSheet, err)
	}
	orders, err := parsePurchaseOrders(orderRows)
	if err != nil {
		return nil, err
	}

	logger.Info("Ledger loaded",
		zap.String("path", path),
		zap.Int("invoices", len(invoices)),
		zap.Int("purchase_orders", len(orders)))

	return NewCatalog(invoices, orders, logger, opts...), nil
}

// WriteLedger exports invoices and orders into a new workbook at path
func WriteLedger(path string, invoices []entity.Invoice, orders []entity.PurchaseOrder) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", InvoiceSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(PurchaseOrderSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := writeRow(f, InvoiceSheet, 1, toCells(InvoiceColumns)); err != nil {
		return err
	}
	for i, inv := range invoices {
		due := ""
		if inv.DueDate != nil {
			due = inv.DueDate.Format(time.DateOnly)
		}
		row := []interface{}{inv.ID, inv.VendorID, inv.VendorName, inv.Amount.Decimal(), inv.Currency, due, inv.POReference, inv.Status}
		if err := writeRow(f, InvoiceSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := writeRow(f, PurchaseOrderSheet, 1, toCells(PurchaseOrderColumns)); err != nil {
		return err
	}
	for i, po := range orders {
		row := []interface{}{po.ID, po.VendorID, po.Amount.Decimal(), po.LineItemRef, po.Status}
		if err := writeRow(f, PurchaseOrderSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// header maps lower-cased column names to their index
type header map[string]int

func parseHeader(rows [][]string, sheet string, required ...string) (header, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheet)
	}
	h := make(header, len(rows[0]))
	for i, name := range rows[0] {
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := h[name]; !ok {
			return nil, fmt.Errorf("sheet %s: missing column %q", sheet, name)
		}
	}
	return h, nil
}

func (h header) get(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseInvoices(rows [][]string) ([]entity.Invoice, error) {
	h, err := parseHeader(rows, InvoiceSheet, "invoice_id", "vendor_id", "amount")
	if err != nil {
		return nil, err
	}

	var invoices []entity.Invoice
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		line := n + 2

		amount, err := entity.ParseMoney(h.get(row, "amount"))
		if err != nil {
			return nil, fmt.Errorf("sheet %s row %d: %w", InvoiceSheet, line, err)
		}

		inv := entity.Invoice{
			ID:          h.get(row, "invoice_id"),
			VendorID:    h.get(row, "vendor_id"),
			VendorName:  h.get(row, "vendor_name"),
			Amount:      amount,
			Currency:    strings.ToUpper(h.get(row, "currency")),
			POReference: h.get(row, "po_reference"),
			Status:      strings.ToLower(h.get(row, "status")),
		}
		if inv.ID == "" || inv.VendorID == "" {
			return nil, fmt.Errorf("sheet %s row %d: invoice_id and vendor_id are required", InvoiceSheet, line)
		}
		if inv.Currency == "" {
			inv.Currency = entity.DefaultCurrency
		}
		if inv.Status == "" {
			inv.Status = entity.InvoiceStatusPending
		}
		if due := h.get(row, "due_date"); due != "" {
			t, err := time.Parse(time.DateOnly, due)
			if err != nil {
				return nil, fmt.Errorf("sheet %s row %d: invalid due_date %q", InvoiceSheet, line, due)
			}
			inv.DueDate = &t
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

func parsePurchaseOrders(rows [][]string) ([]entity.PurchaseOrder, error) {
	h, err := parseHeader(rows, PurchaseOrderSheet, "po_id", "vendor_id", "amount")
	if err != nil {
		return nil, err
	}

	var orders []entity.PurchaseOrder
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		line := n + 2

		amount, err := entity.ParseMoney(h.get(row, "amount"))
		if err != nil {
			return nil, fmt.Errorf("sheet %s row %d: %w", PurchaseOrderSheet, line, err)
		}

		po := entity.PurchaseOrder{
			ID:          h.get(row, "po_id"),
			VendorID:    h.get(row, "vendor_id"),
			Amount:      amount,
			LineItemRef: h.get(row, "line_item_ref"),
			Status:      strings.ToLower(h.get(row, "status")),
		}
		if po.ID == "" || po.VendorID == "" {
			return nil, fmt.Errorf("sheet %s row %d: po_id and vendor_id are required", PurchaseOrderSheet, line)
		}
		if po.Status == "" {
			po.Status = entity.PurchaseOrderStatusOpen
		}
		orders = append(orders, po)
	}
	return orders, nil
}
